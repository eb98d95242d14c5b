package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaspool/transcoded/internal/config"
	"github.com/mediaspool/transcoded/internal/database"
	"github.com/mediaspool/transcoded/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "history.db"),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc, err := NewService(db, nil)
	require.NoError(t, err)
	return svc
}

func terminalSnap(status models.JobStatus) models.JobSnapshot {
	now := time.Now()
	return models.JobSnapshot{
		ID:      models.NewJobID(),
		VideoID: models.NewVideoID(),
		Formats: []models.VideoFormat{
			{Name: "1080p", Width: 1920, Height: 1080, VideoCodec: "libx264", BitrateKbps: 5000},
			{Name: "720p", Width: 1280, Height: 720, VideoCodec: "libx264", BitrateKbps: 2500},
		},
		Container: "mp4",
		Status:    status,
		Progress:  100,
		OutputFiles: []models.OutputFile{
			{Format: "1080p", Location: "/output/x_1080p.mp4", SizeBytes: 1024},
		},
		Metadata:         models.VideoMetadata{DurationSeconds: 600},
		EstimatedSeconds: 600,
		CreatedAt:        now.Add(-time.Minute),
		StartedAt:        now.Add(-50 * time.Second),
		CompletedAt:      now,
	}
}

func TestArchiveAndGet(t *testing.T) {
	svc := newTestService(t)
	snap := terminalSnap(models.JobStatusCompleted)

	require.NoError(t, svc.Archive(snap))

	record, err := svc.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, record.ID)
	assert.Equal(t, snap.VideoID, record.VideoID)
	assert.Equal(t, "completed", record.Status)
	assert.Equal(t, []string{"1080p", "720p"}, record.FormatNames())

	outputs, err := record.OutputFiles()
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "1080p", outputs[0].Format)
	assert.Equal(t, int64(1024), outputs[0].SizeBytes)
}

func TestArchiveRejectsNonTerminal(t *testing.T) {
	svc := newTestService(t)
	snap := terminalSnap(models.JobStatusCompleted)
	snap.Status = models.JobStatusInProgress

	err := svc.Archive(snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")
}

func TestArchiveUpsert(t *testing.T) {
	svc := newTestService(t)
	snap := terminalSnap(models.JobStatusFailed)
	snap.ErrorMessage = "Failed to transcode format: 720p"

	require.NoError(t, svc.Archive(snap))
	// Archiving again must not duplicate.
	require.NoError(t, svc.Archive(snap))

	count, err := svc.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	record, err := svc.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "Failed to transcode format: 720p", record.ErrorMessage)
}

func TestGetUnknown(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestListByVideo(t *testing.T) {
	svc := newTestService(t)
	a := terminalSnap(models.JobStatusCompleted)
	b := terminalSnap(models.JobStatusCompleted)
	b.VideoID = a.VideoID
	other := terminalSnap(models.JobStatusCompleted)

	for _, snap := range []models.JobSnapshot{a, b, other} {
		require.NoError(t, svc.Archive(snap))
	}

	records, err := svc.ListByVideo(context.Background(), a.VideoID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPurge(t *testing.T) {
	svc := newTestService(t)

	old := terminalSnap(models.JobStatusCompleted)
	old.CompletedAt = time.Now().Add(-48 * time.Hour)
	recent := terminalSnap(models.JobStatusCompleted)

	require.NoError(t, svc.Archive(old))
	require.NoError(t, svc.Archive(recent))

	removed, err := svc.Purge(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = svc.Get(context.Background(), old.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)

	_, err = svc.Get(context.Background(), recent.ID)
	assert.NoError(t, err)
}
