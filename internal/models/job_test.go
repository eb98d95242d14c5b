package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob() *TranscodeJob {
	formats := []VideoFormat{
		{Name: "720p", Width: 1280, Height: 720, VideoCodec: "libx264", BitrateKbps: 2500},
		{Name: "480p", Width: 854, Height: 480, VideoCodec: "libx264", BitrateKbps: 1000},
	}
	return NewTranscodeJob(NewJobID(), NewVideoID(), "/staging/src.mp4", "/output/j1", formats, "mp4", TranscodeOptions{}, VideoMetadata{DurationSeconds: 120}, 120)
}

func TestJobLifecycle(t *testing.T) {
	job := newTestJob()
	assert.Equal(t, JobStatusQueued, job.Status())
	assert.False(t, job.CreatedAt().IsZero())

	require.True(t, job.Start())
	assert.Equal(t, JobStatusInProgress, job.Status())
	assert.False(t, job.Snapshot().StartedAt.IsZero())

	// A second start must not succeed.
	assert.False(t, job.Start())

	require.True(t, job.Complete())
	snap := job.Snapshot()
	assert.Equal(t, JobStatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.False(t, snap.CompletedAt.IsZero())
}

func TestJobProgressMonotonic(t *testing.T) {
	job := newTestJob()
	require.True(t, job.Start())

	job.SetProgress(10, "Transcoding 720p")
	job.SetProgress(40, "Transcoding 720p")
	job.SetProgress(25, "Transcoding 720p") // regression ignored
	assert.Equal(t, 40, job.Progress())

	job.SetProgress(250, "Transcoding 480p") // clamped
	assert.Equal(t, 100, job.Progress())
	assert.Equal(t, "Transcoding 480p", job.Snapshot().CurrentStage)
}

func TestJobProgressIgnoredBeforeStart(t *testing.T) {
	job := newTestJob()
	job.SetProgress(50, "early")
	assert.Equal(t, 0, job.Progress())
}

func TestJobTerminalAbsorbing(t *testing.T) {
	job := newTestJob()
	require.True(t, job.Start())
	require.True(t, job.Fail("Failed to transcode format: 720p"))

	assert.False(t, job.Complete())
	assert.False(t, job.Cancel())
	assert.False(t, job.Fail("again"))

	snap := job.Snapshot()
	assert.Equal(t, JobStatusFailed, snap.Status)
	assert.Equal(t, "Failed to transcode format: 720p", snap.ErrorMessage)

	job.SetProgress(99, "late")
	assert.Equal(t, snap.Progress, job.Progress())

	job.AppendOutputFile(OutputFile{Format: "480p"})
	assert.Len(t, job.Snapshot().OutputFiles, 0)
}

func TestJobCancelBeforeStart(t *testing.T) {
	job := newTestJob()
	require.True(t, job.Cancel())
	assert.Equal(t, JobStatusCancelled, job.Status())

	// Worker pick-up after cancellation must be rejected.
	assert.False(t, job.Start())
}

func TestJobCancelFiresEncodeCancel(t *testing.T) {
	job := newTestJob()
	require.True(t, job.Start())

	fired := false
	job.SetEncodeCancel(func() { fired = true })
	require.True(t, job.Cancel())
	assert.True(t, fired)
}

func TestJobEncodeCancelAfterCancellation(t *testing.T) {
	job := newTestJob()
	require.True(t, job.Cancel())

	// Handle installed after cancel fires immediately.
	fired := false
	job.SetEncodeCancel(func() { fired = true })
	assert.True(t, fired)
}

func TestJobObservers(t *testing.T) {
	job := newTestJob()

	var mu sync.Mutex
	var seen []JobStatus
	job.Observe(func(s JobSnapshot) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})

	job.Start()
	job.SetProgress(10, "Transcoding 720p")
	job.Complete()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, JobStatusInProgress, seen[0])
	assert.Equal(t, JobStatusCompleted, seen[2])
}

func TestJobConcurrentReadersAndWriter(t *testing.T) {
	job := newTestJob()
	require.True(t, job.Start())

	var wg sync.WaitGroup
	for i := 0; i <= 100; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			job.SetProgress(p, "Transcoding 720p")
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = job.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, job.Progress())
}

func TestJobStatusHelpers(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusInProgress.IsTerminal())

	assert.True(t, JobStatusQueued.Valid())
	assert.False(t, JobStatus("unknown").Valid())
}
