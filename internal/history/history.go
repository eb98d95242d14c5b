// Package history archives terminal jobs to the database so completed work
// survives process restarts and registry eviction.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mediaspool/transcoded/internal/database"
	"github.com/mediaspool/transcoded/internal/models"
)

// JobRecord is the persisted form of a terminal job.
type JobRecord struct {
	ID           string `gorm:"primaryKey;size:26"`
	VideoID      string `gorm:"index;size:36"`
	Status       string `gorm:"index;size:16"`
	ErrorMessage string
	Progress     int
	Formats      string // comma-separated format names
	Container    string `gorm:"size:8"`
	OutputsJSON  string // serialized []models.OutputFile

	DurationSeconds  float64
	EstimatedSeconds int

	CreatedAt   time.Time `gorm:"index"`
	StartedAt   time.Time
	CompletedAt time.Time
	ArchivedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName fixes the table name independent of GORM pluralization.
func (JobRecord) TableName() string { return "job_history" }

// OutputFiles deserializes the archived output files.
func (r *JobRecord) OutputFiles() ([]models.OutputFile, error) {
	if r.OutputsJSON == "" {
		return nil, nil
	}
	var outputs []models.OutputFile
	if err := json.Unmarshal([]byte(r.OutputsJSON), &outputs); err != nil {
		return nil, fmt.Errorf("decoding archived outputs: %w", err)
	}
	return outputs, nil
}

// FormatNames splits the archived format list.
func (r *JobRecord) FormatNames() []string {
	if r.Formats == "" {
		return nil
	}
	return strings.Split(r.Formats, ",")
}

// Service archives and queries job history.
type Service struct {
	db     *database.DB
	logger *slog.Logger
}

// NewService creates a history service and migrates its schema.
func NewService(db *database.DB, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return nil, fmt.Errorf("migrating job history schema: %w", err)
	}
	return &Service{db: db, logger: logger.With(slog.String("component", "job_history"))}, nil
}

// Archive upserts a terminal job snapshot. Non-terminal snapshots are
// rejected so the archive only ever holds finished work.
func (s *Service) Archive(snap models.JobSnapshot) error {
	if !snap.Status.IsTerminal() {
		return fmt.Errorf("job %s is not terminal (%s)", snap.ID, snap.Status)
	}

	record, err := recordFromSnapshot(snap)
	if err != nil {
		return err
	}

	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("archiving job %s: %w", snap.ID, err)
	}

	s.logger.Debug("job archived",
		slog.String("job_id", snap.ID),
		slog.String("status", string(snap.Status)),
	)
	return nil
}

func recordFromSnapshot(snap models.JobSnapshot) (JobRecord, error) {
	names := make([]string, 0, len(snap.Formats))
	for _, f := range snap.Formats {
		names = append(names, f.Name)
	}

	var outputsJSON string
	if len(snap.OutputFiles) > 0 {
		raw, err := json.Marshal(snap.OutputFiles)
		if err != nil {
			return JobRecord{}, fmt.Errorf("encoding outputs for job %s: %w", snap.ID, err)
		}
		outputsJSON = string(raw)
	}

	return JobRecord{
		ID:               snap.ID,
		VideoID:          snap.VideoID,
		Status:           string(snap.Status),
		ErrorMessage:     snap.ErrorMessage,
		Progress:         snap.Progress,
		Formats:          strings.Join(names, ","),
		Container:        snap.Container,
		OutputsJSON:      outputsJSON,
		DurationSeconds:  snap.Metadata.DurationSeconds,
		EstimatedSeconds: snap.EstimatedSeconds,
		CreatedAt:        snap.CreatedAt,
		StartedAt:        snap.StartedAt,
		CompletedAt:      snap.CompletedAt,
	}, nil
}

// Get returns one archived job.
func (s *Service) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	var record JobRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading archived job %s: %w", jobID, err)
	}
	return &record, nil
}

// List returns archived jobs in descending completion order.
func (s *Service) List(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []JobRecord
	err := s.db.WithContext(ctx).
		Order("completed_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing archived jobs: %w", err)
	}
	return records, nil
}

// ListByVideo returns archived jobs for a source video.
func (s *Service) ListByVideo(ctx context.Context, videoID string) ([]JobRecord, error) {
	var records []JobRecord
	err := s.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing archived jobs for video %s: %w", videoID, err)
	}
	return records, nil
}

// Purge removes archive entries completed before the retention window.
// Returns the number of rows removed.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.WithContext(ctx).
		Where("completed_at < ?", cutoff).
		Delete(&JobRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("purging job history: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("purged job history",
			slog.Int64("removed", result.RowsAffected),
			slog.Time("cutoff", cutoff),
		)
	}
	return result.RowsAffected, nil
}

// Count returns the number of archived jobs.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&JobRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting archived jobs: %w", err)
	}
	return count, nil
}
