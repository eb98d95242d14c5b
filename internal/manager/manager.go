// Package manager owns the transcode job lifecycle: creating jobs from
// staged sources, running them on a bounded worker pool, and recording
// their outputs.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime/debug"
	"sync"

	"github.com/mediaspool/transcoded/internal/ffmpeg"
	"github.com/mediaspool/transcoded/internal/models"
	"github.com/mediaspool/transcoded/internal/progress"
	"github.com/mediaspool/transcoded/internal/registry"
	"github.com/mediaspool/transcoded/internal/storage"
)

// DefaultWorkers bounds concurrent encodes when no pool size is configured.
const DefaultWorkers = 5

// Archiver receives terminal job snapshots for long-term storage.
type Archiver interface {
	Archive(snap models.JobSnapshot) error
}

// CreateJobRequest describes a new transcode job.
type CreateJobRequest struct {
	VideoID   string
	Formats   []models.VideoFormat // name-only specs resolve via the standard map; empty falls back to defaults
	Container string               // output container extension; empty means mp4
	Options   models.TranscodeOptions
}

// Manager creates and runs transcode jobs.
type Manager struct {
	registry registry.Registry
	store    storage.Store
	driver   ffmpeg.Driver
	hub      *progress.Hub
	archiver Archiver
	logger   *slog.Logger

	workers        int
	defaultFormats []string

	// pending is the unbounded submission queue; cond signals waiting workers.
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*models.TranscodeJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithDefaultFormats sets the formats used when a request names none.
func WithDefaultFormats(names []string) Option {
	return func(m *Manager) { m.defaultFormats = names }
}

// WithArchiver sets the terminal-job archiver.
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// NewManager creates a manager. Call Start to begin processing.
func NewManager(reg registry.Registry, store storage.Store, driver ffmpeg.Driver, hub *progress.Hub, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry:       reg,
		store:          store,
		driver:         driver,
		hub:            hub,
		logger:         logger.With(slog.String("component", "job_manager")),
		workers:        DefaultWorkers,
		defaultFormats: models.StandardFormatNames(),
		ctx:            ctx,
		cancel:         cancel,
	}
	m.cond = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the worker pool.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		for i := 0; i < m.workers; i++ {
			m.wg.Add(1)
			go m.worker(i)
		}
		m.logger.Info("worker pool started", slog.Int("workers", m.workers))
	})
}

// Stop cancels in-flight encodes and waits for workers to drain.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
		m.wg.Wait()
		m.logger.Info("worker pool stopped")
	})
}

// CreateJob probes the staged source, registers a queued job, and schedules
// it on the worker pool.
func (m *Manager) CreateJob(ctx context.Context, req CreateJobRequest) (*models.TranscodeJob, error) {
	inputPath, err := m.store.LocateVideo(req.VideoID)
	if err != nil {
		return nil, err
	}

	var formats []models.VideoFormat
	if len(req.Formats) == 0 {
		formats, err = models.ExpandStandardFormats(m.defaultFormats)
	} else {
		formats, err = models.ResolveFormats(req.Formats)
	}
	if err != nil {
		return nil, err
	}

	container := req.Container
	if container == "" {
		container = "mp4"
	}

	metadata, err := m.driver.Probe(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("probing source: %w", err)
	}

	jobID := models.NewJobID()
	outputDir, err := m.store.CreateJobOutputDir(jobID)
	if err != nil {
		return nil, err
	}

	estimate := estimateSeconds(metadata.DurationSeconds, len(formats))
	job := models.NewTranscodeJob(jobID, req.VideoID, inputPath, outputDir, formats, container, req.Options, metadata, estimate)
	if m.hub != nil {
		job.Observe(m.hub.Publish)
	}
	if m.archiver != nil {
		job.Observe(m.archiveTerminal)
	}
	if err := m.enqueue(job); err != nil {
		return nil, err
	}

	m.logger.Info("job created",
		slog.String("job_id", jobID),
		slog.String("video_id", req.VideoID),
		slog.Int("formats", len(formats)),
		slog.Int("estimated_seconds", estimate),
	)
	return job, nil
}

// Cancel cancels a job. Terminal jobs are left untouched and report false.
func (m *Manager) Cancel(jobID string) (bool, error) {
	job, err := m.registry.Get(jobID)
	if err != nil {
		return false, err
	}
	cancelled := job.Cancel()
	if cancelled {
		m.logger.Info("job cancelled", slog.String("job_id", jobID))
	}
	return cancelled, nil
}

// estimateSeconds predicts wall time: half a minute of work per source
// minute per format, rounded to whole minutes.
func estimateSeconds(durationSeconds float64, formatCount int) int {
	minutes := durationSeconds / 60
	return int(math.Round(minutes*float64(formatCount)*0.5)) * 60
}

// enqueue registers the job and appends it to the pending queue. The queue
// is unbounded, so submission never blocks on a backlog. Registration happens
// under the queue lock: a rejected submission leaves no registry entry.
func (m *Manager) enqueue(job *models.TranscodeJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return fmt.Errorf("manager shutting down")
	}
	m.registry.Save(job)
	m.pending = append(m.pending, job)
	m.cond.Signal()
	return nil
}

// dequeue blocks until a job is pending or the manager stops.
func (m *Manager) dequeue() (*models.TranscodeJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.pending) == 0 && m.ctx.Err() == nil {
		m.cond.Wait()
	}
	if m.ctx.Err() != nil {
		return nil, false
	}
	job := m.pending[0]
	m.pending = m.pending[1:]
	return job, true
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	for {
		job, ok := m.dequeue()
		if !ok {
			return
		}
		m.runJob(job)
	}
}

// archiveTerminal forwards terminal snapshots to the archiver.
func (m *Manager) archiveTerminal(snap models.JobSnapshot) {
	if !snap.Status.IsTerminal() {
		return
	}
	if err := m.archiver.Archive(snap); err != nil {
		m.logger.Warn("archiving job failed",
			slog.String("job_id", snap.ID),
			slog.String("error", err.Error()),
		)
	}
}

// runJob executes every format of a job sequentially. Each format owns a
// progress window [100i/n, 100(i+1)/n) so overall progress rises smoothly
// across formats.
func (m *Manager) runJob(job *models.TranscodeJob) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job panicked",
				slog.String("job_id", job.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			job.Fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	if !job.Start() {
		// Cancelled while queued.
		return
	}

	snap := job.Snapshot()
	n := len(snap.Formats)
	for i, format := range snap.Formats {
		base := 100 * i / n
		next := 100 * (i + 1) / n

		job.SetProgress(base, "Processing "+format.Name)

		if err := m.encodeFormat(job, snap, format, base, next); err != nil {
			if job.Status() == models.JobStatusCancelled {
				return
			}
			m.logger.Error("format encode failed",
				slog.String("job_id", job.ID()),
				slog.String("format", format.Name),
				slog.String("error", err.Error()),
			)
			job.Fail("Failed to transcode format: " + format.Name)
			return
		}
	}

	job.Complete()
	m.logger.Info("job completed", slog.String("job_id", job.ID()))
}

// encodeFormat runs one rendition, scaling driver progress into the job's
// window for this format.
func (m *Manager) encodeFormat(job *models.TranscodeJob, snap models.JobSnapshot, format models.VideoFormat, base, next int) error {
	output := m.store.OutputPath(job.ID(), snap.VideoID, format.Name, snap.Container)

	encodeCtx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	job.SetEncodeCancel(cancel)
	defer job.ClearEncodeCancel()

	err := m.driver.Encode(encodeCtx, snap.InputPath, output, format, snap.Options, snap.Metadata.DurationSeconds, func(percent int, message string) {
		if percent < 0 {
			// Failure detail; the error return carries the outcome.
			return
		}
		scaled := base + percent*(next-base)/100
		job.SetProgress(scaled, message)
	})
	if err != nil {
		return err
	}

	of := models.OutputFile{
		Format:          format.Name,
		Location:        output,
		DurationSeconds: snap.Metadata.DurationSeconds,
		BitrateKbps:     format.BitrateKbps,
	}
	if info, statErr := os.Stat(output); statErr == nil {
		of.SizeBytes = info.Size()
	}
	job.AppendOutputFile(of)
	return nil
}
