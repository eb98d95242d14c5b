// Package models defines the core domain types for transcoded: jobs, formats,
// probe metadata, and upload sessions' shared identifiers.
package models

import (
	"context"
	"sync"
	"time"
)

// JobStatus is the lifecycle state of a transcode job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status is absorbing.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusInProgress, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// TranscodeJob is a single transcode request and its observable state.
//
// The registry hands out shared references; all reads and writes go through
// methods that take the record's own lock, so status readers never wait behind
// an encode and the state machine invariants hold under concurrent access:
// progress is non-decreasing while in progress, and terminal states absorb.
type TranscodeJob struct {
	mu sync.RWMutex

	id        string
	videoID   string
	inputPath string
	outputDir string
	formats   []VideoFormat
	container string
	options   TranscodeOptions
	metadata  VideoMetadata

	status       JobStatus
	errorMessage string
	progress     int
	currentStage string
	outputFiles  []OutputFile

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	estimatedSeconds int

	// encodeCancel kills the in-flight encode subprocess on Cancel.
	encodeCancel context.CancelFunc

	// observers are notified after every state mutation.
	observers []func(JobSnapshot)
}

// JobSnapshot is a point-in-time copy of a job's observable state.
type JobSnapshot struct {
	ID               string
	VideoID          string
	InputPath        string
	OutputDir        string
	Formats          []VideoFormat
	Container        string
	Options          TranscodeOptions
	Metadata         VideoMetadata
	Status           JobStatus
	ErrorMessage     string
	Progress         int
	CurrentStage     string
	OutputFiles      []OutputFile
	CreatedAt        time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
	EstimatedSeconds int
}

// NewTranscodeJob creates a job in the queued state.
func NewTranscodeJob(id, videoID, inputPath, outputDir string, formats []VideoFormat, container string, options TranscodeOptions, metadata VideoMetadata, estimatedSeconds int) *TranscodeJob {
	return &TranscodeJob{
		id:               id,
		videoID:          videoID,
		inputPath:        inputPath,
		outputDir:        outputDir,
		formats:          formats,
		container:        container,
		options:          options,
		metadata:         metadata,
		status:           JobStatusQueued,
		createdAt:        time.Now(),
		estimatedSeconds: estimatedSeconds,
	}
}

// ID returns the job id.
func (j *TranscodeJob) ID() string { return j.id }

// VideoID returns the source video id.
func (j *TranscodeJob) VideoID() string { return j.videoID }

// CreatedAt returns the creation time.
func (j *TranscodeJob) CreatedAt() time.Time { return j.createdAt }

// Status returns the current status.
func (j *TranscodeJob) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Progress returns the current progress percent.
func (j *TranscodeJob) Progress() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// Snapshot returns a copy of the job's observable state.
func (j *TranscodeJob) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snapshotLocked()
}

func (j *TranscodeJob) snapshotLocked() JobSnapshot {
	snap := JobSnapshot{
		ID:               j.id,
		VideoID:          j.videoID,
		InputPath:        j.inputPath,
		OutputDir:        j.outputDir,
		Formats:          append([]VideoFormat(nil), j.formats...),
		Container:        j.container,
		Options:          j.options,
		Metadata:         j.metadata,
		Status:           j.status,
		ErrorMessage:     j.errorMessage,
		Progress:         j.progress,
		CurrentStage:     j.currentStage,
		OutputFiles:      append([]OutputFile(nil), j.outputFiles...),
		CreatedAt:        j.createdAt,
		StartedAt:        j.startedAt,
		CompletedAt:      j.completedAt,
		EstimatedSeconds: j.estimatedSeconds,
	}
	return snap
}

// Observe registers fn to be called with a snapshot after every mutation.
// Callbacks run outside the job lock.
func (j *TranscodeJob) Observe(fn func(JobSnapshot)) {
	j.mu.Lock()
	j.observers = append(j.observers, fn)
	j.mu.Unlock()
}

// notify runs the registered observers with snap. Must be called without the lock held.
func (j *TranscodeJob) notify(snap JobSnapshot, observers []func(JobSnapshot)) {
	for _, fn := range observers {
		fn(snap)
	}
}

// Start transitions the job from queued to in_progress.
// Returns false if the job is not queued (already started or cancelled).
func (j *TranscodeJob) Start() bool {
	j.mu.Lock()
	if j.status != JobStatusQueued {
		j.mu.Unlock()
		return false
	}
	j.status = JobStatusInProgress
	j.startedAt = time.Now()
	snap, obs := j.snapshotLocked(), j.observers
	j.mu.Unlock()
	j.notify(snap, obs)
	return true
}

// SetProgress raises the job's progress while in progress.
// Regressions and updates against terminal jobs are ignored.
func (j *TranscodeJob) SetProgress(progress int, stage string) {
	j.mu.Lock()
	if j.status != JobStatusInProgress {
		j.mu.Unlock()
		return
	}
	if progress > 100 {
		progress = 100
	}
	changed := false
	if progress > j.progress {
		j.progress = progress
		changed = true
	}
	if stage != "" && stage != j.currentStage {
		j.currentStage = stage
		changed = true
	}
	if !changed {
		j.mu.Unlock()
		return
	}
	snap, obs := j.snapshotLocked(), j.observers
	j.mu.Unlock()
	j.notify(snap, obs)
}

// AppendOutputFile records a produced output. Ignored once terminal so a
// straggling encode cannot mutate a finished record.
func (j *TranscodeJob) AppendOutputFile(of OutputFile) {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return
	}
	j.outputFiles = append(j.outputFiles, of)
	snap, obs := j.snapshotLocked(), j.observers
	j.mu.Unlock()
	j.notify(snap, obs)
}

// Complete marks the job completed with progress 100.
// Returns false if the job is already terminal.
func (j *TranscodeJob) Complete() bool {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	j.status = JobStatusCompleted
	j.progress = 100
	j.currentStage = "Completed"
	j.completedAt = time.Now()
	j.encodeCancel = nil
	snap, obs := j.snapshotLocked(), j.observers
	j.mu.Unlock()
	j.notify(snap, obs)
	return true
}

// Fail marks the job failed with the given message.
// Returns false if the job is already terminal.
func (j *TranscodeJob) Fail(message string) bool {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	j.status = JobStatusFailed
	j.errorMessage = message
	j.completedAt = time.Now()
	j.encodeCancel = nil
	snap, obs := j.snapshotLocked(), j.observers
	j.mu.Unlock()
	j.notify(snap, obs)
	return true
}

// Cancel marks the job cancelled and signals the in-flight encode, if any.
// Returns false if the job is already terminal.
func (j *TranscodeJob) Cancel() bool {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	j.status = JobStatusCancelled
	j.completedAt = time.Now()
	cancel := j.encodeCancel
	j.encodeCancel = nil
	snap, obs := j.snapshotLocked(), j.observers
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	j.notify(snap, obs)
	return true
}

// SetEncodeCancel installs the cancel handle for the running encode.
// If the job was cancelled before the handle arrived, the handle is invoked
// immediately so the subprocess does not outlive the cancellation.
func (j *TranscodeJob) SetEncodeCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	if j.status == JobStatusCancelled {
		j.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	j.encodeCancel = cancel
	j.mu.Unlock()
}

// ClearEncodeCancel removes the encode cancel handle after an encode returns.
func (j *TranscodeJob) ClearEncodeCancel() {
	j.mu.Lock()
	j.encodeCancel = nil
	j.mu.Unlock()
}
