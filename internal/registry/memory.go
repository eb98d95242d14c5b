package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mediaspool/transcoded/internal/models"
)

// MemoryRegistry is the in-process Registry implementation.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*models.TranscodeJob
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]*models.TranscodeJob)}
}

// Save implements Registry.
func (r *MemoryRegistry) Save(job *models.TranscodeJob) {
	r.mu.Lock()
	r.jobs[job.ID()] = job
	r.mu.Unlock()
}

// Get implements Registry.
func (r *MemoryRegistry) Get(id string) (*models.TranscodeJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	}
	return job, nil
}

// Count implements Registry.
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// sorted returns all jobs in ascending creation order, with the id as a
// tie-break so the order is total and stable across calls.
func (r *MemoryRegistry) sorted() []*models.TranscodeJob {
	r.mu.RLock()
	jobs := make([]*models.TranscodeJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		ci, cj := jobs[i].CreatedAt(), jobs[j].CreatedAt()
		if ci.Equal(cj) {
			return jobs[i].ID() < jobs[j].ID()
		}
		return ci.Before(cj)
	})
	return jobs
}

// List implements Registry.
func (r *MemoryRegistry) List(req ListRequest) ListResult {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	var statuses map[models.JobStatus]bool
	if len(req.Statuses) > 0 {
		statuses = make(map[models.JobStatus]bool, len(req.Statuses))
		for _, s := range req.Statuses {
			statuses[s] = true
		}
	}

	var result ListResult
	for _, job := range r.sorted() {
		if req.PageToken != "" && job.ID() <= req.PageToken {
			continue
		}
		if statuses != nil && !statuses[job.Status()] {
			continue
		}
		result.Jobs = append(result.Jobs, job)
		if len(result.Jobs) == limit {
			break
		}
	}

	if len(result.Jobs) == limit {
		result.NextToken = result.Jobs[len(result.Jobs)-1].ID()
	}
	return result
}

// ListByVideo implements Registry.
func (r *MemoryRegistry) ListByVideo(videoID string) []*models.TranscodeJob {
	var jobs []*models.TranscodeJob
	for _, job := range r.sorted() {
		if job.VideoID() == videoID {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
