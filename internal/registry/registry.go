// Package registry tracks live transcode jobs and serves filtered,
// token-paginated listings over them.
package registry

import (
	"github.com/mediaspool/transcoded/internal/models"
)

// DefaultPageLimit is used when a list request has no positive limit.
const DefaultPageLimit = 100

// ListRequest selects a page of jobs.
type ListRequest struct {
	// Statuses filters to jobs in any of the given states; empty means all.
	Statuses []models.JobStatus

	// PageToken is the last job id of the previous page; empty starts from
	// the beginning. Job ids sort in creation order, so the token doubles
	// as a creation-time cursor.
	PageToken string

	// Limit caps the page size; values <= 0 fall back to DefaultPageLimit.
	Limit int
}

// ListResult is one page of jobs in ascending creation order.
type ListResult struct {
	Jobs []*models.TranscodeJob

	// NextToken is set iff the page filled, meaning more jobs may follow.
	NextToken string
}

// Registry is the live job store.
type Registry interface {
	// Save registers a job under its id, replacing any previous entry.
	Save(job *models.TranscodeJob)

	// Get returns the job with the given id.
	Get(id string) (*models.TranscodeJob, error)

	// List returns a filtered page of jobs.
	List(req ListRequest) ListResult

	// ListByVideo returns all jobs for a source video in creation order.
	ListByVideo(videoID string) []*models.TranscodeJob

	// Count returns the number of registered jobs.
	Count() int
}
