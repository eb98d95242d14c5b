package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-playground/validator/v10"

	"github.com/mediaspool/transcoded/internal/history"
	"github.com/mediaspool/transcoded/internal/manager"
	"github.com/mediaspool/transcoded/internal/models"
	"github.com/mediaspool/transcoded/internal/registry"
)

// validate checks request bodies beyond what the schema expresses.
var validate = validator.New(validator.WithRequiredStructEnabled())

// JobHandler serves the transcode job operations.
type JobHandler struct {
	manager  *manager.Manager
	registry registry.Registry
	history  *history.Service // optional archive fallback for terminal jobs
	logger   *slog.Logger
}

// NewJobHandler creates a job handler. history may be nil when the archive
// is disabled.
func NewJobHandler(m *manager.Manager, reg registry.Registry, hist *history.Service, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		manager:  m,
		registry: reg,
		history:  hist,
		logger:   logger.With(slog.String("component", "job_handler")),
	}
}

// TranscodeOptionsBody carries optional encoder overrides.
type TranscodeOptionsBody struct {
	AudioCodec       string `json:"audio_codec,omitempty" doc:"Audio codec; empty means aac at 128k"`
	AudioBitrateKbps int    `json:"audio_bitrate_kbps,omitempty" validate:"omitempty,min=8,max=1024" doc:"Audio bitrate in kbps"`
	FrameRate        string `json:"frame_rate,omitempty" doc:"Output frame rate, e.g. 30 or 30000/1001"`
	TwoPass          bool   `json:"two_pass,omitempty" doc:"Enable two-pass encoding"`
	CRF              int    `json:"crf,omitempty" validate:"omitempty,min=0,max=51" doc:"Constant rate factor"`
}

// FormatBody selects one output rendition: a standard format name alone, or
// a fully specified custom tuple.
type FormatBody struct {
	Name        string `json:"name,omitempty" doc:"Standard format name, or a label for a custom tuple"`
	Width       int    `json:"width,omitempty" validate:"omitempty,min=16,max=7680" doc:"Output width in pixels"`
	Height      int    `json:"height,omitempty" validate:"omitempty,min=16,max=4320" doc:"Output height in pixels"`
	VideoCodec  string `json:"video_codec,omitempty" doc:"ffmpeg video codec of a custom tuple"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty" validate:"omitempty,min=0" doc:"Video bitrate in kbps"`
}

// CreateJobBody is the request body for creating a job.
type CreateJobBody struct {
	VideoID   string                `json:"video_id" validate:"required,uuid4" doc:"Staged source video id"`
	Formats   []FormatBody          `json:"formats,omitempty" validate:"omitempty,dive" doc:"Requested renditions; empty uses server defaults"`
	Container string                `json:"container,omitempty" validate:"omitempty,alphanum,max=8" doc:"Output container extension; empty means mp4"`
	Options   *TranscodeOptionsBody `json:"options,omitempty"`
}

// CreateJobInput wraps the create request body.
type CreateJobInput struct {
	Body CreateJobBody
}

// JobOutput wraps a single job response.
type JobOutput struct {
	Body JobResponse
}

// GetJobInput identifies one job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job id"`
}

// CancelJobOutput reports the outcome of a cancel request.
type CancelJobOutput struct {
	Body struct {
		Cancelled bool        `json:"cancelled" doc:"False when the job already reached a terminal state"`
		Job       JobResponse `json:"job"`
	}
}

// ListJobsInput selects a page of jobs.
type ListJobsInput struct {
	Status    []string `query:"status" doc:"Filter to these statuses"`
	PageToken string   `query:"page_token" doc:"Cursor from a previous page"`
	Limit     int      `query:"limit" doc:"Page size; 0 uses the server default"`
}

// ListJobsOutput is one page of jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs          []JobResponse `json:"jobs"`
		NextPageToken string        `json:"next_page_token,omitempty" doc:"Set when more jobs may follow"`
		TotalCount    int           `json:"total_count" doc:"Total jobs in the registry, ignoring the filter"`
	}
}

// ListHistoryInput selects archived jobs.
type ListHistoryInput struct {
	VideoID string `query:"video_id" doc:"Filter to one source video"`
	Limit   int    `query:"limit" doc:"Page size; 0 uses the server default"`
}

// HistoryRecordResponse is the wire form of an archived job.
type HistoryRecordResponse struct {
	ID               string               `json:"id"`
	VideoID          string               `json:"video_id"`
	Status           string               `json:"status"`
	ErrorMessage     string               `json:"error_message,omitempty"`
	Progress         int                  `json:"progress"`
	Formats          []string             `json:"formats"`
	Container        string               `json:"container"`
	OutputFiles      []OutputFileResponse `json:"output_files,omitempty"`
	DurationSeconds  float64              `json:"duration_seconds"`
	EstimatedSeconds int                  `json:"estimated_seconds"`
	CreatedAt        string               `json:"created_at"`
	StartedAt        string               `json:"started_at"`
	CompletedAt      string               `json:"completed_at"`
}

// ListHistoryOutput is a page of archived jobs.
type ListHistoryOutput struct {
	Body struct {
		Jobs []HistoryRecordResponse `json:"jobs"`
	}
}

// Register registers the job routes on the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/api/v1/jobs",
		Summary:       "Create a transcode job",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusCreated,
	}, h.createJob)

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get a transcode job",
		Tags:        []string{"Jobs"},
	}, h.getJob)

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs",
		Summary:     "List transcode jobs",
		Tags:        []string{"Jobs"},
	}, h.listJobs)

	huma.Register(api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs/{id}/cancel",
		Summary:     "Cancel a transcode job",
		Tags:        []string{"Jobs"},
	}, h.cancelJob)

	if h.history != nil {
		huma.Register(api, huma.Operation{
			OperationID: "list-job-history",
			Method:      http.MethodGet,
			Path:        "/api/v1/jobs/history",
			Summary:     "List archived transcode jobs",
			Tags:        []string{"Jobs"},
		}, h.listHistory)
	}
}

func (h *JobHandler) createJob(ctx context.Context, input *CreateJobInput) (*JobOutput, error) {
	if err := validate.Struct(input.Body); err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid job request", err)
	}

	formats := make([]models.VideoFormat, 0, len(input.Body.Formats))
	for _, f := range input.Body.Formats {
		formats = append(formats, models.VideoFormat{
			Name:        f.Name,
			Width:       f.Width,
			Height:      f.Height,
			VideoCodec:  f.VideoCodec,
			BitrateKbps: f.BitrateKbps,
		})
	}

	req := manager.CreateJobRequest{
		VideoID:   input.Body.VideoID,
		Formats:   formats,
		Container: input.Body.Container,
	}
	if o := input.Body.Options; o != nil {
		req.Options = models.TranscodeOptions{
			AudioCodec:       o.AudioCodec,
			AudioBitrateKbps: o.AudioBitrateKbps,
			FrameRate:        o.FrameRate,
			TwoPass:          o.TwoPass,
			CRF:              o.CRF,
		}
	}

	job, err := h.manager.CreateJob(ctx, req)
	switch {
	case errors.Is(err, models.ErrVideoNotFound):
		return nil, huma.Error404NotFound("Video not found")
	case errors.Is(err, models.ErrUnknownFormat), errors.Is(err, models.ErrInvalidFormat):
		return nil, huma.Error400BadRequest(err.Error())
	case err != nil:
		h.logger.Error("creating job failed",
			slog.String("video_id", input.Body.VideoID),
			slog.String("error", err.Error()),
		)
		return nil, huma.Error500InternalServerError("creating job failed")
	}

	return &JobOutput{Body: jobResponse(job.Snapshot())}, nil
}

func (h *JobHandler) getJob(ctx context.Context, input *GetJobInput) (*JobOutput, error) {
	job, err := h.registry.Get(input.ID)
	if err == nil {
		return &JobOutput{Body: jobResponse(job.Snapshot())}, nil
	}

	// The live registry only holds jobs from this process lifetime; terminal
	// jobs from earlier runs live in the archive.
	if h.history != nil {
		record, histErr := h.history.Get(ctx, input.ID)
		if histErr == nil {
			resp, convErr := historyResponse(record)
			if convErr != nil {
				return nil, huma.Error500InternalServerError("loading archived job failed")
			}
			return &JobOutput{Body: resp.asJobResponse()}, nil
		}
	}

	return nil, huma.Error404NotFound("Job not found")
}

func (h *JobHandler) listJobs(_ context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	statuses := make([]models.JobStatus, 0, len(input.Status))
	for _, s := range input.Status {
		status := models.JobStatus(s)
		if !status.Valid() {
			return nil, huma.Error400BadRequest("unknown status: " + s)
		}
		statuses = append(statuses, status)
	}

	result := h.registry.List(registry.ListRequest{
		Statuses:  statuses,
		PageToken: input.PageToken,
		Limit:     input.Limit,
	})

	out := &ListJobsOutput{}
	out.Body.Jobs = make([]JobResponse, 0, len(result.Jobs))
	for _, job := range result.Jobs {
		out.Body.Jobs = append(out.Body.Jobs, jobResponse(job.Snapshot()))
	}
	out.Body.NextPageToken = result.NextToken
	out.Body.TotalCount = h.registry.Count()
	return out, nil
}

func (h *JobHandler) cancelJob(_ context.Context, input *GetJobInput) (*CancelJobOutput, error) {
	cancelled, err := h.manager.Cancel(input.ID)
	if errors.Is(err, models.ErrJobNotFound) {
		return nil, huma.Error404NotFound("Job not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("cancelling job failed")
	}

	job, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("Job not found")
	}

	out := &CancelJobOutput{}
	out.Body.Cancelled = cancelled
	out.Body.Job = jobResponse(job.Snapshot())
	return out, nil
}

func (h *JobHandler) listHistory(ctx context.Context, input *ListHistoryInput) (*ListHistoryOutput, error) {
	var (
		records []history.JobRecord
		err     error
	)
	if input.VideoID != "" {
		records, err = h.history.ListByVideo(ctx, input.VideoID)
	} else {
		records, err = h.history.List(ctx, input.Limit)
	}
	if err != nil {
		h.logger.Error("listing job history failed", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("listing job history failed")
	}

	out := &ListHistoryOutput{}
	out.Body.Jobs = make([]HistoryRecordResponse, 0, len(records))
	for i := range records {
		resp, convErr := historyResponse(&records[i])
		if convErr != nil {
			return nil, huma.Error500InternalServerError("loading archived job failed")
		}
		out.Body.Jobs = append(out.Body.Jobs, resp)
	}
	return out, nil
}

// historyResponse converts an archived record to its wire form.
func historyResponse(record *history.JobRecord) (HistoryRecordResponse, error) {
	outputs, err := record.OutputFiles()
	if err != nil {
		return HistoryRecordResponse{}, err
	}

	var outputResponses []OutputFileResponse
	for _, of := range outputs {
		outputResponses = append(outputResponses, OutputFileResponse{
			Format:          of.Format,
			Location:        of.Location,
			SizeBytes:       of.SizeBytes,
			DurationSeconds: of.DurationSeconds,
			BitrateKbps:     of.BitrateKbps,
		})
	}

	return HistoryRecordResponse{
		ID:               record.ID,
		VideoID:          record.VideoID,
		Status:           record.Status,
		ErrorMessage:     record.ErrorMessage,
		Progress:         record.Progress,
		Formats:          record.FormatNames(),
		Container:        record.Container,
		OutputFiles:      outputResponses,
		DurationSeconds:  record.DurationSeconds,
		EstimatedSeconds: record.EstimatedSeconds,
		CreatedAt:        record.CreatedAt.Format(timeFormat),
		StartedAt:        record.StartedAt.Format(timeFormat),
		CompletedAt:      record.CompletedAt.Format(timeFormat),
	}, nil
}

// asJobResponse presents an archived record through the live job shape.
func (r HistoryRecordResponse) asJobResponse() JobResponse {
	resp := JobResponse{
		ID:               r.ID,
		VideoID:          r.VideoID,
		Status:           r.Status,
		Progress:         r.Progress,
		ErrorMessage:     r.ErrorMessage,
		Formats:          r.Formats,
		Container:        r.Container,
		OutputFiles:      r.OutputFiles,
		EstimatedSeconds: r.EstimatedSeconds,
	}
	if t, err := parseTime(r.CreatedAt); err == nil {
		resp.CreatedAt = t
	}
	if t, err := parseTime(r.StartedAt); err == nil {
		resp.StartTime = epochMillis(t)
	}
	if t, err := parseTime(r.CompletedAt); err == nil {
		resp.EndTime = epochMillis(t)
	}
	return resp
}
