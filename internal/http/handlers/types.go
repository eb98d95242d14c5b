// Package handlers implements the transcoded HTTP API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mediaspool/transcoded/internal/models"
)

// OutputFileResponse describes one produced rendition.
type OutputFileResponse struct {
	Format          string  `json:"format"`
	Location        string  `json:"location"`
	SizeBytes       int64   `json:"size"`
	DurationSeconds float64 `json:"duration"`
	BitrateKbps     int     `json:"bitrate"`
}

// JobResponse is the wire form of a job snapshot. Start and end times are
// epoch milliseconds, zero until the transition happens.
type JobResponse struct {
	ID               string               `json:"job_id"`
	VideoID          string               `json:"video_id"`
	Status           string               `json:"status"`
	Progress         int                  `json:"progress"`
	CurrentStage     string               `json:"current_stage,omitempty"`
	ErrorMessage     string               `json:"error_message,omitempty"`
	Formats          []string             `json:"formats"`
	Container        string               `json:"container"`
	OutputFiles      []OutputFileResponse `json:"output_files,omitempty"`
	EstimatedSeconds int                  `json:"estimated_time_remaining_seconds"`
	CreatedAt        time.Time            `json:"created_at"`
	StartTime        int64                `json:"start_time"`
	EndTime          int64                `json:"end_time"`
}

// jobResponse converts a snapshot to its wire form.
func jobResponse(snap models.JobSnapshot) JobResponse {
	names := make([]string, 0, len(snap.Formats))
	for _, f := range snap.Formats {
		names = append(names, f.Name)
	}

	var outputs []OutputFileResponse
	for _, of := range snap.OutputFiles {
		outputs = append(outputs, OutputFileResponse{
			Format:          of.Format,
			Location:        of.Location,
			SizeBytes:       of.SizeBytes,
			DurationSeconds: of.DurationSeconds,
			BitrateKbps:     of.BitrateKbps,
		})
	}

	return JobResponse{
		ID:               snap.ID,
		VideoID:          snap.VideoID,
		Status:           string(snap.Status),
		Progress:         snap.Progress,
		CurrentStage:     snap.CurrentStage,
		ErrorMessage:     snap.ErrorMessage,
		Formats:          names,
		Container:        snap.Container,
		OutputFiles:      outputs,
		EstimatedSeconds: snap.EstimatedSeconds,
		CreatedAt:        snap.CreatedAt,
		StartTime:        epochMillis(snap.StartedAt),
		EndTime:          epochMillis(snap.CompletedAt),
	}
}

// epochMillis converts a timestamp to epoch milliseconds, zero when unset.
func epochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// timeFormat is the wire format of archive timestamps.
const timeFormat = time.RFC3339

// parseTime parses a wire timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// ErrorResponse is the JSON error body of the raw (non-huma) endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
