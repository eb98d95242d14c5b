package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mediaspool/transcoded/internal/models"
	"github.com/mediaspool/transcoded/internal/progress"
	"github.com/mediaspool/transcoded/internal/registry"
)

// defaultHeartbeat keeps idle SSE connections alive through proxies.
const defaultHeartbeat = 30 * time.Second

// EventsHandler streams job status updates over Server-Sent Events.
// SSE needs direct control of flushing, so it mounts on chi rather than
// going through the OpenAPI layer.
type EventsHandler struct {
	registry  registry.Registry
	hub       *progress.Hub
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(reg registry.Registry, hub *progress.Hub, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		registry:  reg,
		hub:       hub,
		heartbeat: defaultHeartbeat,
		logger:    logger.With(slog.String("component", "events_handler")),
	}
}

// Routes mounts the event stream endpoint on r.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/api/v1/jobs/{id}/events", h.stream)
}

// stream sends the job's current state, then every subsequent update until
// the job reaches a terminal state or the client disconnects.
func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.registry.Get(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	// Subscribe before snapshotting so no transition slips between the
	// initial event and the live stream.
	events, cancel := h.hub.Subscribe(jobID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)

	snap := job.Snapshot()
	if err := writeEvent(w, rc, snap); err != nil {
		return
	}
	if snap.Status.IsTerminal() {
		return
	}

	h.logger.Debug("event stream opened", slog.String("job_id", jobID))

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("event stream client disconnected", slog.String("job_id", jobID))
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case snap, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, rc, snap); err != nil {
				return
			}
			if snap.Status.IsTerminal() {
				h.logger.Debug("event stream closed on terminal state",
					slog.String("job_id", jobID),
					slog.String("status", string(snap.Status)),
				)
				return
			}
		}
	}
}

// writeEvent writes one SSE status event and flushes it to the client.
func writeEvent(w http.ResponseWriter, rc *http.ResponseController, snap models.JobSnapshot) error {
	payload, err := json.Marshal(jobResponse(snap))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return rc.Flush()
}
