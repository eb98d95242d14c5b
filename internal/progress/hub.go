// Package progress fans job state changes out to subscribers, backing the
// server's event stream endpoints.
package progress

import (
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/mediaspool/transcoded/internal/models"
)

// subscriber is one listener on a job's updates.
type subscriber struct {
	id     string
	events chan models.JobSnapshot
}

// Hub broadcasts job snapshots to per-job subscribers.
//
// Delivery is latest-wins: a slow consumer drops intermediate snapshots and
// always receives the newest one, so a stalled SSE client can never back up
// an encode worker.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscriber // jobID -> subID -> sub
	logger      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]*subscriber),
		logger:      logger.With(slog.String("component", "progress_hub")),
	}
}

// Subscribe registers a listener for one job's updates. The returned cancel
// func unregisters the listener and closes the channel; it is safe to call
// more than once.
func (h *Hub) Subscribe(jobID string) (<-chan models.JobSnapshot, func()) {
	sub := &subscriber{
		id:     ulid.Make().String(),
		events: make(chan models.JobSnapshot, 1),
	}

	h.mu.Lock()
	subs, ok := h.subscribers[jobID]
	if !ok {
		subs = make(map[string]*subscriber)
		h.subscribers[jobID] = subs
	}
	subs[sub.id] = sub
	h.mu.Unlock()

	h.logger.Debug("subscriber added", slog.String("job_id", jobID), slog.String("sub_id", sub.id))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subscribers[jobID]; ok {
				delete(subs, sub.id)
				if len(subs) == 0 {
					delete(h.subscribers, jobID)
				}
			}
			h.mu.Unlock()
			close(sub.events)
		})
	}
	return sub.events, cancel
}

// Publish delivers a snapshot to the job's subscribers without blocking.
func (h *Hub) Publish(snap models.JobSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers[snap.ID] {
		// Drain-then-send until this snapshot lands: a concurrent publish can
		// refill the slot between the drain and the send, and giving up there
		// would drop this snapshot entirely. Both operations are non-blocking,
		// so each pass either frees the slot or finishes.
		for {
			select {
			case sub.events <- snap:
			default:
				select {
				case <-sub.events:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount returns the number of listeners for a job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[jobID])
}
