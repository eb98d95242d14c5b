package handlers

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaspool/transcoded/internal/models"
	"github.com/mediaspool/transcoded/internal/progress"
	"github.com/mediaspool/transcoded/internal/registry"
)

func newEventsJob(t *testing.T, reg registry.Registry, hub *progress.Hub) *models.TranscodeJob {
	t.Helper()
	formats, err := models.ExpandStandardFormats([]string{"720p"})
	require.NoError(t, err)

	job := models.NewTranscodeJob(models.NewJobID(), models.NewVideoID(), "/in.mp4", "/out", formats, "mp4", models.TranscodeOptions{}, models.VideoMetadata{DurationSeconds: 60}, 60)
	job.Observe(hub.Publish)
	reg.Save(job)
	return job
}

// readEvent reads lines until one SSE data payload is decoded.
func readEvent(t *testing.T, br *bufio.Reader) JobResponse {
	t.Helper()
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			var resp JobResponse
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &resp))
			// Consume the frame's trailing blank line (the \n\n terminator).
			blank, err := br.ReadString('\n')
			require.NoError(t, err)
			require.Equal(t, "\n", blank)
			return resp
		}
	}
}

func TestEventStream(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	hub := progress.NewHub(nil)
	job := newEventsJob(t, reg, hub)

	r := chi.NewRouter()
	NewEventsHandler(reg, hub, nil).Routes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)

	// Initial snapshot arrives before any transition.
	event := readEvent(t, br)
	assert.Equal(t, "queued", event.Status)

	require.True(t, job.Start())
	event = readEvent(t, br)
	assert.Equal(t, "in_progress", event.Status)

	job.SetProgress(50, "Processing 720p")
	event = readEvent(t, br)
	assert.Equal(t, 50, event.Progress)
	assert.Equal(t, "Processing 720p", event.CurrentStage)

	require.True(t, job.Complete())
	event = readEvent(t, br)
	assert.Equal(t, "completed", event.Status)
	assert.Equal(t, 100, event.Progress)

	// The stream closes after the terminal event.
	_, err = br.ReadString('\n')
	require.Error(t, err)
}

func TestEventStreamTerminalJob(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	hub := progress.NewHub(nil)
	job := newEventsJob(t, reg, hub)
	require.True(t, job.Cancel())

	r := chi.NewRouter()
	NewEventsHandler(reg, hub, nil).Routes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	event := readEvent(t, br)
	assert.Equal(t, "cancelled", event.Status)

	// A terminal job yields exactly one event.
	_, err = br.ReadString('\n')
	require.Error(t, err)
}

func TestEventStreamUnknownJob(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	hub := progress.NewHub(nil)

	r := chi.NewRouter()
	NewEventsHandler(reg, hub, nil).Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+models.NewJobID()+"/events", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
