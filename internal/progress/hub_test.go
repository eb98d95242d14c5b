package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaspool/transcoded/internal/models"
)

func TestSubscribeReceivesPublished(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe("job1")
	defer cancel()

	hub.Publish(models.JobSnapshot{ID: "job1", Progress: 42})

	select {
	case snap := <-events:
		assert.Equal(t, 42, snap.Progress)
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}
}

func TestPublishOtherJobNotDelivered(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe("job1")
	defer cancel()

	hub.Publish(models.JobSnapshot{ID: "job2", Progress: 10})

	select {
	case <-events:
		t.Fatal("received snapshot for another job")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLatestWinsCoalescing(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe("job1")
	defer cancel()

	// No reader draining: later snapshots replace earlier ones.
	for p := 1; p <= 5; p++ {
		hub.Publish(models.JobSnapshot{ID: "job1", Progress: p * 10})
	}

	select {
	case snap := <-events:
		assert.Equal(t, 50, snap.Progress)
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}
}

func TestPublishContendedDeliversTerminal(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe("job1")
	defer cancel()

	// Hammer the full buffer from several publishers so sends race drains,
	// then publish the terminal snapshot. It must still come through.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := 1; p < 100; p++ {
				hub.Publish(models.JobSnapshot{ID: "job1", Status: models.JobStatusInProgress, Progress: p})
			}
		}()
	}
	wg.Wait()

	hub.Publish(models.JobSnapshot{ID: "job1", Status: models.JobStatusCompleted, Progress: 100})

	deadline := time.After(time.Second)
	for {
		select {
		case snap := <-events:
			if snap.Status == models.JobStatusCompleted {
				return
			}
		case <-deadline:
			t.Fatal("terminal snapshot never delivered")
		}
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewHub(nil)

	a, cancelA := hub.Subscribe("job1")
	b, cancelB := hub.Subscribe("job1")
	defer cancelA()
	defer cancelB()

	require.Equal(t, 2, hub.SubscriberCount("job1"))

	hub.Publish(models.JobSnapshot{ID: "job1", Progress: 7})

	for _, events := range []<-chan models.JobSnapshot{a, b} {
		select {
		case snap := <-events:
			assert.Equal(t, 7, snap.Progress)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed snapshot")
		}
	}
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe("job1")
	cancel()

	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount("job1"))

	// Idempotent.
	cancel()

	// Publishing after cancel must not panic.
	hub.Publish(models.JobSnapshot{ID: "job1", Progress: 99})
}

func TestJobObserverFeedsHub(t *testing.T) {
	hub := NewHub(nil)

	format, err := models.StandardFormat("720p")
	require.NoError(t, err)
	job := models.NewTranscodeJob(models.NewJobID(), "vid1", "in.mp4", "/out",
		[]models.VideoFormat{format}, "mp4", models.TranscodeOptions{}, models.VideoMetadata{}, 30)
	job.Observe(hub.Publish)

	events, cancel := hub.Subscribe(job.ID())
	defer cancel()

	job.Start()

	select {
	case snap := <-events:
		assert.Equal(t, models.JobStatusInProgress, snap.Status)
	case <-time.After(time.Second):
		t.Fatal("no snapshot from job observer")
	}
}
