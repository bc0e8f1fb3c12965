package jobhub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lecture-avatar/constant"
	"lecture-avatar/entities"
)

func snapshot(id string, status constant.TaskStatus, progress int) *entities.Job {
	return &entities.Job{ID: id, Kind: constant.TaskKindText, Status: status, Progress: progress}
}

func receive(t *testing.T, ch <-chan *entities.Job) *entities.Job {
	t.Helper()
	select {
	case job := <-ch:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job snapshot")
		return nil
	}
}

func TestHubDeliversTransitions(t *testing.T) {
	hub := New()
	updates, unsubscribe := hub.Subscribe("text_1")
	defer unsubscribe()

	require.Equal(t, 1, hub.Subscribers("text_1"))

	hub.Notify(snapshot("text_1", constant.TaskStatusStarted, 10))
	hub.Notify(snapshot("text_1", constant.TaskStatusStarted, 60))

	assert.Equal(t, 10, receive(t, updates).Progress)
	assert.Equal(t, 60, receive(t, updates).Progress)
}

func TestHubIgnoresOtherJobs(t *testing.T) {
	hub := New()
	updates, unsubscribe := hub.Subscribe("text_1")
	defer unsubscribe()

	hub.Notify(snapshot("audio_2", constant.TaskStatusStarted, 50))

	select {
	case job := <-updates:
		t.Fatalf("received snapshot for unrelated job: %+v", job)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubClosesAfterTerminalSnapshot(t *testing.T) {
	hub := New()
	updates, unsubscribe := hub.Subscribe("text_1")
	defer unsubscribe()

	hub.Notify(snapshot("text_1", constant.TaskStatusCompleted, 100))

	job := receive(t, updates)
	require.Equal(t, constant.TaskStatusCompleted, job.Status)

	_, open := <-updates
	assert.False(t, open, "channel should be closed after a terminal snapshot")
	assert.Equal(t, 0, hub.Subscribers("text_1"))
}

func TestHubSkipsSlowSubscriber(t *testing.T) {
	hub := New()
	updates, unsubscribe := hub.Subscribe("text_1")
	defer unsubscribe()

	// Nobody reads, so everything past the buffer is dropped instead of
	// blocking the pipeline.
	for i := 0; i < subscriberBuffer+8; i++ {
		hub.Notify(snapshot("text_1", constant.TaskStatusStarted, i))
	}

	assert.Len(t, updates, subscriberBuffer)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := New()
	_, unsubscribe := hub.Subscribe("text_1")

	unsubscribe()
	unsubscribe()

	assert.Equal(t, 0, hub.Subscribers("text_1"))
	hub.Notify(snapshot("text_1", constant.TaskStatusCompleted, 100))
}

func TestUnsubscribeAfterTerminalClose(t *testing.T) {
	hub := New()
	updates, unsubscribe := hub.Subscribe("text_1")

	hub.Notify(snapshot("text_1", constant.TaskStatusFailed, 0))
	receive(t, updates)

	// The terminal notification already closed the channel; unsubscribing
	// afterwards must not close it twice.
	unsubscribe()
}
