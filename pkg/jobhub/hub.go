package jobhub

import (
	"sync"

	"lecture-avatar/entities"
)

// subscriberBuffer bounds how many snapshots a slow reader can fall behind
// before updates are dropped for it.
const subscriberBuffer = 16

// Hub fans job state snapshots out to per-job subscribers. The orchestrator
// calls Notify after every transition; websocket handlers subscribe by
// job id.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan *entities.Job]struct{}
}

func New() *Hub {
	return &Hub{subs: make(map[string]map[chan *entities.Job]struct{})}
}

// Subscribe registers interest in one job's transitions. The returned
// channel closes after a terminal snapshot has been delivered or when the
// unsubscribe function is called.
func (h *Hub) Subscribe(jobID string) (<-chan *entities.Job, func()) {
	ch := make(chan *entities.Job, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[chan *entities.Job]struct{})
		h.subs[jobID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		set, ok := h.subs[jobID]
		if !ok {
			return
		}
		if _, live := set[ch]; !live {
			return
		}
		delete(set, ch)
		close(ch)
		if len(set) == 0 {
			delete(h.subs, jobID)
		}
	}
	return ch, unsubscribe
}

// Notify delivers a snapshot to every subscriber of job.ID. Subscribers that
// cannot keep up are skipped rather than blocking the pipeline. A terminal
// snapshot closes the job's subscriptions after delivery.
func (h *Hub) Notify(job *entities.Job) {
	if job == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[job.ID]
	if !ok {
		return
	}
	for ch := range set {
		select {
		case ch <- job:
		default:
		}
	}
	if job.Status.Terminal() {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, job.ID)
	}
}

// Subscribers reports how many readers are attached to a job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}
