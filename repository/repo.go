package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lecture-avatar/entities"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrNotOwner = errors.New("job update token mismatch")
)

// OwnerToken authorizes updates to a single job. Create hands it to the
// caller; only the holder may Update that job afterwards.
type OwnerToken string

// JobStore is the job table. Get and List return deep-copied snapshots, so
// readers never share memory with the stored record. Update runs apply on
// the live record under the store's lock and returns the resulting snapshot.
type JobStore interface {
	Create(ctx context.Context, job *entities.Job) (OwnerToken, error)
	Get(ctx context.Context, id string) (*entities.Job, error)
	List(ctx context.Context) ([]*entities.Job, error)
	Update(ctx context.Context, id string, token OwnerToken, apply func(*entities.Job)) (*entities.Job, error)
}

type memoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*entities.Job
	tokens map[string]OwnerToken
}

// NewMemoryStore returns the in-process job table. Records accumulate for
// the process lifetime; nothing is evicted.
func NewMemoryStore() JobStore {
	return &memoryStore{
		jobs:   make(map[string]*entities.Job),
		tokens: make(map[string]OwnerToken),
	}
}

func (s *memoryStore) Create(ctx context.Context, job *entities.Job) (OwnerToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return "", fmt.Errorf("job %s already exists", job.ID)
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	token := OwnerToken(uuid.NewString())
	s.jobs[job.ID] = job.Clone()
	s.tokens[job.ID] = token
	return token, nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*entities.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *memoryStore) List(ctx context.Context) ([]*entities.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) Update(ctx context.Context, id string, token OwnerToken, apply func(*entities.Job)) (*entities.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.tokens[id] != token {
		return nil, ErrNotOwner
	}

	apply(job)
	job.UpdatedAt = time.Now()
	return job.Clone(), nil
}
