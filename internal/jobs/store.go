package jobs

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrConflict is returned when an Update could not be applied because the
// stored job kept changing underneath it.
var ErrConflict = eris.New("jobs: concurrent update conflict")

// UpdateFunc computes the next stored job from the current one. cur is nil
// when no job is stored and is a private copy the function may modify.
// Returning nil deletes the entry. Returning an error aborts the update and
// leaves the store untouched.
type UpdateFunc func(cur *Job) (*Job, error)

// Store holds at most one Job per owner.
type Store interface {
	Get(ctx context.Context, ownerID string) (*Job, error)
	Set(ctx context.Context, job *Job) error
	Delete(ctx context.Context, ownerID string) error
	// Update applies fn atomically and returns what was stored.
	Update(ctx context.Context, ownerID string, fn UpdateFunc) (*Job, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Get(_ context.Context, ownerID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[ownerID].Clone(), nil
}

func (s *MemoryStore) Set(_ context.Context, job *Job) error {
	if job == nil || job.OwnerID == "" {
		return eris.New("jobs: set requires a job with an owner")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.OwnerID] = job.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, ownerID)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, ownerID string, fn UpdateFunc) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.jobs[ownerID].Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(s.jobs, ownerID)
		return nil, nil
	}
	next.OwnerID = ownerID
	s.jobs[ownerID] = next.Clone()
	return next, nil
}

// Len returns the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
