// Package lease provides the mutual-exclusion lease that guarantees
// at-most-one concurrent execution per trigger across worker processes.
//
// A lease is a named abstraction over one atomic conditional update:
// acquire succeeds when the key is unheld, or when the holder's timestamp is
// older than the staleness threshold (a crashed worker's lease must not
// block the trigger forever). No in-process mutex can serve here because
// workers may be separate processes.
package lease

import (
	"context"
	"sync"
	"time"
)

// DefaultStaleness is the lock-recovery threshold: a lease held longer than
// this is treated as abandoned by a crashed worker.
const DefaultStaleness = 5 * time.Minute

type Store interface {
	// Acquire attempts to take the lease. It returns false, without error,
	// when another worker holds a fresh lease; false-with-skip is a normal
	// outcome, not a failure.
	Acquire(ctx context.Context, key string, staleness time.Duration) (bool, error)

	// Release returns the lease. Releasing an unheld lease is a no-op.
	Release(ctx context.Context, key string) error
}

// MemoryStore is the in-process implementation used by tests and
// single-process runs.
type MemoryStore struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (s *MemoryStore) Acquire(_ context.Context, key string, staleness time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()

	lockedAt, taken := s.held[key]
	if taken && now.Sub(lockedAt) < staleness {
		return false, nil
	}

	s.held[key] = now

	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.held, key)

	return nil
}
