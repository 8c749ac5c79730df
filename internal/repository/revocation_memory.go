package repository

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/reeltap/internal/domain"
)

type memoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]domain.RevocationEntry
	now     func() time.Time
}

// NewMemoryRevocationStore returns a process-local store. It is not durable.
func NewMemoryRevocationStore() RevocationStore {
	return newMemoryRevocationStore(time.Now)
}

// NewMemoryRevocationStoreWithClock is NewMemoryRevocationStore with its own time source.
func NewMemoryRevocationStoreWithClock(now func() time.Time) RevocationStore {
	return newMemoryRevocationStore(now)
}

func newMemoryRevocationStore(now func() time.Time) *memoryRevocationStore {
	return &memoryRevocationStore{entries: make(map[string]domain.RevocationEntry), now: now}
}

func (s *memoryRevocationStore) Revoke(ctx context.Context, entry domain.RevocationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[entry.JTI]; ok && existing.Live(s.now()) {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	s.entries[entry.JTI] = entry
	return nil
}

func (s *memoryRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[jti]
	return ok && entry.Live(s.now()), nil
}

func (s *memoryRevocationStore) Purge(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for jti, entry := range s.entries {
		if !entry.Live(now) {
			delete(s.entries, jti)
			purged++
		}
	}
	return purged, nil
}

func (s *memoryRevocationStore) Ping(context.Context) error {
	return nil
}
