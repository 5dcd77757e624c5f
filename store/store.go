// Package store persists product review analyses keyed by ASIN.
//
// Three backends are provided: an in-memory map for tests and single-node
// deployments, PostgreSQL for durable storage, and Redis for shared caching
// across instances. All backends treat entries past their expiry as absent.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reviewlens/reviewlens/models"
)

// ErrNotFound is returned when deleting an analysis that does not exist.
var ErrNotFound = errors.New("analysis not found")

// Store abstracts the analysis cache backend.
type Store interface {
	// Get returns the cached analysis for an ASIN. The boolean reports
	// whether a fresh entry was found; expired entries are misses.
	Get(ctx context.Context, asin string) (*models.ProductAnalysis, bool, error)

	// Put inserts or replaces the analysis for its ASIN.
	Put(ctx context.Context, entry *models.ProductAnalysis) error

	// Delete removes the analysis for an ASIN, returning ErrNotFound
	// when no entry exists.
	Delete(ctx context.Context, asin string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// MemoryStore is a simple thread-safe map store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.ProductAnalysis
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*models.ProductAnalysis)}
}

func (s *MemoryStore) Get(ctx context.Context, asin string) (*models.ProductAnalysis, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[asin]
	s.mu.RUnlock()

	if !ok || entry.Expired(time.Now()) {
		return nil, false, nil
	}
	return entry, true, nil
}

func (s *MemoryStore) Put(ctx context.Context, entry *models.ProductAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ASIN] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, asin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[asin]; !ok {
		return ErrNotFound
	}
	delete(s.entries, asin)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored entries, including expired ones
// that have not been overwritten yet.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
