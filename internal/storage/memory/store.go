package memory

import (
	"context"
	"sync"

	"github.com/midway-labs/midway/internal/pattern"
	"github.com/midway-labs/midway/internal/storage"
)

// Store is an in-memory PatternStore. Useful for tests and for running
// without persistence.
type Store struct {
	mu      sync.RWMutex
	learned []pattern.LearnedRecord
	usage   []pattern.Usage
}

var _ storage.PatternStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{}
}

func (s *Store) SaveLearned(ctx context.Context, records []pattern.LearnedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learned = append([]pattern.LearnedRecord(nil), records...)
	return nil
}

func (s *Store) LoadLearned(ctx context.Context) ([]pattern.LearnedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pattern.LearnedRecord(nil), s.learned...), nil
}

func (s *Store) SaveUsage(ctx context.Context, records []pattern.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append([]pattern.Usage(nil), records...)
	return nil
}

func (s *Store) LoadUsage(ctx context.Context) ([]pattern.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pattern.Usage(nil), s.usage...), nil
}

func (s *Store) Close() error {
	return nil
}
