// Package memory holds in-memory store implementations, used in tests and
// in single-process runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"news-trader/internal/domain"
	"news-trader/internal/storage"
)

// ClassificationStore is an in-memory implementation of
// storage.ClassificationStore.
type ClassificationStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.Classification // keyed by classification id
	order []string                          // insertion order
}

// NewClassificationStore creates a new in-memory classification store.
func NewClassificationStore() *ClassificationStore {
	return &ClassificationStore{
		data: make(map[string]*domain.Classification),
	}
}

// Insert adds a confirmed classification. Returns ErrDuplicateKey if the id
// exists.
func (s *ClassificationStore) Insert(_ context.Context, c *domain.Classification) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	classificationCopy := *c
	s.data[c.ID] = &classificationCopy
	s.order = append(s.order, c.ID)
	return nil
}

// GetByID retrieves a classification by id. Returns ErrNotFound if not
// exists.
func (s *ClassificationStore) GetByID(_ context.Context, id string) (*domain.Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	classificationCopy := *c
	return &classificationCopy, nil
}

// GetRecent retrieves the newest classifications, newest first.
func (s *ClassificationStore) GetRecent(_ context.Context, limit int) ([]*domain.Classification, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Classification
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		classificationCopy := *s.data[s.order[i]]
		result = append(result, &classificationCopy)
	}
	return result, nil
}

// GetByTimeRange retrieves classifications confirmed within [start, end]
// (inclusive), oldest first.
func (s *ClassificationStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Classification
	for _, c := range s.data {
		if c.Timestamp >= start && c.Timestamp <= end {
			classificationCopy := *c
			result = append(result, &classificationCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ClassificationStore = (*ClassificationStore)(nil)
