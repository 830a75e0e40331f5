package memory

import (
	"context"
	"sort"
	"sync"

	"news-trader/internal/domain"
	"news-trader/internal/storage"
)

// ValuationStore is an in-memory implementation of storage.ValuationStore.
type ValuationStore struct {
	mu     sync.RWMutex
	points []domain.ValuationPoint
}

// NewValuationStore creates a new in-memory valuation store.
func NewValuationStore() *ValuationStore {
	return &ValuationStore{}
}

// RecordValuation appends one observation.
func (s *ValuationStore) RecordValuation(_ context.Context, point domain.ValuationPoint) error {
	if point.Stage == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, point)
	return nil
}

// GetByClassificationID retrieves observations tied to a classification,
// oldest first.
func (s *ValuationStore) GetByClassificationID(_ context.Context, classificationID string) ([]*domain.ValuationPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ValuationPoint
	for i := range s.points {
		if s.points[i].ClassificationID == classificationID {
			pointCopy := s.points[i]
			result = append(result, &pointCopy)
		}
	}

	sortByObservedAt(result)
	return result, nil
}

// GetByTimeRange retrieves observations within [start, end] (inclusive,
// unix milliseconds), oldest first.
func (s *ValuationStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.ValuationPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ValuationPoint
	for i := range s.points {
		if s.points[i].ObservedAt >= start && s.points[i].ObservedAt <= end {
			pointCopy := s.points[i]
			result = append(result, &pointCopy)
		}
	}

	sortByObservedAt(result)
	return result, nil
}

func sortByObservedAt(points []*domain.ValuationPoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].ObservedAt < points[j].ObservedAt
	})
}

// Verify interface compliance at compile time.
var _ storage.ValuationStore = (*ValuationStore)(nil)
