package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"news-trader/internal/domain"
	"news-trader/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.TradeRecord // keyed by classification id
	order []string                       // insertion order
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// Insert adds a trade. Returns ErrDuplicateKey if a trade for the
// classification id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.ClassificationID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ClassificationID]; exists {
		return storage.ErrDuplicateKey
	}

	tradeCopy := *t
	s.data[t.ClassificationID] = &tradeCopy
	s.order = append(s.order, t.ClassificationID)
	return nil
}

// GetByClassificationID retrieves the trade for a classification. Returns
// ErrNotFound if not exists.
func (s *TradeStore) GetByClassificationID(_ context.Context, classificationID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[classificationID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tradeCopy := *t
	return &tradeCopy, nil
}

// GetRecent retrieves the newest trades, newest first.
func (s *TradeStore) GetRecent(_ context.Context, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		tradeCopy := *s.data[s.order[i]]
		result = append(result, &tradeCopy)
	}
	return result, nil
}

// MarkEvaluated writes the profitability verdict exactly once.
func (s *TradeStore) MarkEvaluated(_ context.Context, classificationID string, valueAfter decimal.Decimal, isProfitable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[classificationID]
	if !exists {
		return storage.ErrNotFound
	}
	if t.HasBeenEvaluated {
		return storage.ErrAlreadyEvaluated
	}

	t.PortfolioValueAfter = valueAfter
	t.IsProfitable = isProfitable
	t.HasBeenEvaluated = true
	return nil
}

// Verify interface compliance at compile time.
var _ storage.TradeStore = (*TradeStore)(nil)
