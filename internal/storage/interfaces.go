// Package storage defines the persistence interfaces for the pipeline's
// local mirror of on-chain state. The ledger stays authoritative; these
// stores exist for querying, serving, and analytics.
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"news-trader/internal/domain"
)

// ClassificationStore provides access to confirmed classifications.
type ClassificationStore interface {
	// Insert adds a confirmed classification. Returns ErrDuplicateKey if the
	// id exists.
	Insert(ctx context.Context, c *domain.Classification) error

	// GetByID retrieves a classification by its id. Returns ErrNotFound if
	// not exists.
	GetByID(ctx context.Context, id string) (*domain.Classification, error)

	// GetRecent retrieves the newest classifications, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.Classification, error)

	// GetByTimeRange retrieves classifications confirmed within [start, end]
	// (inclusive, unix seconds), oldest first.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Classification, error)
}

// TradeStore provides access to executed trades.
type TradeStore interface {
	// Insert adds a trade. Returns ErrDuplicateKey if a trade for the
	// classification id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByClassificationID retrieves the trade for a classification.
	// Returns ErrNotFound if not exists.
	GetByClassificationID(ctx context.Context, classificationID string) (*domain.TradeRecord, error)

	// GetRecent retrieves the newest trades, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.TradeRecord, error)

	// MarkEvaluated writes the profitability verdict exactly once. Returns
	// ErrNotFound if no trade exists, ErrAlreadyEvaluated on a second write.
	MarkEvaluated(ctx context.Context, classificationID string, valueAfter decimal.Decimal, isProfitable bool) error
}

// ValuationStore provides access to the portfolio valuation timeseries.
type ValuationStore interface {
	// RecordValuation appends one observation.
	RecordValuation(ctx context.Context, point domain.ValuationPoint) error

	// GetByClassificationID retrieves observations tied to a classification,
	// oldest first.
	GetByClassificationID(ctx context.Context, classificationID string) ([]*domain.ValuationPoint, error)

	// GetByTimeRange retrieves observations within [start, end] (inclusive,
	// unix milliseconds), oldest first.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ValuationPoint, error)
}
