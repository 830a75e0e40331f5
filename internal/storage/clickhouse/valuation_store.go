package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"news-trader/internal/domain"
	"news-trader/internal/storage"
)

// ValuationStore implements storage.ValuationStore using ClickHouse.
// Observations are append-only; MergeTree ordering by observed_at serves
// the range scans the analytics queries run.
type ValuationStore struct {
	conn *Conn
}

// NewValuationStore creates a new ValuationStore.
func NewValuationStore(conn *Conn) *ValuationStore {
	return &ValuationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ValuationStore = (*ValuationStore)(nil)

// RecordValuation appends one observation.
func (s *ValuationStore) RecordValuation(ctx context.Context, point domain.ValuationPoint) error {
	if point.Stage == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO portfolio_valuations (observed_at_ms, value, stage, classification_id)
		VALUES (?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		point.ObservedAt,
		point.Value.InexactFloat64(),
		point.Stage,
		point.ClassificationID,
	)
	if err != nil {
		return fmt.Errorf("insert valuation: %w", err)
	}
	return nil
}

// GetByClassificationID retrieves observations tied to a classification,
// oldest first.
func (s *ValuationStore) GetByClassificationID(ctx context.Context, classificationID string) ([]*domain.ValuationPoint, error) {
	query := `
		SELECT observed_at_ms, value, stage, classification_id
		FROM portfolio_valuations
		WHERE classification_id = ?
		ORDER BY observed_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, classificationID)
	if err != nil {
		return nil, fmt.Errorf("query valuations by classification: %w", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

// GetByTimeRange retrieves observations within [start, end] (inclusive,
// unix milliseconds), oldest first.
func (s *ValuationStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ValuationPoint, error) {
	query := `
		SELECT observed_at_ms, value, stage, classification_id
		FROM portfolio_valuations
		WHERE observed_at_ms >= ? AND observed_at_ms <= ?
		ORDER BY observed_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query valuations by time range: %w", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

type valuationRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPoints(rows valuationRows) ([]*domain.ValuationPoint, error) {
	var result []*domain.ValuationPoint

	for rows.Next() {
		var p domain.ValuationPoint
		var value float64

		if err := rows.Scan(&p.ObservedAt, &value, &p.Stage, &p.ClassificationID); err != nil {
			return nil, fmt.Errorf("scan valuation row: %w", err)
		}

		p.Value = decimal.NewFromFloat(value)
		result = append(result, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate valuation rows: %w", err)
	}

	return result, nil
}
