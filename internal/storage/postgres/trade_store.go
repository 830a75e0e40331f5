package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"news-trader/internal/domain"
	"news-trader/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL. Token amounts
// are stored as NUMERIC(78,0) to hold full uint256 range; valuations as
// NUMERIC in stable units.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	classification_id, action, token_in, token_out,
	amount_in::text, amount_out::text, executed_at,
	portfolio_value_before::text, portfolio_value_after::text,
	is_profitable, has_been_evaluated, tx_hash
`

// Insert adds a trade. Returns ErrDuplicateKey if a trade for the
// classification id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.ClassificationID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			classification_id, action, token_in, token_out,
			amount_in, amount_out, executed_at,
			portfolio_value_before, portfolio_value_after,
			is_profitable, has_been_evaluated, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		t.ClassificationID,
		t.Action,
		t.TokenIn,
		t.TokenOut,
		bigIntString(t.AmountIn),
		bigIntString(t.AmountOut),
		t.Timestamp,
		t.PortfolioValueBefore.String(),
		t.PortfolioValueAfter.String(),
		t.IsProfitable,
		t.HasBeenEvaluated,
		t.TxHash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByClassificationID retrieves the trade for a classification. Returns
// ErrNotFound if not exists.
func (s *TradeStore) GetByClassificationID(ctx context.Context, classificationID string) (*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE classification_id = $1`

	row := s.pool.QueryRow(ctx, query, classificationID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by classification id: %w", err)
	}
	return t, nil
}

// GetRecent retrieves the newest trades, newest first.
func (s *TradeStore) GetRecent(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		ORDER BY executed_at DESC, classification_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// MarkEvaluated writes the profitability verdict exactly once.
func (s *TradeStore) MarkEvaluated(ctx context.Context, classificationID string, valueAfter decimal.Decimal, isProfitable bool) error {
	query := `
		UPDATE trades
		SET portfolio_value_after = $2, is_profitable = $3, has_been_evaluated = TRUE
		WHERE classification_id = $1 AND has_been_evaluated = FALSE
	`

	tag, err := s.pool.Exec(ctx, query, classificationID, valueAfter.String(), isProfitable)
	if err != nil {
		return fmt.Errorf("mark trade evaluated: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: distinguish missing from already settled.
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM trades WHERE classification_id = $1)`,
		classificationID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check trade existence: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrAlreadyEvaluated
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func scanTrade(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var amountIn, amountOut, valueBefore, valueAfter string

	err := row.Scan(
		&t.ClassificationID,
		&t.Action,
		&t.TokenIn,
		&t.TokenOut,
		&amountIn,
		&amountOut,
		&t.Timestamp,
		&valueBefore,
		&valueAfter,
		&t.IsProfitable,
		&t.HasBeenEvaluated,
		&t.TxHash,
	)
	if err != nil {
		return nil, err
	}

	var ok bool
	if t.AmountIn, ok = new(big.Int).SetString(amountIn, 10); !ok {
		return nil, fmt.Errorf("parse amount_in %q", amountIn)
	}
	if t.AmountOut, ok = new(big.Int).SetString(amountOut, 10); !ok {
		return nil, fmt.Errorf("parse amount_out %q", amountOut)
	}
	if t.PortfolioValueBefore, err = decimal.NewFromString(valueBefore); err != nil {
		return nil, fmt.Errorf("parse portfolio_value_before: %w", err)
	}
	if t.PortfolioValueAfter, err = decimal.NewFromString(valueAfter); err != nil {
		return nil, fmt.Errorf("parse portfolio_value_after: %w", err)
	}

	return &t, nil
}

func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var result []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return result, nil
}
