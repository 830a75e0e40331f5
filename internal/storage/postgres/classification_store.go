package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"news-trader/internal/domain"
	"news-trader/internal/storage"
)

// ClassificationStore implements storage.ClassificationStore using
// PostgreSQL.
type ClassificationStore struct {
	pool *Pool
}

// NewClassificationStore creates a new ClassificationStore.
func NewClassificationStore(pool *Pool) *ClassificationStore {
	return &ClassificationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClassificationStore = (*ClassificationStore)(nil)

const classificationColumns = `
	id, headline, sentiment, confidence, proof_ref,
	confirmed_at, source_agent, block_number, tx_hash
`

// Insert adds a confirmed classification. Returns ErrDuplicateKey if the id
// exists.
func (s *ClassificationStore) Insert(ctx context.Context, c *domain.Classification) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO classifications (
			id, headline, sentiment, confidence, proof_ref,
			confirmed_at, source_agent, block_number, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		c.ID,
		c.Headline,
		int16(c.Sentiment),
		int16(c.Confidence),
		c.ProofRef,
		c.Timestamp,
		c.SourceAgentID,
		c.BlockNumber,
		c.TxHash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

// GetByID retrieves a classification by id. Returns ErrNotFound if not
// exists.
func (s *ClassificationStore) GetByID(ctx context.Context, id string) (*domain.Classification, error) {
	query := `SELECT ` + classificationColumns + ` FROM classifications WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	c, err := scanClassification(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get classification by id: %w", err)
	}
	return c, nil
}

// GetRecent retrieves the newest classifications, newest first.
func (s *ClassificationStore) GetRecent(ctx context.Context, limit int) ([]*domain.Classification, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + classificationColumns + `
		FROM classifications
		ORDER BY confirmed_at DESC, id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent classifications: %w", err)
	}
	defer rows.Close()

	return scanClassifications(rows)
}

// GetByTimeRange retrieves classifications confirmed within [start, end]
// (inclusive), oldest first.
func (s *ClassificationStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Classification, error) {
	query := `
		SELECT ` + classificationColumns + `
		FROM classifications
		WHERE confirmed_at >= $1 AND confirmed_at <= $2
		ORDER BY confirmed_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get classifications by time range: %w", err)
	}
	defer rows.Close()

	return scanClassifications(rows)
}

func scanClassification(row pgx.Row) (*domain.Classification, error) {
	var c domain.Classification
	var sentiment, confidence int16

	err := row.Scan(
		&c.ID,
		&c.Headline,
		&sentiment,
		&confidence,
		&c.ProofRef,
		&c.Timestamp,
		&c.SourceAgentID,
		&c.BlockNumber,
		&c.TxHash,
	)
	if err != nil {
		return nil, err
	}

	c.Sentiment = domain.Sentiment(sentiment)
	c.Confidence = uint8(confidence)
	return &c, nil
}

func scanClassifications(rows pgx.Rows) ([]*domain.Classification, error) {
	var result []*domain.Classification

	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan classification row: %w", err)
		}
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classification rows: %w", err)
	}

	return result, nil
}
