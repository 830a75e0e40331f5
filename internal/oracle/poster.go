// Package oracle publishes confirmed classifications to the on-chain news
// oracle and resolves the contract-assigned identity of each one.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"news-trader/internal/contracts"
	"news-trader/internal/domain"
	"news-trader/internal/ledger"
)

// DefaultGasLimit covers a postClassification transaction.
const DefaultGasLimit = 500_000

// PostErrorKind partitions posting failures by what the caller can do
// about them.
type PostErrorKind string

const (
	// PostReverted: the contract rejected the classification. Permanent.
	PostReverted PostErrorKind = "reverted"
	// PostTimeout: submitted but unconfirmed within the window. The
	// transaction may still land later.
	PostTimeout PostErrorKind = "timeout"
	// PostNetworkError: the submission itself failed. Safe to retry.
	PostNetworkError PostErrorKind = "network_error"
)

// PostError is a classified posting failure.
type PostError struct {
	Kind   PostErrorKind
	Reason string // revert reason, when the contract gave one
	TxHash string
	Err    error
}

func (e *PostError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("post classification: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("post classification: %s: %v", e.Kind, e.Err)
}

func (e *PostError) Unwrap() error {
	return e.Err
}

// Options configures a Poster.
type Options struct {
	Contract *contracts.NewsOracle
	GasLimit uint64
	Logger   zerolog.Logger
}

// Poster validates drafts and submits them to the oracle contract. Posting
// is not idempotent: the caller owns deduplication.
type Poster struct {
	contract *contracts.NewsOracle
	gasLimit uint64
	log      zerolog.Logger
}

// NewPoster creates a Poster.
func NewPoster(opts Options) (*Poster, error) {
	if opts.Contract == nil {
		return nil, errors.New("oracle contract binding is required")
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = DefaultGasLimit
	}
	return &Poster{
		contract: opts.Contract,
		gasLimit: opts.GasLimit,
		log:      opts.Logger.With().Str("component", "oracle_poster").Logger(),
	}, nil
}

// Post submits one draft and waits for confirmation. On success it returns
// the confirmed classification carrying the contract-assigned id, the only
// place that id is ever learned.
func (p *Poster) Post(ctx context.Context, draft *domain.ClassificationDraft) (*domain.Classification, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	receipt, err := p.contract.PostClassification(ctx, draft.Headline, draft.Sentiment, draft.Confidence, draft.ProofRef, p.gasLimit)
	if err != nil {
		postErr := classifyPostFailure(err)
		p.log.Error().
			Str("draft_id", draft.DraftID).
			Str("kind", string(postErr.Kind)).
			Err(err).
			Msg("classification post failed")
		return nil, postErr
	}

	event, err := p.contract.FindNewsClassified(receipt)
	if err != nil {
		// Confirmed but unparseable: treat as reverted, the classification
		// did not take effect in any usable way.
		return nil, &PostError{Kind: PostReverted, TxHash: receipt.TxHash, Err: err}
	}

	p.log.Info().
		Str("draft_id", draft.DraftID).
		Str("classification_id", event.ClassificationID).
		Str("tx", receipt.TxHash).
		Int64("block", receipt.BlockNumber).
		Msg("classification posted")

	return event.Classification(), nil
}

func validateDraft(draft *domain.ClassificationDraft) error {
	if draft == nil {
		return errors.New("nil draft")
	}
	if draft.Headline == "" {
		return errors.New("draft headline is empty")
	}
	if !draft.Sentiment.Valid() {
		return fmt.Errorf("draft sentiment %d out of range", uint8(draft.Sentiment))
	}
	if draft.Confidence > 100 {
		return fmt.Errorf("draft confidence %d out of range", draft.Confidence)
	}
	if !contracts.ValidHash(draft.ProofRef) {
		return fmt.Errorf("draft proof ref is not a 32-byte hash: %q", draft.ProofRef)
	}
	return nil
}

func classifyPostFailure(err error) *PostError {
	var revert *ledger.RevertError
	if errors.As(err, &revert) {
		return &PostError{Kind: PostReverted, Reason: revert.Reason, TxHash: revert.TxHash, Err: err}
	}
	if errors.Is(err, ledger.ErrConfirmTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return &PostError{Kind: PostTimeout, Err: err}
	}
	return &PostError{Kind: PostNetworkError, Err: err}
}
