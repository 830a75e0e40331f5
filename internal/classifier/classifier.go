// Package classifier scores news headlines into tri-state sentiment drafts
// and gates them on confidence before any proving work is spent.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-trader/internal/domain"
	"news-trader/internal/prover"
)

// DefaultMinConfidence is the posting threshold applied when the caller
// does not configure one.
const DefaultMinConfidence = 60

// ErrEmptyHeadline rejects blank input before any scoring.
var ErrEmptyHeadline = errors.New("headline is empty")

// RejectReasonConfidence marks drafts dropped by the confidence gate.
const RejectReasonConfidence = "confidence_too_low"

// Result is the outcome of classifying one headline. Exactly one of Draft
// and Rejected is set.
type Result struct {
	Draft        *domain.ClassificationDraft
	Rejected     bool
	RejectReason string
	Confidence   uint8
}

// Options configures a Classifier. Zero values pick the defaults.
type Options struct {
	Strategy      Strategy
	Prover        prover.Prover
	MinConfidence uint8
	Logger        zerolog.Logger
}

// Classifier runs strategy scoring, the confidence gate, and proof
// generation, in that order. The gate runs before the prover so
// low-confidence headlines never cost a proving round trip.
type Classifier struct {
	strategy      Strategy
	prover        prover.Prover
	minConfidence uint8
	log           zerolog.Logger
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	if opts.Strategy == nil {
		opts.Strategy = NewHeuristicStrategy()
	}
	if opts.Prover == nil {
		opts.Prover = prover.NewHashProver()
	}
	if opts.MinConfidence == 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	return &Classifier{
		strategy:      opts.Strategy,
		prover:        opts.Prover,
		minConfidence: opts.MinConfidence,
		log:           opts.Logger.With().Str("component", "classifier").Logger(),
	}
}

// MinConfidence returns the active posting threshold.
func (c *Classifier) MinConfidence() uint8 {
	return c.minConfidence
}

// Classify scores one headline. A below-threshold signal comes back as a
// rejection, not an error; errors mean the strategy or prover itself
// failed.
func (c *Classifier) Classify(ctx context.Context, headline string) (*Result, error) {
	signal, err := c.strategy.Evaluate(ctx, headline)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", c.strategy.ID(), err)
	}
	if !signal.Sentiment.Valid() {
		return nil, fmt.Errorf("strategy %s produced invalid sentiment %d", c.strategy.ID(), uint8(signal.Sentiment))
	}

	if signal.Confidence < c.minConfidence {
		c.log.Info().
			Str("headline", headline).
			Uint8("confidence", signal.Confidence).
			Uint8("threshold", c.minConfidence).
			Msg("classification rejected")
		return &Result{
			Rejected:     true,
			RejectReason: RejectReasonConfidence,
			Confidence:   signal.Confidence,
		}, nil
	}

	artifact, err := c.prover.Prove(ctx, headline, signal.Features, signal.Sentiment)
	if err != nil {
		return nil, fmt.Errorf("prove classification: %w", err)
	}

	draft := &domain.ClassificationDraft{
		DraftID:    uuid.NewString(),
		Headline:   headline,
		Sentiment:  signal.Sentiment,
		Confidence: signal.Confidence,
		ProofRef:   artifact.ProofHash,
		Features:   signal.Features,
	}

	c.log.Debug().
		Str("draft_id", draft.DraftID).
		Str("sentiment", draft.Sentiment.String()).
		Uint8("confidence", draft.Confidence).
		Str("backend", artifact.Backend).
		Msg("headline classified")

	return &Result{Draft: draft, Confidence: signal.Confidence}, nil
}
