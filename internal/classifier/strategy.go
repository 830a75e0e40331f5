package classifier

import (
	"context"
	"math"
	"strings"

	"news-trader/internal/domain"
)

// Signal is the raw judgment a strategy produces for a headline, before
// the confidence gate and proving.
type Signal struct {
	Sentiment  domain.Sentiment
	Confidence uint8 // 0-100
	Features   []float64
}

// Strategy turns a headline into a sentiment signal.
type Strategy interface {
	// Evaluate scores one headline. Deterministic for a given input.
	Evaluate(ctx context.Context, headline string) (*Signal, error)

	// ID returns the strategy identifier (includes parameters).
	ID() string
}

// Confidence model: the floor is the neutral baseline, and the blended
// score adds up to confidenceSpan on top of it.
const (
	baseConfidence = 60
	confidenceSpan = 40
)

// decisionThreshold is the score magnitude past which the blended lexicon
// score alone decides sentiment, without a keyword hit.
const decisionThreshold = 0.3

// HeuristicStrategy classifies with keyword lists plus a blended valence
// score. Keyword hits dominate; the score breaks ties and scales
// confidence.
type HeuristicStrategy struct{}

// NewHeuristicStrategy creates the default lexicon-based strategy.
func NewHeuristicStrategy() *HeuristicStrategy {
	return &HeuristicStrategy{}
}

// ID returns the strategy identifier.
func (s *HeuristicStrategy) ID() string {
	return "HEURISTIC_LEXICON_v1"
}

// Evaluate scores the headline. A negative keyword outranks a positive one
// when both appear: bad news moves markets harder than good news.
func (s *HeuristicStrategy) Evaluate(_ context.Context, headline string) (*Signal, error) {
	if strings.TrimSpace(headline) == "" {
		return nil, ErrEmptyHeadline
	}

	f := extractFeatures(headline)

	sentiment := domain.SentimentNeutral
	switch {
	case f.HasNegative || f.Score < -decisionThreshold:
		sentiment = domain.SentimentBad
	case f.HasPositive || f.Score > decisionThreshold:
		sentiment = domain.SentimentGood
	}

	confidence := baseConfidence + math.Abs(f.Score)*confidenceSpan
	if confidence > 100 {
		confidence = 100
	}

	return &Signal{
		Sentiment:  sentiment,
		Confidence: uint8(confidence),
		Features:   f.slice(),
	}, nil
}

var _ Strategy = (*HeuristicStrategy)(nil)
