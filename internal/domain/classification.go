// Package domain contains the core types shared across the pipeline.
package domain

import "fmt"

// Sentiment is the tri-state news classification.
// Canonical on-chain encoding: BAD=0, NEUTRAL=1, GOOD=2.
type Sentiment uint8

const (
	SentimentBad Sentiment = iota
	SentimentNeutral
	SentimentGood
)

// String returns the human-readable label.
func (s Sentiment) String() string {
	switch s {
	case SentimentBad:
		return "BAD"
	case SentimentNeutral:
		return "NEUTRAL"
	case SentimentGood:
		return "GOOD"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Valid reports whether the value is one of the three canonical states.
func (s Sentiment) Valid() bool {
	return s <= SentimentGood
}

// Trade action codes derived from sentiment.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Action maps a sentiment to the trade action the agent takes for it.
func (s Sentiment) Action() string {
	switch s {
	case SentimentGood:
		return ActionBuy
	case SentimentBad:
		return ActionSell
	default:
		return ActionHold
	}
}

// ClassificationDraft is an in-memory classification that has not been
// confirmed by the ledger yet. It has no on-chain identity; DraftID is a
// local correlation id for logging only.
type ClassificationDraft struct {
	DraftID    string
	Headline   string
	Sentiment  Sentiment
	Confidence uint8     // 0-100
	ProofRef   string    // 0x-hex bytes32 hash of the proof artifact
	Features   []float64 // feature vector the classifier derived the signal from
}

// Classification is a sentiment judgment made durable by on-chain
// confirmation. Immutable once confirmed; the ledger is the permanent store.
type Classification struct {
	ID            string // bytes32 assigned by the oracle contract, 0x-hex
	Headline      string
	Sentiment     Sentiment
	Confidence    uint8
	ProofRef      string
	Timestamp     int64  // ledger-confirmed time (unix seconds)
	SourceAgentID string // producing agent address, for reputation lookups
	BlockNumber   int64
	TxHash        string
}
