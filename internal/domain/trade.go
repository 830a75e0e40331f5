package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TradeRecord mirrors one execution attempt owned by the trading-agent
// contract. Exactly one record may exist per classification id; the contract
// enforces this and the watcher mirrors it client-side.
type TradeRecord struct {
	ClassificationID string
	Action           string // BUY | SELL | HOLD
	TokenIn          string
	TokenOut         string
	AmountIn         *big.Int
	AmountOut        *big.Int
	Timestamp        int64 // unix seconds, execution time on the ledger

	// Valuations in stable units. PortfolioValueAfter and IsProfitable are
	// written exactly once by the profitability evaluation, no sooner than
	// the cool-down after Timestamp.
	PortfolioValueBefore decimal.Decimal
	PortfolioValueAfter  decimal.Decimal
	IsProfitable         bool
	HasBeenEvaluated     bool

	TxHash string
}

// Portfolio is the agent's raw on-chain holdings.
type Portfolio struct {
	AssetBalance  *big.Int // volatile leg (wei)
	StableBalance *big.Int // stable leg (6-decimal units)
}

// Stages at which a portfolio valuation snapshot is taken.
const (
	ValuationStageBeforeTrade = "before_trade"
	ValuationStageAfterTrade  = "after_trade"
	ValuationStageEvaluation  = "evaluation"
)

// ValuationPoint is one observed portfolio valuation, recorded for the
// analytics timeseries. The authoritative before/after snapshot is the one
// the contract records; these are read-only observations.
type ValuationPoint struct {
	ObservedAt       int64 // unix milliseconds
	Value            decimal.Decimal
	Stage            string
	ClassificationID string // empty for periodic snapshots
}
