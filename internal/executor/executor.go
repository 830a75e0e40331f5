// Package executor triggers the trading agent's on-chain reaction to a
// confirmed classification and snapshots portfolio value around it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"news-trader/internal/contracts"
	"news-trader/internal/domain"
)

// DefaultGasLimit covers a reactToNews transaction including the swap.
const DefaultGasLimit = 1_000_000

// ValuationRecorder receives portfolio valuation observations. Recording
// is best effort: a failing recorder never fails a trade.
type ValuationRecorder interface {
	RecordValuation(ctx context.Context, point domain.ValuationPoint) error
}

// TradeResult is the outcome of one successful execution.
type TradeResult struct {
	ClassificationID     string
	TxHash               string
	BlockNumber          int64
	GasUsed              uint64
	Event                *contracts.TradeExecutedEvent // nil when the agent held
	PortfolioValueBefore decimal.Decimal
	PortfolioValueAfter  decimal.Decimal
}

// Action returns the executed action, HOLD when no trade event fired.
func (r *TradeResult) Action() string {
	if r.Event == nil {
		return domain.ActionHold
	}
	return r.Event.Action
}

// Options configures an Executor.
type Options struct {
	Agent      *contracts.TradingAgent
	Valuations ValuationRecorder // optional
	GasLimit   uint64
	Logger     zerolog.Logger
}

// Executor submits reactToNews transactions. The contract owns all trade
// policy (confidence floor, reputation floor, processed guard); the
// executor translates its verdicts into the trade error taxonomy.
type Executor struct {
	agent      *contracts.TradingAgent
	valuations ValuationRecorder
	gasLimit   uint64
	log        zerolog.Logger
}

// New creates an Executor.
func New(opts Options) (*Executor, error) {
	if opts.Agent == nil {
		return nil, errors.New("trading agent binding is required")
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = DefaultGasLimit
	}
	return &Executor{
		agent:      opts.Agent,
		valuations: opts.Valuations,
		gasLimit:   opts.GasLimit,
		log:        opts.Logger.With().Str("component", "trade_executor").Logger(),
	}, nil
}

// GasLimit returns the configured gas limit.
func (e *Executor) GasLimit() uint64 {
	return e.gasLimit
}

// Execute reacts to a classification with the configured gas limit.
func (e *Executor) Execute(ctx context.Context, classificationID string) (*TradeResult, error) {
	return e.ExecuteWithGas(ctx, classificationID, e.gasLimit)
}

// ExecuteWithGas reacts to a classification with an explicit gas limit,
// used for the one gas-bumped retry after an out-of-gas failure.
func (e *Executor) ExecuteWithGas(ctx context.Context, classificationID string, gasLimit uint64) (*TradeResult, error) {
	if !contracts.ValidHash(classificationID) {
		return nil, fmt.Errorf("classification id is not a 32-byte hash: %q", classificationID)
	}

	before, err := e.agent.GetPortfolioValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio value before trade: %w", err)
	}
	e.recordValuation(ctx, domain.ValuationStageBeforeTrade, classificationID, before)

	receipt, err := e.agent.ReactToNews(ctx, classificationID, gasLimit)
	if err != nil {
		tradeErr := classifyFailure(classificationID, err)
		e.log.Warn().
			Str("classification_id", classificationID).
			Str("kind", string(tradeErr.Kind)).
			Str("reason", tradeErr.Reason).
			Uint64("gas_limit", gasLimit).
			Msg("trade execution failed")
		return nil, tradeErr
	}

	after, err := e.agent.GetPortfolioValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio value after trade: %w", err)
	}
	e.recordValuation(ctx, domain.ValuationStageAfterTrade, classificationID, after)

	result := &TradeResult{
		ClassificationID:     classificationID,
		TxHash:               receipt.TxHash,
		BlockNumber:          receipt.BlockNumber,
		GasUsed:              receipt.GasUsed,
		PortfolioValueBefore: before,
		PortfolioValueAfter:  after,
	}

	// A HOLD reaction confirms without emitting TradeExecuted.
	if event, err := e.agent.FindTradeExecuted(receipt); err == nil {
		result.Event = event
	}

	e.log.Info().
		Str("classification_id", classificationID).
		Str("action", result.Action()).
		Str("tx", receipt.TxHash).
		Uint64("gas_used", receipt.GasUsed).
		Str("value_before", before.String()).
		Str("value_after", after.String()).
		Msg("trade executed")

	return result, nil
}

func (e *Executor) recordValuation(ctx context.Context, stage, classificationID string, value decimal.Decimal) {
	if e.valuations == nil {
		return
	}
	point := domain.ValuationPoint{
		ObservedAt:       time.Now().UnixMilli(),
		Value:            value,
		Stage:            stage,
		ClassificationID: classificationID,
	}
	if err := e.valuations.RecordValuation(ctx, point); err != nil {
		e.log.Warn().Err(err).Str("stage", stage).Msg("valuation record failed")
	}
}
