// Package evaluator settles the profitability verdict for executed trades
// once the contract's evaluation cool-down has passed.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"news-trader/internal/contracts"
	"news-trader/internal/domain"
	"news-trader/internal/ledger"
)

// DefaultGasLimit covers an evaluateTradeProfitability transaction.
const DefaultGasLimit = 500_000

// DefaultCooldown mirrors the contract's minimum wait between execution
// and evaluation.
const DefaultCooldown = 10 * time.Second

// cooldownMargin pads the client-side wait so a well-timed submission does
// not race the contract clock by a block.
const cooldownMargin = time.Second

// EvalErrorKind partitions evaluation failures.
type EvalErrorKind string

const (
	// EvalTooEarly: the cool-down has not elapsed on-chain. Retry later.
	EvalTooEarly EvalErrorKind = "too_early"
	// EvalReverted: any other contract rejection. Permanent.
	EvalReverted EvalErrorKind = "reverted"
)

// EvalError is a classified evaluation failure.
type EvalError struct {
	Kind             EvalErrorKind
	ClassificationID string
	Reason           string
	Err              error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %s: %s: %s", e.ClassificationID, e.Kind, e.Reason)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Evaluation is the settled verdict for one trade.
type Evaluation struct {
	ClassificationID     string
	IsProfitable         bool
	PortfolioValueBefore decimal.Decimal
	PortfolioValueAfter  decimal.Decimal
	ProfitLossPct        decimal.Decimal
	AlreadyEvaluated     bool // verdict was already on-chain, no transaction sent
	TxHash               string
}

// Options configures an Evaluator.
type Options struct {
	Agent    *contracts.TradingAgent
	GasLimit uint64
	Cooldown time.Duration
	Logger   zerolog.Logger
}

// Evaluator submits evaluateTradeProfitability transactions. Evaluation is
// idempotent from the caller's view: a trade whose verdict already settled
// comes back as-is without spending gas.
type Evaluator struct {
	agent    *contracts.TradingAgent
	gasLimit uint64
	cooldown time.Duration
	log      zerolog.Logger
}

// New creates an Evaluator.
func New(opts Options) (*Evaluator, error) {
	if opts.Agent == nil {
		return nil, errors.New("trading agent binding is required")
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = DefaultGasLimit
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = DefaultCooldown
	}
	return &Evaluator{
		agent:    opts.Agent,
		gasLimit: opts.GasLimit,
		cooldown: opts.Cooldown,
		log:      opts.Logger.With().Str("component", "evaluator").Logger(),
	}, nil
}

// Cooldown returns the configured evaluation cool-down.
func (e *Evaluator) Cooldown() time.Duration {
	return e.cooldown
}

// WaitCooldown blocks until the cool-down since executedAt has elapsed, or
// the context ends. A trade old enough returns immediately.
func (e *Evaluator) WaitCooldown(ctx context.Context, executedAt time.Time) error {
	remaining := time.Until(executedAt.Add(e.cooldown + cooldownMargin))
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Evaluate settles the verdict for one trade. If the trade was already
// evaluated the on-chain verdict is returned without a transaction.
func (e *Evaluator) Evaluate(ctx context.Context, classificationID string) (*Evaluation, error) {
	if !contracts.ValidHash(classificationID) {
		return nil, fmt.Errorf("classification id is not a 32-byte hash: %q", classificationID)
	}

	details, err := e.agent.GetTradeDetails(ctx, classificationID)
	if err != nil {
		return nil, fmt.Errorf("trade details: %w", err)
	}
	if details.HasBeenEvaluated {
		e.log.Debug().
			Str("classification_id", classificationID).
			Msg("trade already evaluated, skipping transaction")
		return evaluationFrom(classificationID, details, true, ""), nil
	}

	receipt, err := e.agent.EvaluateTradeProfitability(ctx, classificationID, e.gasLimit)
	if err != nil {
		evalErr := classifyEvalFailure(classificationID, err)
		e.log.Warn().
			Str("classification_id", classificationID).
			Str("kind", string(evalErr.Kind)).
			Str("reason", evalErr.Reason).
			Msg("evaluation failed")
		return nil, evalErr
	}

	settled, err := e.agent.GetTradeDetails(ctx, classificationID)
	if err != nil {
		return nil, fmt.Errorf("trade details after evaluation: %w", err)
	}

	result := evaluationFrom(classificationID, settled, false, receipt.TxHash)
	e.log.Info().
		Str("classification_id", classificationID).
		Bool("profitable", result.IsProfitable).
		Str("pnl_pct", result.ProfitLossPct.StringFixed(2)).
		Str("tx", receipt.TxHash).
		Msg("trade evaluated")

	return result, nil
}

func evaluationFrom(classificationID string, details *domain.TradeRecord, alreadyEvaluated bool, txHash string) *Evaluation {
	return &Evaluation{
		ClassificationID:     classificationID,
		IsProfitable:         details.IsProfitable,
		PortfolioValueBefore: details.PortfolioValueBefore,
		PortfolioValueAfter:  details.PortfolioValueAfter,
		ProfitLossPct:        ProfitLossPct(details.PortfolioValueBefore, details.PortfolioValueAfter),
		AlreadyEvaluated:     alreadyEvaluated,
		TxHash:               txHash,
	}
}

// ProfitLossPct returns (after-before)/before*100, zero when before is
// zero.
func ProfitLossPct(before, after decimal.Decimal) decimal.Decimal {
	if before.IsZero() {
		return decimal.Zero
	}
	return after.Sub(before).Div(before).Mul(decimal.NewFromInt(100))
}

func classifyEvalFailure(classificationID string, err error) *EvalError {
	evalErr := &EvalError{Kind: EvalReverted, ClassificationID: classificationID, Err: err}

	var revert *ledger.RevertError
	if errors.As(err, &revert) {
		evalErr.Reason = revert.Reason
		lower := strings.ToLower(revert.Reason)
		if strings.Contains(lower, "too early") || strings.Contains(lower, "cool") {
			evalErr.Kind = EvalTooEarly
		}
		return evalErr
	}

	evalErr.Reason = err.Error()
	return evalErr
}
