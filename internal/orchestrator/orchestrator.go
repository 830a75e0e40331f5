// Package orchestrator chains classification, oracle posting, trade
// execution and profitability evaluation into one pipeline, and mirrors
// the on-chain outcomes into storage.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"news-trader/internal/classifier"
	"news-trader/internal/contracts"
	"news-trader/internal/domain"
	"news-trader/internal/evaluator"
	"news-trader/internal/executor"
	"news-trader/internal/observability"
	"news-trader/internal/oracle"
	"news-trader/internal/storage"
)

// FullResult is the outcome of one end-to-end pipeline run. A rejected
// headline carries only Rejected and RejectReason; everything after the
// stage that produced it stays nil.
type FullResult struct {
	Rejected       bool
	RejectReason   string
	Classification *domain.Classification
	Trade          *executor.TradeResult
	Evaluation     *evaluator.Evaluation
}

// TradeListener is notified after each successful execution, for
// streaming surfaces. Callbacks must not block.
type TradeListener interface {
	OnTradeExecuted(trade *domain.TradeRecord)
}

// Options configures an Orchestrator. The four pipeline components are
// required; the agent binding, stores and listener are optional. The
// binding enables evaluation recovery on start.
type Options struct {
	Classifier *classifier.Classifier
	Poster     *oracle.Poster
	Executor   *executor.Executor
	Evaluator  *evaluator.Evaluator

	Agent           *contracts.TradingAgent
	Classifications storage.ClassificationStore
	Trades          storage.TradeStore
	Listener        TradeListener

	Logger zerolog.Logger
}

// Orchestrator drives the pipeline. The contracts hold the authoritative
// state; store writes are mirrors and never fail a run.
type Orchestrator struct {
	classifier *classifier.Classifier
	poster     *oracle.Poster
	executor   *executor.Executor
	evaluator  *evaluator.Evaluator

	agent           *contracts.TradingAgent
	classifications storage.ClassificationStore
	trades          storage.TradeStore
	listener        TradeListener

	log zerolog.Logger
	wg  sync.WaitGroup
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if opts.Poster == nil {
		return nil, errors.New("oracle poster is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("trade executor is required")
	}
	if opts.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	return &Orchestrator{
		classifier:      opts.Classifier,
		poster:          opts.Poster,
		executor:        opts.Executor,
		evaluator:       opts.Evaluator,
		agent:           opts.Agent,
		classifications: opts.Classifications,
		trades:          opts.Trades,
		listener:        opts.Listener,
		log:             opts.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// ClassifyAndTrade runs one headline through the whole pipeline
// synchronously: classify, post, execute, wait out the cool-down, and
// settle the verdict. Failures carry the stage that produced them.
func (o *Orchestrator) ClassifyAndTrade(ctx context.Context, headline string) (*FullResult, error) {
	res, err := o.classifier.Classify(ctx, headline)
	if err != nil {
		return nil, stageErr(StageClassification, err)
	}
	if res.Rejected {
		observability.RecordRejection()
		return &FullResult{Rejected: true, RejectReason: res.RejectReason}, nil
	}
	observability.RecordClassification(res.Draft.Sentiment.String())

	postStart := time.Now()
	confirmed, err := o.poster.Post(ctx, res.Draft)
	if err != nil {
		observability.RecordPost("failed", time.Since(postStart).Seconds())
		return nil, stageErr(StageOraclePosting, err)
	}
	observability.RecordPost("confirmed", time.Since(postStart).Seconds())
	o.storeClassification(ctx, confirmed)

	trade, err := o.executeWithRetry(ctx, confirmed.ID)
	if err != nil {
		return nil, stageErr(StageTradeExecution, err)
	}
	o.storeTrade(ctx, trade)

	if err := o.evaluator.WaitCooldown(ctx, time.Now()); err != nil {
		return nil, stageErr(StageEvaluation, err)
	}
	eval, err := o.evaluator.Evaluate(ctx, confirmed.ID)
	if err != nil {
		return nil, stageErr(StageEvaluation, err)
	}
	o.markEvaluated(ctx, eval)

	return &FullResult{
		Classification: confirmed,
		Trade:          trade,
		Evaluation:     eval,
	}, nil
}

// Dispatch reacts to one confirmed classification, typically as the
// watcher's dispatch function. An already-processed classification is a
// no-op, not an error. Evaluation runs in the background after the
// cool-down; Wait blocks until those settle.
func (o *Orchestrator) Dispatch(ctx context.Context, c *domain.Classification) error {
	o.storeClassification(ctx, c)

	trade, err := o.executeWithRetry(ctx, c.ID)
	if err != nil {
		var tradeErr *executor.TradeError
		if errors.As(err, &tradeErr) && tradeErr.Kind == executor.TradeAlreadyProcessed {
			o.log.Debug().
				Str("classification_id", c.ID).
				Msg("classification already processed on-chain")
			return nil
		}
		return stageErr(StageTradeExecution, err)
	}
	o.storeTrade(ctx, trade)

	o.wg.Add(1)
	go o.evaluateLater(ctx, c.ID)

	return nil
}

// Wait blocks until all background evaluations spawned by Dispatch have
// finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// RecoverEvaluations settles verdicts for recent trades whose evaluation
// never ran, typically because the process stopped between the execution
// and the cool-down. Walks the agent's newest depth trades; a trade the
// contract already settled is skipped. Requires the agent binding.
func (o *Orchestrator) RecoverEvaluations(ctx context.Context, depth int) error {
	if o.agent == nil {
		return errors.New("trading agent binding is required for evaluation recovery")
	}

	trades, err := o.agent.GetRecentTrades(ctx, int64(depth))
	if err != nil {
		return fmt.Errorf("recent trades: %w", err)
	}

	for _, trade := range trades {
		if trade.HasBeenEvaluated {
			continue
		}
		eval, err := o.evaluator.Evaluate(ctx, trade.ClassificationID)
		if err != nil {
			o.log.Warn().
				Err(err).
				Str("classification_id", trade.ClassificationID).
				Msg("evaluation recovery failed")
			continue
		}
		o.log.Info().
			Str("classification_id", trade.ClassificationID).
			Bool("is_profitable", eval.IsProfitable).
			Msg("recovered pending evaluation")
		o.markEvaluated(ctx, eval)
	}
	return nil
}

func (o *Orchestrator) evaluateLater(ctx context.Context, classificationID string) {
	defer o.wg.Done()

	if err := o.evaluator.WaitCooldown(ctx, time.Now()); err != nil {
		o.log.Debug().
			Str("classification_id", classificationID).
			Msg("evaluation cancelled before cool-down elapsed")
		return
	}

	eval, err := o.evaluator.Evaluate(ctx, classificationID)
	if err != nil {
		o.log.Warn().
			Err(err).
			Str("classification_id", classificationID).
			Msg("background evaluation failed")
		return
	}
	o.markEvaluated(ctx, eval)
}

// executeWithRetry runs the trade, resubmitting once with a 1.5x gas
// limit when the failure was out-of-gas. Every other failure is final.
func (o *Orchestrator) executeWithRetry(ctx context.Context, classificationID string) (*executor.TradeResult, error) {
	result, err := o.executor.Execute(ctx, classificationID)

	var tradeErr *executor.TradeError
	if err != nil && errors.As(err, &tradeErr) && tradeErr.Retryable() {
		bumped := o.executor.GasLimit() + o.executor.GasLimit()/2
		o.log.Warn().
			Str("classification_id", classificationID).
			Uint64("gas_limit", bumped).
			Msg("retrying trade with bumped gas limit")
		result, err = o.executor.ExecuteWithGas(ctx, classificationID, bumped)
	}

	if err != nil {
		kind := string(executor.TradeUnknown)
		if errors.As(err, &tradeErr) {
			kind = string(tradeErr.Kind)
		}
		observability.RecordTradeFailure(kind)
		return nil, err
	}

	observability.RecordTrade(result.Action(), result.GasUsed)
	return result, nil
}

func (o *Orchestrator) storeClassification(ctx context.Context, c *domain.Classification) {
	if o.classifications == nil {
		return
	}
	err := o.classifications.Insert(ctx, c)
	switch {
	case err == nil, errors.Is(err, storage.ErrDuplicateKey):
	default:
		o.log.Warn().Err(err).Str("classification_id", c.ID).Msg("classification mirror write failed")
	}
}

func (o *Orchestrator) storeTrade(ctx context.Context, trade *executor.TradeResult) {
	rec := tradeRecordFrom(trade)

	if o.trades != nil {
		err := o.trades.Insert(ctx, rec)
		switch {
		case err == nil, errors.Is(err, storage.ErrDuplicateKey):
		default:
			o.log.Warn().Err(err).Str("classification_id", trade.ClassificationID).Msg("trade mirror write failed")
		}
	}

	if o.listener != nil {
		o.listener.OnTradeExecuted(rec)
	}
}

func (o *Orchestrator) markEvaluated(ctx context.Context, eval *evaluator.Evaluation) {
	observability.RecordEvaluation(eval.IsProfitable)
	if o.trades == nil {
		return
	}
	err := o.trades.MarkEvaluated(ctx, eval.ClassificationID, eval.PortfolioValueAfter, eval.IsProfitable)
	switch {
	case err == nil, errors.Is(err, storage.ErrAlreadyEvaluated):
	default:
		o.log.Warn().Err(err).Str("classification_id", eval.ClassificationID).Msg("evaluation mirror write failed")
	}
}

func tradeRecordFrom(trade *executor.TradeResult) *domain.TradeRecord {
	rec := &domain.TradeRecord{
		ClassificationID:     trade.ClassificationID,
		Action:               trade.Action(),
		Timestamp:            time.Now().Unix(),
		PortfolioValueBefore: trade.PortfolioValueBefore,
		PortfolioValueAfter:  trade.PortfolioValueAfter,
		TxHash:               trade.TxHash,
	}
	if ev := trade.Event; ev != nil {
		rec.TokenIn = ev.TokenIn
		rec.TokenOut = ev.TokenOut
		rec.AmountIn = ev.AmountIn
		rec.AmountOut = ev.AmountOut
		rec.Timestamp = ev.Timestamp
	}
	return rec
}
