// Package watcher tails the oracle's NewsClassified events and feeds each
// confirmed classification to the trade pipeline exactly once per process
// lifetime, with an on-chain catch-up sweep for everything missed while
// down.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"news-trader/internal/contracts"
	"news-trader/internal/domain"
	"news-trader/internal/ledger"
	"news-trader/internal/observability"
)

// Default polling parameters.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultMaxPerCycle  = 5
	DefaultSweepDepth   = 50
)

// Watcher states.
const (
	StateStopped   = "STOPPED"
	StateListening = "LISTENING"
)

// DispatchFunc handles one confirmed classification. A returned error is
// logged and the loop moves on; it never stops the watcher.
type DispatchFunc func(ctx context.Context, c *domain.Classification) error

// Options configures a Watcher.
type Options struct {
	Ledger   ledger.Client
	Oracle   *contracts.NewsOracle
	Agent    *contracts.TradingAgent
	Dispatch DispatchFunc

	// PollInterval is the gap between chain scans.
	PollInterval time.Duration
	// MaxPerCycle caps dispatches per scan. The cap lands on block
	// boundaries so the high-water mark never splits a block.
	MaxPerCycle int
	// SweepDepth is how many recent classifications the catch-up sweep
	// inspects on start.
	SweepDepth int
	// SetCapacity bounds the in-memory dedup window.
	SetCapacity int
	// StartBlock is the first block to scan. Zero means the chain tip at
	// start time.
	StartBlock int64

	Logger zerolog.Logger
}

// Watcher polls for NewsClassified events past a monotonic high-water
// mark and dispatches them sequentially, in confirmation order.
type Watcher struct {
	ledger    ledger.Client
	oracle    *contracts.NewsOracle
	agent     *contracts.TradingAgent
	dispatch  DispatchFunc
	interval  time.Duration
	maxCycle  int
	sweep     int
	start     int64
	processed *ProcessedSet
	log       zerolog.Logger

	mu        sync.Mutex
	state     string
	highWater int64
	stop      chan struct{}
	done      chan struct{}
}

// New creates a Watcher in the stopped state.
func New(opts Options) (*Watcher, error) {
	if opts.Ledger == nil {
		return nil, errors.New("ledger client is required")
	}
	if opts.Oracle == nil {
		return nil, errors.New("oracle binding is required")
	}
	if opts.Agent == nil {
		return nil, errors.New("trading agent binding is required")
	}
	if opts.Dispatch == nil {
		return nil, errors.New("dispatch func is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPerCycle <= 0 {
		opts.MaxPerCycle = DefaultMaxPerCycle
	}
	if opts.SweepDepth <= 0 {
		opts.SweepDepth = DefaultSweepDepth
	}

	return &Watcher{
		ledger:    opts.Ledger,
		oracle:    opts.Oracle,
		agent:     opts.Agent,
		dispatch:  opts.Dispatch,
		interval:  opts.PollInterval,
		maxCycle:  opts.MaxPerCycle,
		sweep:     opts.SweepDepth,
		start:     opts.StartBlock,
		processed: NewProcessedSet(opts.SetCapacity),
		log:       opts.Logger.With().Str("component", "event_watcher").Logger(),
		state:     StateStopped,
	}, nil
}

// State returns the current lifecycle state.
func (w *Watcher) State() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// HighWater returns the last fully processed block.
func (w *Watcher) HighWater() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.highWater
}

// Start anchors the high-water mark, runs the catch-up sweep, and begins
// polling. Returns an error if already listening or if the anchor block
// cannot be determined.
func (w *Watcher) Start(ctx context.Context) error {
	// Claim the listening state before any awaited call so a concurrent
	// Start cannot pass the check and overwrite the loop channels.
	w.mu.Lock()
	if w.state == StateListening {
		w.mu.Unlock()
		return errors.New("watcher already listening")
	}
	w.state = StateListening
	stop := make(chan struct{})
	done := make(chan struct{})
	w.stop, w.done = stop, done
	w.mu.Unlock()

	anchor := w.start
	if anchor == 0 {
		tip, err := w.ledger.BlockNumber(ctx)
		if err != nil {
			w.mu.Lock()
			w.state = StateStopped
			w.mu.Unlock()
			close(done)
			return fmt.Errorf("anchor block: %w", err)
		}
		anchor = tip
	}

	w.mu.Lock()
	w.highWater = anchor
	w.mu.Unlock()

	if err := w.catchUp(ctx); err != nil {
		w.log.Warn().Err(err).Msg("catch-up sweep incomplete")
	}

	go w.loop(stop, done)

	w.log.Info().
		Int64("anchor_block", anchor).
		Dur("poll_interval", w.interval).
		Msg("watcher listening")
	return nil
}

// Stop halts polling and waits for the loop to exit. An in-flight poll
// finishes its dispatches before Stop returns; stopping only prevents
// new cycles. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state != StateListening {
		w.mu.Unlock()
		return
	}
	w.state = StateStopped
	stop, done := w.stop, w.done
	w.mu.Unlock()

	close(stop)
	<-done
	w.log.Info().Msg("watcher stopped")
}

// loop ticks until stopped. Dispatches run on a context the stop signal
// never cancels, so a dispatch awaiting transaction confirmation runs to
// completion; the stop signal is only checked between cycles.
func (w *Watcher) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.poll(context.Background())
		}
	}
}

// poll scans (highWater, tip] for classification events. The high-water
// mark only moves forward, and only past fully processed blocks; any
// query error leaves it untouched.
func (w *Watcher) poll(ctx context.Context) {
	from := w.HighWater() + 1

	tip, err := w.ledger.BlockNumber(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("tip query failed")
		observability.RecordPollError()
		return
	}
	if tip < from {
		return
	}

	logs, err := w.ledger.FilterLogs(ctx, ledger.FilterQuery{
		Address:   w.oracle.Address(),
		FromBlock: from,
		ToBlock:   tip,
		Topic0:    w.oracle.NewsClassifiedTopic(),
	})
	if err != nil {
		w.log.Warn().Err(err).Int64("from", from).Int64("to", tip).Msg("log query failed")
		observability.RecordPollError()
		return
	}

	processedUpTo := w.processBatch(ctx, logs, tip)

	w.mu.Lock()
	if processedUpTo > w.highWater {
		w.highWater = processedUpTo
	}
	observability.UpdateHighWater(w.highWater)
	w.mu.Unlock()
}

// processBatch dispatches events block by block, capping work per cycle.
// Returns the last block whose events were all handled. A single block
// larger than the cap is still processed whole: blocks never split.
func (w *Watcher) processBatch(ctx context.Context, logs []ledger.Log, tip int64) int64 {
	if len(logs) == 0 {
		return tip
	}

	count := 0
	i := 0
	for i < len(logs) {
		block := logs[i].BlockNumber
		j := i
		for j < len(logs) && logs[j].BlockNumber == block {
			j++
		}

		if count > 0 && count+(j-i) > w.maxCycle {
			// Next cycle resumes from this block.
			return block - 1
		}

		for _, l := range logs[i:j] {
			w.handleLog(ctx, l)
			count++
		}
		i = j
	}

	return tip
}

func (w *Watcher) handleLog(ctx context.Context, l ledger.Log) {
	event, err := w.oracle.ParseNewsClassified(l)
	if err != nil {
		w.log.Warn().Err(err).Str("tx", l.TxHash).Msg("undecodable classification event")
		return
	}

	if !w.processed.Add(event.ClassificationID) {
		w.log.Debug().
			Str("classification_id", event.ClassificationID).
			Msg("duplicate classification suppressed")
		observability.RecordDuplicateSuppressed()
		return
	}

	observability.RecordDispatch()
	if err := w.dispatch(ctx, event.Classification()); err != nil {
		w.log.Error().
			Err(err).
			Str("classification_id", event.ClassificationID).
			Msg("dispatch failed")
	}
}

// catchUp walks the newest classifications through the oracle's index
// accessors and dispatches any whose on-chain processed flag is still
// unset. This covers events emitted while the watcher was down.
func (w *Watcher) catchUp(ctx context.Context) error {
	count, err := w.oracle.GetClassificationCount(ctx)
	if err != nil {
		return fmt.Errorf("classification count: %w", err)
	}

	first := count - int64(w.sweep)
	if first < 0 {
		first = 0
	}

	for idx := first; idx < count; idx++ {
		id, err := w.oracle.GetClassificationIDByIndex(ctx, idx)
		if err != nil {
			return fmt.Errorf("classification id at %d: %w", idx, err)
		}

		if w.processed.Contains(id) {
			continue
		}

		done, err := w.agent.ProcessedClassifications(ctx, id)
		if err != nil {
			return fmt.Errorf("processed flag for %s: %w", id, err)
		}
		if done {
			w.processed.Add(id)
			continue
		}

		classification, err := w.oracle.GetClassification(ctx, id)
		if err != nil {
			return fmt.Errorf("classification %s: %w", id, err)
		}

		if !w.processed.Add(id) {
			continue
		}

		w.log.Info().
			Str("classification_id", id).
			Int64("index", idx).
			Msg("catch-up dispatch")
		if err := w.dispatch(ctx, classification); err != nil {
			w.log.Error().Err(err).Str("classification_id", id).Msg("catch-up dispatch failed")
		}
	}

	return nil
}
