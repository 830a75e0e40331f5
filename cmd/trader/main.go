// Package main runs the autonomous news trader: the event watcher feeds
// confirmed classifications into the trade pipeline, outcomes are
// mirrored to storage, and an HTTP server exposes state and a live trade
// stream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"news-trader/internal/classifier"
	"news-trader/internal/config"
	"news-trader/internal/contracts"
	"news-trader/internal/evaluator"
	"news-trader/internal/executor"
	"news-trader/internal/ledger"
	"news-trader/internal/oracle"
	"news-trader/internal/orchestrator"
	"news-trader/internal/server"
	"news-trader/internal/storage"
	chstore "news-trader/internal/storage/clickhouse"
	"news-trader/internal/storage/memory"
	"news-trader/internal/storage/migrations"
	pgstore "news-trader/internal/storage/postgres"
	"news-trader/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, logger); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("trader exited")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger zerolog.Logger) error {
	client := newLedgerClient(cfg)

	oracleBinding, err := contracts.NewNewsOracle(client, cfg.OracleAddress, cfg.SignerAddress)
	if err != nil {
		return fmt.Errorf("oracle binding: %w", err)
	}
	agentBinding, err := contracts.NewTradingAgent(client, cfg.AgentAddress, cfg.SignerAddress)
	if err != nil {
		return fmt.Errorf("agent binding: %w", err)
	}

	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	poster, err := oracle.NewPoster(oracle.Options{
		Contract: oracleBinding,
		GasLimit: cfg.PostGasLimit,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	exec, err := executor.New(executor.Options{
		Agent:      agentBinding,
		Valuations: stores.valuations,
		GasLimit:   cfg.TradeGasLimit,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	eval, err := evaluator.New(evaluator.Options{
		Agent:    agentBinding,
		GasLimit: cfg.EvalGasLimit,
		Cooldown: cfg.EvaluationCooldown,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		ListenAddr:      cfg.HTTPListenAddr,
		Classifications: stores.classifications,
		Trades:          stores.trades,
		Agent:           agentBinding,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Classifier:      classifier.New(classifier.Options{MinConfidence: cfg.MinConfidence, Logger: logger}),
		Poster:          poster,
		Executor:        exec,
		Evaluator:       eval,
		Agent:           agentBinding,
		Classifications: stores.classifications,
		Trades:          stores.trades,
		Listener:        srv,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	w, err := watcher.New(watcher.Options{
		Ledger:       client,
		Oracle:       oracleBinding,
		Agent:        agentBinding,
		Dispatch:     orch.Dispatch,
		PollInterval: cfg.PollInterval,
		MaxPerCycle:  cfg.MaxPerCycle,
		SweepDepth:   cfg.SweepDepth,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	srv.SetWatcher(w)

	handleSignals(cancel, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			cancel()
		}
	}()

	// Settle any verdicts a previous shutdown left pending.
	if err := orch.RecoverEvaluations(ctx, cfg.SweepDepth); err != nil {
		logger.Warn().Err(err).Msg("evaluation recovery incomplete")
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	logger.Info().
		Str("oracle", cfg.OracleAddress).
		Str("agent", cfg.AgentAddress).
		Dur("poll_interval", cfg.PollInterval).
		Msg("trader running")

	<-ctx.Done()

	w.Stop()
	orch.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown failed")
	}

	return ctx.Err()
}

// allStores bundles the mirrors behind their interfaces, memory or
// database backed.
type allStores struct {
	classifications storage.ClassificationStore
	trades          storage.TradeStore
	valuations      storage.ValuationStore
}

func createStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*allStores, func(), error) {
	if cfg.PostgresDSN == "" {
		logger.Warn().Msg("no postgres dsn, using in-memory mirrors")
		return &allStores{
			classifications: memory.NewClassificationStore(),
			trades:          memory.NewTradeStore(),
			valuations:      memory.NewValuationStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &allStores{
		classifications: pgstore.NewClassificationStore(pool),
		trades:          pgstore.NewTradeStore(pool),
		valuations:      memory.NewValuationStore(),
	}
	cleanup := func() { pool.Close() }

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.valuations = chstore.NewValuationStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

func newLedgerClient(cfg *config.Config) ledger.Client {
	primary := ledger.NewHTTPClient(cfg.RPCEndpoints[0], ledger.WithConfirmTimeout(cfg.ConfirmTimeout))
	if len(cfg.RPCEndpoints) == 1 {
		return primary
	}

	fallbacks := make([]ledger.Client, 0, len(cfg.RPCEndpoints)-1)
	for _, endpoint := range cfg.RPCEndpoints[1:] {
		fallbacks = append(fallbacks, ledger.NewHTTPClient(endpoint, ledger.WithConfirmTimeout(cfg.ConfirmTimeout)))
	}
	return ledger.NewFailover(primary, fallbacks...)
}

// handleSignals cancels on the first signal and force-exits on the
// second.
func handleSignals(cancel context.CancelFunc, logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		sig = <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
		os.Exit(1)
	}()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
