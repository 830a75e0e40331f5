// Package main serves the read-only status API over the configured
// stores without running the trading pipeline. Useful for inspecting a
// deployment's history while the trader runs elsewhere.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"news-trader/internal/config"
	"news-trader/internal/contracts"
	"news-trader/internal/ledger"
	"news-trader/internal/server"
	"news-trader/internal/storage"
	"news-trader/internal/storage/memory"
	"news-trader/internal/storage/migrations"
	pgstore "news-trader/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, logger); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger zerolog.Logger) error {
	client := ledger.NewHTTPClient(cfg.RPCEndpoints[0])
	agentBinding, err := contracts.NewTradingAgent(client, cfg.AgentAddress, cfg.SignerAddress)
	if err != nil {
		return fmt.Errorf("agent binding: %w", err)
	}

	classifications, trades, cleanup, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(server.Options{
		ListenAddr:      cfg.HTTPListenAddr,
		Classifications: classifications,
		Trades:          trades,
		Agent:           agentBinding,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			cancel()
		}
	}()
	logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("status server running")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown failed")
	}

	return ctx.Err()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.ClassificationStore, storage.TradeStore, func(), error) {
	if cfg.PostgresDSN == "" {
		logger.Warn().Msg("no postgres dsn, serving empty in-memory mirrors")
		return memory.NewClassificationStore(), memory.NewTradeStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return pgstore.NewClassificationStore(pool), pgstore.NewTradeStore(pool), func() { pool.Close() }, nil
}
