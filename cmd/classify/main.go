// Package main runs one headline through the full pipeline: classify,
// post to the oracle, execute the trade, and settle the profitability
// verdict. Useful for manual runs and smoke tests against a deployed
// contract pair.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
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
)

func main() {
	classifyOnly := flag.Bool("classify-only", false, "Score the headline without touching the chain")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall pipeline deadline")
	flag.Parse()

	headline := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if headline == "" {
		fmt.Fprintln(os.Stderr, "usage: classify [flags] <headline>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cls := classifier.New(classifier.Options{MinConfidence: cfg.MinConfidence, Logger: logger})

	if *classifyOnly {
		result, err := cls.Classify(ctx, headline)
		if err != nil {
			fatal(err)
		}
		printJSON(result)
		return
	}

	client := ledger.NewHTTPClient(cfg.RPCEndpoints[0], ledger.WithConfirmTimeout(cfg.ConfirmTimeout))
	oracleBinding, err := contracts.NewNewsOracle(client, cfg.OracleAddress, cfg.SignerAddress)
	if err != nil {
		fatal(err)
	}
	agentBinding, err := contracts.NewTradingAgent(client, cfg.AgentAddress, cfg.SignerAddress)
	if err != nil {
		fatal(err)
	}

	poster, err := oracle.NewPoster(oracle.Options{Contract: oracleBinding, GasLimit: cfg.PostGasLimit, Logger: logger})
	if err != nil {
		fatal(err)
	}
	exec, err := executor.New(executor.Options{Agent: agentBinding, GasLimit: cfg.TradeGasLimit, Logger: logger})
	if err != nil {
		fatal(err)
	}
	eval, err := evaluator.New(evaluator.Options{Agent: agentBinding, GasLimit: cfg.EvalGasLimit, Cooldown: cfg.EvaluationCooldown, Logger: logger})
	if err != nil {
		fatal(err)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Classifier: cls,
		Poster:     poster,
		Executor:   exec,
		Evaluator:  eval,
		Logger:     logger,
	})
	if err != nil {
		fatal(err)
	}

	result, err := orch.ClassifyAndTrade(ctx, headline)
	if err != nil {
		var stageErr *orchestrator.StageError
		if errors.As(err, &stageErr) {
			fmt.Fprintf(os.Stderr, "pipeline failed at %s: %v\n", stageErr.Stage, stageErr.Err)
			os.Exit(1)
		}
		fatal(err)
	}

	printJSON(result)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
