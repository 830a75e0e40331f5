// Package config loads runtime configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"news-trader/internal/contracts"
)

// Config holds all application configuration.
type Config struct {
	// Ledger endpoints. The first is primary; the rest are read failovers.
	RPCEndpoints []string `envconfig:"RPC_ENDPOINTS" required:"true"`

	// Contract addresses and the node-managed signing account.
	OracleAddress string `envconfig:"ORACLE_ADDRESS" required:"true"`
	AgentAddress  string `envconfig:"AGENT_ADDRESS" required:"true"`
	SignerAddress string `envconfig:"SIGNER_ADDRESS" required:"true"`

	MinConfidence      uint8         `envconfig:"MIN_CONFIDENCE_THRESHOLD" default:"60"`
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	EvaluationCooldown time.Duration `envconfig:"EVALUATION_COOLDOWN" default:"10s"`
	ConfirmTimeout     time.Duration `envconfig:"CONFIRMATION_TIMEOUT" default:"180s"`
	TradeGasLimit      uint64        `envconfig:"TRADE_GAS_LIMIT" default:"1000000"`
	PostGasLimit       uint64        `envconfig:"POST_GAS_LIMIT" default:"500000"`
	EvalGasLimit       uint64        `envconfig:"EVAL_GAS_LIMIT" default:"500000"`
	MaxPerCycle        int           `envconfig:"MAX_CLASSIFICATIONS_PER_CYCLE" default:"5"`
	SweepDepth         int           `envconfig:"CATCHUP_SWEEP_DEPTH" default:"50"`

	// Storage mirrors. Empty DSNs disable the corresponding mirror.
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
	ClickhouseDSN string `envconfig:"CLICKHOUSE_DSN"`

	HTTPListenAddr string `envconfig:"HTTP_LISTEN_ADDR" default:":8080"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values envconfig cannot.
func (c *Config) Validate() error {
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}
	for _, endpoint := range c.RPCEndpoints {
		if endpoint == "" {
			return fmt.Errorf("empty RPC endpoint")
		}
	}
	if !contracts.ValidAddress(c.OracleAddress) {
		return fmt.Errorf("invalid oracle address: %q", c.OracleAddress)
	}
	if !contracts.ValidAddress(c.AgentAddress) {
		return fmt.Errorf("invalid agent address: %q", c.AgentAddress)
	}
	if !contracts.ValidAddress(c.SignerAddress) {
		return fmt.Errorf("invalid signer address: %q", c.SignerAddress)
	}
	if c.MinConfidence > 100 {
		return fmt.Errorf("confidence threshold %d out of range", c.MinConfidence)
	}
	if c.MaxPerCycle <= 0 {
		return fmt.Errorf("max classifications per cycle must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}
