package core

import (
	"os"
	"strconv"
	"time"
)

// Config carries every tunable of the engine. It is constructed once at
// process start and handed to each component constructor.
type Config struct {
	ListenAddr string
	DataDir    string
	LogLevel   string

	// Consensus parameters.
	Difficulty           int           // required leading zero hex chars
	MaxNonceAttempts     uint64        // proof-of-work bound per tick
	BlockInterval        time.Duration // producer tick period
	MaxBlockTxs          int           // pending-pool batch size per block
	EligibilityThreshold float64       // minimum score to produce blocks

	// Genesis allocation: address -> initial balance. All other addresses
	// start at zero.
	GenesisAlloc map[string]float64
}

// DefaultConfig returns the engine defaults used when no environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		ListenAddr:           ":8080",
		DataDir:              "chain.db",
		LogLevel:             "info",
		Difficulty:           2,
		MaxNonceAttempts:     1_000_000,
		BlockInterval:        10 * time.Second,
		MaxBlockTxs:          10,
		EligibilityThreshold: 70.0,
		GenesisAlloc: map[string]float64{
			"genesis-validator-1": 10_000,
			"genesis-validator-2": 10_000,
			"genesis-validator-3": 10_000,
		},
	}
}

// ConfigFromEnv builds the config from environment variables, falling back
// to defaults. The genesis allocation has no override: it is part of chain
// identity, and two nodes with different allocations would disagree on
// every state root.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.ListenAddr = env("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DataDir = env("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.Difficulty = envInt("POE_DIFFICULTY", cfg.Difficulty)
	cfg.MaxNonceAttempts = envUint("POE_NONCE_ATTEMPTS", cfg.MaxNonceAttempts)
	cfg.MaxBlockTxs = envInt("POE_BLOCK_TXS", cfg.MaxBlockTxs)
	cfg.BlockInterval = envDuration("POE_BLOCK_INTERVAL", cfg.BlockInterval)
	cfg.EligibilityThreshold = envFloat("POE_ELIGIBILITY_THRESHOLD", cfg.EligibilityThreshold)
	return cfg
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envUint(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
