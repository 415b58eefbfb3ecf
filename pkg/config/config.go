// Copyright 2025 Ditto Network
//
// Package config loads the engine's configuration from environment
// variables. Call Load() once at process start; per-chain RPC URLs and
// block-range caps are discovered by scanning os.Environ() for the
// RPC_URL_<chainId> / MAX_BLOCK_RANGE_<chainId> naming convention.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ChainConfig is one chain's RPC endpoint and event-scan tuning.
type ChainConfig struct {
	ChainID       string
	RPCURL        string
	MaxBlockRange uint64
}

// Config holds all configuration for the workflow engine.
type Config struct {
	// Chains, in RPC_URL_<id> environment discovery order (§4.1 default
	// chain = first configured chain by insertion order).
	Chains   []ChainConfig
	chainIdx map[string]int

	// Storage
	MongoURI string
	DBName   string

	// Scheduler
	MaxWorkers              int
	RunnerNodeSleep         time.Duration
	ChainSyncCheckInterval  time.Duration
	TokenRefreshInterval    time.Duration
	MaxMissingNextSimLimit  int

	// Execution
	FullNode bool

	// External services
	IPFSServiceURL    string
	ExecutorPrivateKey string
	ExecutorAddress   string
	WasmServerURL     string
	RPCProxyURL       string
	// ReportingServiceURL is the base URL for C11's challenge-response
	// and submit-report endpoints (§4.11). The spec names the endpoints
	// but not their host's environment variable, so this is a naming
	// decision recorded in DESIGN.md.
	ReportingServiceURL string
	// RPCMethodPolicyFile optionally points at a YAML file adding methods
	// to C1's read-only whitelist (§4.1). Empty means the built-in set is
	// the whole policy.
	RPCMethodPolicyFile string

	// HTTP (validation API / wasm runner)
	HTTPPort     int
	MaxBodyBytes int64
	MaxWasmBytes int64
	MaxTimeoutMs int

	// Timeouts
	OnchainTimeoutMs int
	OnchainRetries   int

	IsProd bool
}

// Load reads configuration from environment variables, applying the
// defaults from spec §6.
func Load() (*Config, error) {
	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", ""),
		DBName:   getEnv("DB_NAME", "workflow_engine"),

		MaxWorkers:             getEnvInt("MAX_WORKERS", 4),
		RunnerNodeSleep:        time.Duration(getEnvInt("RUNNER_NODE_SLEEP", 60)) * time.Second,
		ChainSyncCheckInterval: time.Duration(getEnvInt("CHAIN_SYNC_CHECK_INTERVAL_MS", 5000)) * time.Millisecond,
		TokenRefreshInterval:   time.Duration(getEnvInt("TOKEN_REFRESH_INTERVAL_MS", 3_600_000)) * time.Millisecond,
		MaxMissingNextSimLimit: getEnvInt("MAX_MISSING_NEXT_SIM_LIMIT", 100),

		FullNode: getEnvBool("FULL_NODE", false),

		IPFSServiceURL:     getEnv("IPFS_SERVICE_URL", ""),
		ExecutorPrivateKey: getEnv("EXECUTOR_PRIVATE_KEY", ""),
		ExecutorAddress:    getEnv("EXECUTOR_ADDRESS", ""),
		WasmServerURL:      getEnv("WASM_SERVER_URL", ""),
		RPCProxyURL:        getEnv("RPC_PROXY_URL", ""),
		ReportingServiceURL: getEnv("REPORTING_SERVICE_URL", ""),
		RPCMethodPolicyFile: getEnv("RPC_METHOD_POLICY_FILE", ""),

		HTTPPort:     getEnvInt("HTTP_PORT", 8080),
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 12*1024*1024)),
		MaxWasmBytes: int64(getEnvInt("MAX_WASM_BYTES", 10*1024*1024)),
		MaxTimeoutMs: getEnvInt("MAX_TIMEOUT_MS", 2000),

		OnchainTimeoutMs: getEnvInt("ONCHAIN_TIMEOUT_MS", 5000),
		OnchainRetries:   getEnvInt("ONCHAIN_RETRIES", 1),

		IsProd: getEnvBool("IS_PROD", false),
	}

	cfg.Chains, cfg.chainIdx = discoverChains()

	return cfg, nil
}

// Validate checks the minimum configuration required to start the
// scheduler: at least one chain and a document store.
func (c *Config) Validate() error {
	var errs []string
	if len(c.Chains) == 0 {
		errs = append(errs, "at least one RPC_URL_<chainId> must be set")
	}
	if c.MongoURI == "" {
		errs = append(errs, "MONGO_URI is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration invalid:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// DefaultChain returns the first configured chain (§4.1), or false if no
// chains are configured.
func (c *Config) DefaultChain() (ChainConfig, bool) {
	if len(c.Chains) == 0 {
		return ChainConfig{}, false
	}
	return c.Chains[0], true
}

// Chain looks up a chain's config by id.
func (c *Config) Chain(chainID string) (ChainConfig, bool) {
	idx, ok := c.chainIdx[chainID]
	if !ok {
		return ChainConfig{}, false
	}
	return c.Chains[idx], true
}

// discoverChains scans the environment for RPC_URL_<id> and the matching
// MAX_BLOCK_RANGE_<id> (default 10000), preserving os.Environ() order so
// the "first configured chain" default is deterministic across a process
// run (insertion order of the underlying environment, not map order).
func discoverChains() ([]ChainConfig, map[string]int) {
	var chains []ChainConfig
	idx := make(map[string]int)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "RPC_URL_") {
			continue
		}
		chainID := strings.TrimPrefix(key, "RPC_URL_")
		if chainID == "" || value == "" {
			continue
		}
		if _, exists := idx[chainID]; exists {
			continue
		}
		idx[chainID] = len(chains)
		chains = append(chains, ChainConfig{
			ChainID:       chainID,
			RPCURL:        value,
			MaxBlockRange: uint64(getEnvInt("MAX_BLOCK_RANGE_"+chainID, 10000)),
		})
	}
	return chains, idx
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
