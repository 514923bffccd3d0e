// Package config provides configuration loading and validation for gpu-index.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Environment variables read on top of the YAML file.
const (
	EnvRPCURL         = "SEPOLIA_RPC_URL"
	EnvUpdaterKey     = "ORACLE_UPDATER_PRIVATE_KEY"
	EnvWalletKey      = "WALLET_PRIVATE_KEY"
	EnvOracleAddress  = "MULTI_ASSET_ORACLE_ADDRESS"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvKafkaBrokers   = "KAFKA_BROKERS"
	EnvPushGatewayURL = "PUSHGATEWAY_URL"
	EnvDataDir        = "GPU_INDEX_DATA_DIR"
)

// Load loads configuration from a YAML file and environment variables.
// An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		absPath, err := filepath.Abs(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, absPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	applyEnv(&cfg, os.LookupEnv)
	applyDerived(&cfg)

	return &cfg, nil
}

// Default returns a configuration with only defaults and environment applied.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults.Set only fails on malformed struct tags
		panic(err)
	}
	return cfg
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides credentials and endpoints from the environment.
func applyEnv(cfg *Config, lookup lookupFunc) {
	if v, ok := nonEmpty(lookup, EnvRPCURL); ok {
		cfg.Oracle.RPCURL = v
	}
	if v, ok := nonEmpty(lookup, EnvUpdaterKey); ok {
		cfg.Oracle.PrivateKey = v
	} else if v, ok := nonEmpty(lookup, EnvWalletKey); ok {
		cfg.Oracle.PrivateKey = v
	}
	if v, ok := nonEmpty(lookup, EnvOracleAddress); ok {
		cfg.Oracle.ContractAddress = v
	}
	if v, ok := nonEmpty(lookup, EnvDatabaseURL); ok {
		cfg.Store.DSN = v
	}
	if v, ok := nonEmpty(lookup, EnvKafkaBrokers); ok {
		cfg.Notify.Brokers = splitList(v)
	}
	if v, ok := nonEmpty(lookup, EnvPushGatewayURL); ok {
		cfg.Metrics.PushGateway = v
	}
	if v, ok := nonEmpty(lookup, EnvDataDir); ok {
		cfg.Index.DataDir = v
	}
}

// applyDerived fills fields whose default depends on other fields.
func applyDerived(cfg *Config) {
	if cfg.Store.DSN != "" && cfg.Store.Driver == "" {
		cfg.Store.Driver = "postgres"
	}
	if cfg.Metrics.PushGateway != "" {
		cfg.Metrics.Enabled = true
	}
}

func nonEmpty(lookup lookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StoreEnabled reports whether a durable store is configured.
func (c *Config) StoreEnabled() bool {
	return c.Store.DSN != ""
}

// NotifyEnabled reports whether Kafka notifications are configured.
func (c *Config) NotifyEnabled() bool {
	return len(c.Notify.Brokers) > 0
}

// DataPath resolves name inside the index data directory unless it is absolute.
func (c *Config) DataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Index.DataDir, name)
}
