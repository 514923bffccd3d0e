package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "t4_combined_prices.json", cfg.Index.CombinedFile)
	assert.Equal(t, "*_t4_prices.json", cfg.Index.FilePattern)
	assert.Equal(t, "t4_weighted_index.json", cfg.Index.ReportFile)
	assert.Equal(t, "t4_gpu_index.csv", cfg.Index.HistoryFile)
	assert.InDelta(t, 0.2, cfg.Gate.Tolerance, 1e-12)
	assert.Equal(t, int64(11155111), cfg.Oracle.ChainID)
	assert.Equal(t, uint64(100000), cfg.Oracle.GasLimit)
	assert.Equal(t, 180*time.Second, cfg.Oracle.ReceiptTimeout.ToDuration())
	assert.Equal(t, 100, cfg.Oracle.AuditLogSize)
	assert.Equal(t, "T4_HOURLY", cfg.Oracle.Asset)

	require.NoError(t, Validate(cfg))
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_DSN", "file:index.db")
	path := writeConfig(t, `
logging:
  level: debug
  format: text
gate:
  tolerance: 0.1
store:
  driver: sqlite3
  dsn: ${TEST_DSN}
oracle:
  receipt_timeout: 30s
index:
  registry:
    hyperscalers:
      - name: AWS
        weight: 1.0
        discount: 0.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.InDelta(t, 0.1, cfg.Gate.Tolerance, 1e-12)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "file:index.db", cfg.Store.DSN)
	assert.Equal(t, 30*time.Second, cfg.Oracle.ReceiptTimeout.ToDuration())
	require.Len(t, cfg.Index.Registry.Hyperscalers, 1)
	assert.True(t, cfg.StoreEnabled())
	require.NoError(t, Validate(cfg))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRPCURL:       "https://rpc.example",
		EnvWalletKey:    "0xwallet",
		EnvDatabaseURL:  "postgres://u:p@db/index",
		EnvKafkaBrokers: "k1:9092, k2:9092,",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	var cfg Config
	applyEnv(&cfg, lookup)
	applyDerived(&cfg)

	assert.Equal(t, "https://rpc.example", cfg.Oracle.RPCURL)
	assert.Equal(t, "0xwallet", cfg.Oracle.PrivateKey)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Brokers)

	env[EnvUpdaterKey] = "0xupdater"
	applyEnv(&cfg, lookup)
	assert.Equal(t, "0xupdater", cfg.Oracle.PrivateKey, "updater key wins over wallet key")
}

func TestValidate(t *testing.T) {
	one := 1.0
	tests := []struct {
		name    string
		mutate  func(*Config)
		valid   bool
		wantErr error
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
			valid:  true,
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
		},
		{
			name:   "tolerance out of range",
			mutate: func(c *Config) { c.Gate.Tolerance = 1.5 },
		},
		{
			name:   "bad contract address",
			mutate: func(c *Config) { c.Oracle.ContractAddress = "0x1234" },
		},
		{
			name: "hyperscaler discount of one",
			mutate: func(c *Config) {
				c.Index.Registry.Hyperscalers = []HyperscalerConfig{{Name: "AWS", Weight: 0.5, Discount: &one}}
			},
			wantErr: ErrInvalidDiscount,
		},
		{
			name: "neocloud weight above one",
			mutate: func(c *Config) {
				c.Index.Registry.Neoclouds = []NeocloudConfig{{Name: "Vast.ai", Weight: 1.5}}
			},
			wantErr: ErrInvalidWeight,
		},
		{
			name: "duplicate hyperscaler",
			mutate: func(c *Config) {
				c.Index.Registry.Hyperscalers = []HyperscalerConfig{{Name: "AWS", Weight: 0.5}, {Name: "aws", Weight: 0.5}}
			},
			wantErr: ErrDuplicateProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			switch {
			case tt.valid:
				assert.NoError(t, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateOracle(t *testing.T) {
	cfg := Default().Oracle
	cfg.RPCURL = ""
	cfg.PrivateKey = ""

	assert.ErrorIs(t, ValidateOracle(&cfg, true), ErrRPCURLRequired)

	cfg.RPCURL = "https://rpc.example"
	assert.NoError(t, ValidateOracle(&cfg, true))
	assert.ErrorIs(t, ValidateOracle(&cfg, false), ErrPrivateKeyRequired)

	cfg.PrivateKey = "0xabc"
	assert.NoError(t, ValidateOracle(&cfg, false))
}
