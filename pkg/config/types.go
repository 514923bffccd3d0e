package config

import "time"

// Config is the root configuration structure
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Index   IndexConfig   `yaml:"index"`
	Gate    GateConfig    `yaml:"gate"`
	Store   StoreConfig   `yaml:"store"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json text"`
	Output string `yaml:"output" default:"stdout"`
}

// MetricsConfig configures Prometheus metrics. A batch run has no scrape
// window, so metrics are pushed to PushGateway when it is set.
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PushGateway string `yaml:"push_gateway" validate:"omitempty,url"`
	Job         string `yaml:"job" default:"gpu_index"`
}

// IndexConfig locates observation files and calculator outputs.
type IndexConfig struct {
	DataDir      string         `yaml:"data_dir" default:"."`
	CombinedFile string         `yaml:"combined_file" default:"t4_combined_prices.json"`
	FilePattern  string         `yaml:"file_pattern" default:"*_t4_prices.json"`
	ReportFile   string         `yaml:"report_file" default:"t4_weighted_index.json"`
	HistoryFile  string         `yaml:"history_file" default:"t4_gpu_index.csv"`
	Registry     RegistryConfig `yaml:"registry"`
}

// RegistryConfig overrides the built-in provider registry. Empty lists keep
// the built-in entries.
type RegistryConfig struct {
	Hyperscalers          []HyperscalerConfig `yaml:"hyperscalers" validate:"dive"`
	Neoclouds             []NeocloudConfig    `yaml:"neoclouds" validate:"dive"`
	Aliases               []AliasConfig       `yaml:"aliases" validate:"dive"`
	DefaultNeocloudWeight float64             `yaml:"default_neocloud_weight" default:"0.05"`
	DefaultDiscount       float64             `yaml:"default_discount" default:"0.3"`
}

// HyperscalerConfig is one hyperscaler registry entry. An omitted discount
// falls back to the registry default.
type HyperscalerConfig struct {
	Name     string   `yaml:"name" validate:"required"`
	Weight   float64  `yaml:"weight"`
	Discount *float64 `yaml:"discount"`
}

// NeocloudConfig is one neocloud registry entry.
type NeocloudConfig struct {
	Name   string  `yaml:"name" validate:"required"`
	Weight float64 `yaml:"weight"`
}

// AliasConfig maps a loosely named provider onto its canonical key.
type AliasConfig struct {
	Alias     string `yaml:"alias" validate:"required"`
	Canonical string `yaml:"canonical" validate:"required"`
}

// GateConfig configures the publish gate.
type GateConfig struct {
	Tolerance float64 `yaml:"tolerance" default:"0.2" validate:"gt=0,lt=1"`
}

// StoreConfig configures the durable index store. An empty DSN disables it.
type StoreConfig struct {
	Driver         string   `yaml:"driver" validate:"omitempty,oneof=postgres sqlite3"`
	DSN            string   `yaml:"dsn"`
	ConnectTimeout Duration `yaml:"connect_timeout" default:"10s"`
}

// OracleConfig configures the on-chain price oracle updater.
type OracleConfig struct {
	RPCURL          string   `yaml:"rpc_url"`
	PrivateKey      string   `yaml:"private_key"`
	ContractAddress string   `yaml:"contract_address" default:"0xB44d652354d12Ac56b83112c6ece1fa2ccEfc683" validate:"eth_addr"`
	ChainID         int64    `yaml:"chain_id" default:"11155111" validate:"gt=0"`
	Network         string   `yaml:"network" default:"sepolia"`
	Asset           string   `yaml:"asset" default:"T4_HOURLY" validate:"required"`
	GasLimit        uint64   `yaml:"gas_limit" default:"100000" validate:"gt=0"`
	ReceiptTimeout  Duration `yaml:"receipt_timeout" default:"180s"`
	AuditLog        string   `yaml:"audit_log" default:"t4_contract_update_log.json"`
	AuditLogSize    int      `yaml:"audit_log_size" default:"100" validate:"gt=0"`
	MaxSanePrice    float64  `yaml:"max_sane_price" default:"10"`
}

// NotifyConfig configures the Kafka notifier for accepted index values.
// No brokers disables it.
type NotifyConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"gpu-index.published"`
	WriteTimeout Duration `yaml:"write_timeout" default:"10s"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
