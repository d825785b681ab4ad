// Package configs loads runtime configuration for the ledger engine
// CLI: the columnar store's host, port and credentials from the
// environment, plus a YAML file for everything that is not a secret
// (the store's database name, default snapshot cadence, negative-risk
// adapter/wrapped-collateral addresses, exchange operator addresses).
package configs

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the entire configuration surface for one CLI invocation.
type Config struct {
	Store    StoreYAMLData    `yaml:"store"`
	Engine   EngineYAMLData   `yaml:"engine"`
	Snapshot SnapshotYAMLData `yaml:"snapshot"`
}

// StoreYAMLData names the ClickHouse database the DSN (built from
// environment) connects to; the DSN itself is never written to a
// config file.
type StoreYAMLData struct {
	Database string `yaml:"database"`
}

// EngineYAMLData carries the addresses the adapter_conversion handler's
// negative-risk reconstruction needs (spec.md §4.5, §4.8), plus the
// exchange operator addresses the unified stream's transfer-dedup rule
// filters against (spec.md §4.4).
type EngineYAMLData struct {
	NegRiskAdapterAddress    string   `yaml:"neg_risk_adapter_address"`
	WrappedCollateralAddress string   `yaml:"wrapped_collateral_address"`
	ExchangeAddresses        []string `yaml:"exchange_addresses"`
}

// SnapshotYAMLData is the default cadence a replay uses absent an
// explicit --interval flag.
type SnapshotYAMLData struct {
	IntervalSeconds int64 `yaml:"interval_seconds"`
}

// LoadConfig reads and parses the YAML config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &config, nil
}

// LoadDotEnv loads a .env file (if present) into the process
// environment before the store DSN and any secrets are read from it.
// A missing file is not an error — the CLI may rely on real
// environment variables alone in production.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// StoreDSN builds the ClickHouse connection string from environment
// variables, per spec.md §6's "connection target... sourced from
// environment" requirement. CLICKHOUSE_HOST/PORT/USER/PASSWORD are
// read directly; cfg.Store.Database supplies the non-secret database
// name from the YAML file.
func (c *Config) StoreDSN() string {
	host := envOr("CLICKHOUSE_HOST", "127.0.0.1")
	port := envOr("CLICKHOUSE_PORT", "9000")
	user := envOr("CLICKHOUSE_USER", "default")
	password := os.Getenv("CLICKHOUSE_PASSWORD")

	if password == "" {
		return fmt.Sprintf("clickhouse://%s@%s:%s/%s", user, host, port, c.Store.Database)
	}
	return fmt.Sprintf("clickhouse://%s:%s@%s:%s/%s", user, password, host, port, c.Store.Database)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
