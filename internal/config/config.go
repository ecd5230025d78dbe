// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Ledger drivers accepted in ledger.driver.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
	LedgerNone     = "none"
)

// appDir names the per-user configuration and data directories.
const appDir = "progression"

// DefaultSQLitePath is where the sqlite ledger lives when ledger.dsn is empty.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, appDir, "ledger.db")
}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Hub      HubConfig      `mapstructure:"hub"`
	Sinks    SinksConfig    `mapstructure:"sinks"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Simulate SimulateConfig `mapstructure:"simulate"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig controls span sampling.
type TracingConfig struct {
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// HubConfig sizes the event hub.
type HubConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// SinksConfig enables the optional sinks; the ledger sink follows ledger.driver.
type SinksConfig struct {
	Log        bool `mapstructure:"log"`
	Prometheus bool `mapstructure:"prometheus"`
}

// LedgerConfig selects where runs are recorded.
type LedgerConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SimulateConfig shapes the synthetic runs driven by the CLI.
type SimulateConfig struct {
	Name     string        `mapstructure:"name"`
	Runs     int           `mapstructure:"runs"`
	Steps    int           `mapstructure:"steps"`
	Interval time.Duration `mapstructure:"interval"`
	CancelAt float64       `mapstructure:"cancel_at"`
	Every    time.Duration `mapstructure:"every"`
	Trackers int           `mapstructure:"trackers"`
	Workers  int           `mapstructure:"workers"`
	Rate     float64       `mapstructure:"rate"`
	Burst    int           `mapstructure:"burst"`

	// Rates overrides Rate for individual tracker names.
	Rates map[string]float64 `mapstructure:"rates"`
}

// Load builds a Config from disk/environment. With an empty path it looks for
// progression.{yaml,json,toml} in the working directory, the XDG config home,
// $HOME/.progression and /etc/progression, and carries on with defaults when
// none exists.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied Viper instance, so flags bound to v
// take part in resolution.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix("PROGRESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("progression")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, appDir))
		v.AddConfigPath("$HOME/.progression")
		v.AddConfigPath("/etc/progression/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Ledger.Driver == LedgerSQLite && cfg.Ledger.DSN == "" {
		cfg.Ledger.DSN = DefaultSQLitePath()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("hub.buffer_size", 1024)
	v.SetDefault("hub.max_batch_events", 256)
	v.SetDefault("hub.max_batch_wait", "250ms")
	v.SetDefault("hub.sink_timeout", "5s")
	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.prometheus", true)
	v.SetDefault("ledger.driver", LedgerMemory)
	v.SetDefault("ledger.table", "progress_runs")
	v.SetDefault("ledger.auto_migrate", false)
	v.SetDefault("simulate.name", "demo")
	v.SetDefault("simulate.runs", 3)
	v.SetDefault("simulate.steps", 10)
	v.SetDefault("simulate.interval", "100ms")
	v.SetDefault("simulate.cancel_at", 0.0)
	v.SetDefault("simulate.every", "5s")
	v.SetDefault("simulate.trackers", 1)
	v.SetDefault("simulate.workers", 1)
	v.SetDefault("simulate.rate", 0.0)
	v.SetDefault("simulate.burst", 1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Hub.BufferSize < 0 || c.Hub.MaxBatchEvents < 0 {
		return fmt.Errorf("hub.buffer_size and hub.max_batch_events must be >= 0")
	}
	switch c.Ledger.Driver {
	case LedgerMemory, LedgerNone, LedgerSQLite:
	case LedgerPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn must be set when ledger.driver is postgres")
		}
	default:
		return fmt.Errorf("ledger.driver must be one of memory, sqlite, postgres, none; got %q", c.Ledger.Driver)
	}
	if c.Simulate.Runs <= 0 {
		return fmt.Errorf("simulate.runs must be > 0")
	}
	if c.Simulate.Steps <= 0 {
		return fmt.Errorf("simulate.steps must be > 0")
	}
	if c.Simulate.Trackers <= 0 || c.Simulate.Workers <= 0 {
		return fmt.Errorf("simulate.trackers and simulate.workers must be > 0")
	}
	if c.Simulate.CancelAt < 0 || c.Simulate.CancelAt > 1 {
		return fmt.Errorf("simulate.cancel_at must be within [0, 1]")
	}
	return nil
}
