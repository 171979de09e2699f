// Package config loads splitsync settings from an optional YAML file and
// SPLITSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SPLITSYNC_STORE_DRIVER.
const EnvPrefix = "SPLITSYNC"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the server and the CLI.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
	Display DisplayConfig `mapstructure:"display"`
	Client  ClientConfig  `mapstructure:"client"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Driver           string `mapstructure:"driver"`
	SQLitePath       string `mapstructure:"sqlite_path"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int    `mapstructure:"postgres_max_conns"`
}

// SyncConfig tunes sync sessions.
type SyncConfig struct {
	Debounce   time.Duration `mapstructure:"debounce"`
	EchoWindow time.Duration `mapstructure:"echo_window"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DisplayConfig controls how amounts are printed.
type DisplayConfig struct {
	Currency string `mapstructure:"currency"`
}

// ClientConfig is used by splitctl when talking to a server.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "./data/ledgers.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.postgres_max_conns", 10)

	v.SetDefault("sync.debounce", "3s")
	v.SetDefault("sync.echo_window", "100ms")

	v.SetDefault("log.level", "info")
	v.SetDefault("display.currency", "KRW")
	v.SetDefault("client.server_url", "http://localhost:8080")
}

// Load reads configuration. With an empty path, splitsync.yaml is looked up
// in the working directory and skipped if missing; an explicit path must exist.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// LOG_LEVEL is shared with pkg/logging.
	if err := v.BindEnv("log.level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return nil, fmt.Errorf("failed to bind log level: %w", err)
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("splitsync")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings can be used together.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Sync.Debounce <= 0 {
		return fmt.Errorf("sync.debounce must be positive, got %s", c.Sync.Debounce)
	}
	if c.Sync.EchoWindow < 0 {
		return fmt.Errorf("sync.echo_window must not be negative, got %s", c.Sync.EchoWindow)
	}
	return nil
}
