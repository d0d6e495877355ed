// Package config loads notesync configuration.
//
// Values are resolved in this order, later sources winning:
//
//  1. built-in defaults
//  2. the config file (TOML or YAML; notesync.toml / notesync.yaml in
//     ./.notesync or ~/.config/notesync when no path is given)
//  3. variables from a .env file in the working directory
//  4. NOTESYNC_* environment variables, e.g. NOTESYNC_REMOTE_DSN or
//     NOTESYNC_RETRY_MAX_RETRIES
//
// ANTHROPIC_API_KEY is honored when NOTESYNC_AI_API_KEY is not set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/logging"
	"github.com/mschirtzinger/notesync/internal/retry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NOTESYNC"

// DriverMemory selects the in-memory remote store.
const DriverMemory = "memory"

// Config is the complete notesync configuration.
type Config struct {
	Remote    RemoteConfig      `mapstructure:"remote"`
	Session   SessionConfig     `mapstructure:"session"`
	AI        AIConfig          `mapstructure:"ai"`
	Retry     retry.Policy      `mapstructure:"retry"`
	Timeouts  executor.Timeouts `mapstructure:"timeouts"`
	Log       logging.Config    `mapstructure:"log"`
	Dashboard DashboardConfig   `mapstructure:"dashboard"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// RemoteConfig selects the remote store.
type RemoteConfig struct {
	// Driver is memory, sqlite, libsql, pgx or postgres.
	Driver string `mapstructure:"driver"`
	// DSN is a file path for sqlite and a connection URL otherwise.
	DSN string `mapstructure:"dsn"`
}

// SessionConfig identifies the signed-in user.
type SessionConfig struct {
	UserID      string `mapstructure:"user_id"`
	AccessToken string `mapstructure:"access_token"`
}

// AIConfig configures the text-generation provider.
type AIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// DashboardConfig configures the live dashboard.
type DashboardConfig struct {
	Addr            string        `mapstructure:"addr"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Remote:   RemoteConfig{Driver: "sqlite", DSN: ".notesync/remote.db"},
		Session:  SessionConfig{UserID: "local"},
		AI:       AIConfig{Model: domain.DefaultAIModel},
		Retry:    retry.DefaultPolicy(),
		Timeouts: executor.DefaultTimeouts(),
		Log:      logging.DefaultConfig(),
		Dashboard: DashboardConfig{
			Addr:            "127.0.0.1:8090",
			RefreshInterval: 30 * time.Second,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("remote.driver", d.Remote.Driver)
	v.SetDefault("remote.dsn", d.Remote.DSN)
	v.SetDefault("session.user_id", d.Session.UserID)
	v.SetDefault("session.access_token", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.initial_delay", d.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)
	v.SetDefault("retry.backoff_factor", d.Retry.BackoffFactor)
	v.SetDefault("timeouts.read", d.Timeouts.Read)
	v.SetDefault("timeouts.write", d.Timeouts.Write)
	v.SetDefault("timeouts.ai", d.Timeouts.AI)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("dashboard.addr", d.Dashboard.Addr)
	v.SetDefault("dashboard.refresh_interval", d.Dashboard.RefreshInterval)
}

// Load reads the configuration. An empty path searches the default
// locations and tolerates a missing file; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ai.api_key", EnvPrefix+"_AI_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ai.api_key: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("notesync")
		v.AddConfigPath(".notesync")
		v.AddConfigPath("$HOME/.config/notesync")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case DriverMemory, "sqlite", "libsql", "pgx", "postgres":
	default:
		return fmt.Errorf("remote.driver: unsupported driver %q", c.Remote.Driver)
	}
	if c.Remote.Driver != DriverMemory && c.Remote.DSN == "" {
		return fmt.Errorf("remote.dsn is required for driver %s", c.Remote.Driver)
	}
	if c.Session.UserID == "" {
		return fmt.Errorf("session.user_id is required")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 || c.Timeouts.AI < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Dashboard.RefreshInterval < 0 {
		return fmt.Errorf("dashboard.refresh_interval must be >= 0")
	}
	return nil
}
