// Package config loads and validates run-controller configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	RunState RunStateConfig `mapstructure:"runstate"`
	Results  ResultsConfig  `mapstructure:"results"`
	CI       CIConfig       `mapstructure:"ci"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// GuardConfig governs the rate-limit guard.
type GuardConfig struct {
	CooldownMinutes int    `mapstructure:"cooldown_minutes"`
	StateKey        string `mapstructure:"state_key"`
}

// WatcherConfig governs the completion watcher timings and attempt budget.
type WatcherConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	ResultLimit  int           `mapstructure:"result_limit"`
}

// RunStateConfig selects and configures the state store backend.
type RunStateConfig struct {
	Provider string          `mapstructure:"provider"`
	File     FileStateConfig `mapstructure:"file"`
	GCS      GCSStateConfig  `mapstructure:"gcs"`
}

// FileStateConfig configures the file-backed state store.
type FileStateConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSStateConfig configures the GCS-backed state store.
type GCSStateConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// ResultsConfig selects and configures the article result store.
type ResultsConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the article database.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// CIConfig identifies the remote workflow running the pipeline.
type CIConfig struct {
	Owner    string `mapstructure:"owner"`
	Repo     string `mapstructure:"repo"`
	Workflow string `mapstructure:"workflow"`
	Ref      string `mapstructure:"ref"`
	Token    string `mapstructure:"token"`
	APIBase  string `mapstructure:"api_base"`
}

// NotifyConfig selects and configures the notification publisher.
type NotifyConfig struct {
	Provider string       `mapstructure:"provider"`
	GCP      PubSubConfig `mapstructure:"gcp"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RUNCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("guard.cooldown_minutes", 15)
	v.SetDefault("guard.state_key", "pipeline:last_run")
	v.SetDefault("watcher.initial_delay", "15m")
	v.SetDefault("watcher.poll_interval", "30s")
	v.SetDefault("watcher.max_attempts", 20)
	v.SetDefault("watcher.settle_delay", "10s")
	v.SetDefault("watcher.result_limit", 10)
	v.SetDefault("runstate.provider", "file")
	v.SetDefault("runstate.file.base_dir", "./runstate")
	v.SetDefault("results.provider", "memory")
	v.SetDefault("results.postgres.table", "articles")
	v.SetDefault("ci.ref", "main")
	v.SetDefault("notify.provider", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Guard.CooldownMinutes <= 0 {
		return fmt.Errorf("guard.cooldown_minutes must be > 0")
	}
	if c.Watcher.MaxAttempts <= 0 {
		return fmt.Errorf("watcher.max_attempts must be > 0")
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher.poll_interval must be > 0")
	}
	switch c.RunState.Provider {
	case "file":
		if c.RunState.File.BaseDir == "" {
			return fmt.Errorf("runstate.file.base_dir must be set for the file provider")
		}
	case "gcs":
		if c.RunState.GCS.Bucket == "" {
			return fmt.Errorf("runstate.gcs.bucket must be set for the gcs provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown runstate provider: %s", c.RunState.Provider)
	}
	switch c.Results.Provider {
	case "postgres":
		if c.Results.Postgres.DSN == "" {
			return fmt.Errorf("results.postgres.dsn must be set for the postgres provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown results provider: %s", c.Results.Provider)
	}
	switch c.Notify.Provider {
	case "pubsub":
		if c.Notify.GCP.ProjectID == "" || c.Notify.GCP.TopicID == "" {
			return fmt.Errorf("notify.gcp.project_id and topic_id must be set for the pubsub provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown notify provider: %s", c.Notify.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// Cooldown converts the configured cooldown into a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Guard.CooldownMinutes) * time.Minute
}
