package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 15, cfg.Guard.CooldownMinutes)
	require.Equal(t, "pipeline:last_run", cfg.Guard.StateKey)
	require.Equal(t, 15*time.Minute, cfg.Watcher.InitialDelay)
	require.Equal(t, 30*time.Second, cfg.Watcher.PollInterval)
	require.Equal(t, 20, cfg.Watcher.MaxAttempts)
	require.Equal(t, 10*time.Second, cfg.Watcher.SettleDelay)
	require.Equal(t, "file", cfg.RunState.Provider)
	require.Equal(t, "memory", cfg.Results.Provider)
	require.Equal(t, "memory", cfg.Notify.Provider)
	require.Equal(t, "main", cfg.CI.Ref)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, 15*time.Minute, cfg.Cooldown())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
guard:
  cooldown_minutes: 30
watcher:
  initial_delay: 20m
  poll_interval: 1m
  max_attempts: 10
  settle_delay: 5s
runstate:
  provider: gcs
  gcs:
    bucket: pipeline-state
results:
  provider: postgres
  postgres:
    dsn: postgres://localhost/articles
notify:
  provider: pubsub
  gcp:
    project_id: demo
    topic_id: pipeline-events
ci:
  owner: newsdesk
  repo: article-pipeline
  workflow: collect.yml
  ref: release
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 30, cfg.Guard.CooldownMinutes)
	require.Equal(t, 30*time.Minute, cfg.Cooldown())
	require.Equal(t, 20*time.Minute, cfg.Watcher.InitialDelay)
	require.Equal(t, time.Minute, cfg.Watcher.PollInterval)
	require.Equal(t, 10, cfg.Watcher.MaxAttempts)
	require.Equal(t, "gcs", cfg.RunState.Provider)
	require.Equal(t, "pipeline-state", cfg.RunState.GCS.Bucket)
	require.Equal(t, "postgres", cfg.Results.Provider)
	require.Equal(t, "pubsub", cfg.Notify.Provider)
	require.Equal(t, "newsdesk", cfg.CI.Owner)
	require.Equal(t, "release", cfg.CI.Ref)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "zero cooldown",
			mutate:  func(c *Config) { c.Guard.CooldownMinutes = 0 },
			wantErr: "cooldown_minutes",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Watcher.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "unknown runstate provider",
			mutate:  func(c *Config) { c.RunState.Provider = "redis" },
			wantErr: "runstate provider",
		},
		{
			name: "gcs without bucket",
			mutate: func(c *Config) {
				c.RunState.Provider = "gcs"
				c.RunState.GCS.Bucket = ""
			},
			wantErr: "runstate.gcs.bucket",
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Results.Provider = "postgres"
			},
			wantErr: "results.postgres.dsn",
		},
		{
			name: "pubsub without topic",
			mutate: func(c *Config) {
				c.Notify.Provider = "pubsub"
			},
			wantErr: "notify.gcp",
		},
		{
			name: "auth without key",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.APIKey = ""
			},
			wantErr: "auth.api_key",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(&cfg)
			err = cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
