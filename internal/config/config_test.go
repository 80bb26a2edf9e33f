package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default(Development)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Worker.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 5, cfg.Worker.MaxRetries)
	assert.True(t, cfg.Worker.Push)
	assert.Equal(t, "kartograph", cfg.Loader.GraphName)
	assert.True(t, cfg.PolicyEngine.Insecure, "development defaults to plaintext")

	prod := Default(Production)
	assert.False(t, prod.PolicyEngine.Insecure)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/app")
	t.Setenv("WORKER_BATCH_SIZE", "250")
	t.Setenv("WORKER_POLL_INTERVAL", "30s")
	t.Setenv("WORKER_PUSH", "false")
	t.Setenv("GRAPH_NAME", "tenants")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Default(Development)
	applyEnv(cfg)

	assert.Equal(t, "postgres://db:5432/app", cfg.Database.URL)
	assert.Equal(t, 250, cfg.Worker.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Worker.PollInterval)
	assert.False(t, cfg.Worker.Push)
	assert.Equal(t, "tenants", cfg.Loader.GraphName)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_BATCH_SIZE", "not-a-number")
	t.Setenv("WORKER_POLL_INTERVAL", "soon")

	cfg := Default(Development)
	applyEnv(cfg)

	assert.Equal(t, 100, cfg.Worker.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "empty database url",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: true,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Worker.BatchSize = 0 },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "empty graph name",
			mutate:  func(c *Config) { c.Loader.GraphName = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(Development)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	assert.Equal(t, Production, getEnvironment())

	t.Setenv("APP_ENV", "staging")
	assert.Equal(t, Staging, getEnvironment())

	t.Setenv("APP_ENV", "")
	assert.Equal(t, Development, getEnvironment())
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("APP_ENV", "development")
	t.Setenv("WORKER_MAX_RETRIES", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Worker.MaxRetries)
	assert.Contains(t, cfg.LoadedFrom, "defaults")
	assert.Contains(t, cfg.LoadedFrom, "environment")
}
