package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcher_ReloadNotifiesCallbacks(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	w, err := NewWatcher(cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	reloaded := make(chan *Config, 1)
	w.OnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})

	data := []byte("worker:\n  batch_size: 42\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), data, 0o644))

	select {
	case c := <-reloaded:
		assert.Equal(t, 42, c.Worker.BatchSize)
		assert.Equal(t, 42, w.Config().Worker.BatchSize)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcher_InertOutsideDevelopment(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("APP_ENV", "production")

	cfg := Default(Production)
	w, err := NewWatcher(cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	// Outside development the watcher just holds the initial configuration.
	assert.Same(t, cfg, w.Config())
}
