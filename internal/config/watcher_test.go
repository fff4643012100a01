package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestWatcher(t *testing.T, path string) (*Watcher, chan *Config) {
	t.Helper()

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(WatcherConfig{
		Loader:   NewLoader(path),
		OnReload: func(cfg *Config) { reloaded <- cfg },
		Debounce: 20 * time.Millisecond,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(w.Stop)

	return w, reloaded
}

func awaitReload(t *testing.T, reloaded chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-reloaded:
		return cfg
	case <-time.After(3 * time.Second):
		t.Fatal("Reload callback never fired")
		return nil
	}
}

func TestNewWatcher(t *testing.T) {
	t.Run("requires loader", func(t *testing.T) {
		_, err := NewWatcher(WatcherConfig{OnReload: func(*Config) {}})
		assert.Error(t, err)
	})

	t.Run("requires reload callback", func(t *testing.T) {
		_, err := NewWatcher(WatcherConfig{Loader: NewLoader("x.json")})
		assert.Error(t, err)
	})
}

func TestWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchid.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"orchestrator": {"mode": "direct"}}`), 0644))

	_, reloaded := startTestWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte(`{"orchestrator": {"mode": "planner"}}`), 0644))
	cfg := awaitReload(t, reloaded)
	assert.Equal(t, "planner", cfg.Orchestrator.Mode)
}

func TestWatcherRejectsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchid.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"orchestrator": {"mode": "direct"}}`), 0644))

	_, reloaded := startTestWatcher(t, path)

	// Valid JSON, invalid config. The callback must not fire.
	require.NoError(t, os.WriteFile(path, []byte(`{"orchestrator": {"mode": "chaotic"}}`), 0644))
	select {
	case cfg := <-reloaded:
		t.Fatalf("Invalid config must not reload, got mode %q", cfg.Orchestrator.Mode)
	case <-time.After(300 * time.Millisecond):
	}

	// The watcher stays alive and picks up the next valid write.
	require.NoError(t, os.WriteFile(path, []byte(`{"orchestrator": {"mode": "planner"}}`), 0644))
	cfg := awaitReload(t, reloaded)
	assert.Equal(t, "planner", cfg.Orchestrator.Mode)
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchid.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"orchestrator": {"mode": "direct"}}`), 0644))

	_, reloaded := startTestWatcher(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0644))
	select {
	case <-reloaded:
		t.Fatal("Sibling file write must not trigger a reload")
	case <-time.After(300 * time.Millisecond):
	}
}
