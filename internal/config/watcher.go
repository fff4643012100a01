package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc receives the freshly loaded config after the file changes.
type ReloadFunc func(*Config)

// Watcher reloads the config file when it changes on disk. Editors often
// replace the file instead of writing in place, so the watch is on the
// parent directory and events are debounced.
type Watcher struct {
	loader   *Loader
	onReload ReloadFunc
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// WatcherConfig holds watcher configuration.
type WatcherConfig struct {
	Loader   *Loader
	OnReload ReloadFunc
	Debounce time.Duration // default 500ms
	Logger   zerolog.Logger
}

// NewWatcher creates a config watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if cfg.OnReload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		loader:   cfg.Loader,
		onReload: cfg.OnReload,
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
	}, nil
}

// Start begins watching the config file's directory.
func (w *Watcher) Start(ctx context.Context) error {
	configPath := w.loader.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.watcher = fsw
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(ctx, fsw, configPath)

	w.logger.Info().Str("path", configPath).Msg("Config watcher started")
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, configPath string) {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.reload()
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload config")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error().Err(err).Msg("Reloaded config is invalid, keeping current")
		return
	}

	w.logger.Info().Msg("Config reloaded")
	w.onReload(cfg)
}
