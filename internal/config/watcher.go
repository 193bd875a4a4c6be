package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// OnChangeFunc receives a freshly loaded and validated config after the
// file on disk changed.
type OnChangeFunc func(cfg *Config)

// Watcher monitors the config file and reloads it on change, so tuning
// knobs such as the log level or gateway limits apply without a restart.
type Watcher struct {
	loader    *Loader
	validator *Validator
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	onChange  OnChangeFunc
	done      chan struct{}
	timerMu   sync.Mutex
	timer     *time.Timer
	stopOnce  sync.Once
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Loader   *Loader
	Debounce time.Duration
	OnChange OnChangeFunc
}

// NewWatcher creates a new config watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if config.OnChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if config.Debounce == 0 {
		config.Debounce = 200 * time.Millisecond
	}

	return &Watcher{
		loader:    config.Loader,
		validator: NewValidator(),
		watcher:   watcher,
		debounce:  config.Debounce,
		onChange:  config.OnChange,
		done:      make(chan struct{}),
	}, nil
}

// Start starts watching the config file
func (w *Watcher) Start() error {
	configPath := w.loader.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	// Watch the parent directory: editors typically replace the file
	// with a rename, which drops a watch on the file itself.
	if err := w.watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop(configPath)

	log.Info().
		Str("path", configPath).
		Msg("Config watcher started")

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	log.Info().Msg("Config watcher stopped")
	return nil
}

// eventLoop processes file system events
func (w *Watcher) eventLoop(configPath string) {
	cleanPath := filepath.Clean(configPath)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cleanPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounceReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.done:
			return
		}
	}
}

// debounceReload coalesces rapid successive writes into one reload
func (w *Watcher) debounceReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

// reload re-reads the config file and hands it to the callback when it
// passes validation. A broken edit keeps the previous config in effect.
func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		log.Error().Err(err).Msg("Config reload failed, keeping previous config")
		return
	}

	if errs := w.validator.ValidateConfig(cfg); len(errs) > 0 {
		for _, validationErr := range errs {
			log.Error().Err(validationErr).Msg("Config reload rejected")
		}
		return
	}

	log.Info().Msg("Config reloaded")
	w.onChange(cfg)
}
