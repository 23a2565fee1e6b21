package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches the config file for changes and reloads it, so tunable
// parameters (cooldowns, simulated-oracle probabilities) can be adjusted
// without a restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	logger   zerolog.Logger
	mu       sync.RWMutex
	onReload func(*Config)
	done     chan struct{}
}

// NewWatcher creates a watcher for the active config file.
func NewWatcher(logger zerolog.Logger, onReload func(*Config)) (*Watcher, error) {
	path, err := ConfigFilePath()
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory; editors replace files rather than writing in place
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  watcher,
		path:     path,
		logger:   logger.With().Str("component", "config-watcher").Logger(),
		onReload: onReload,
		done:     make(chan struct{}),
	}

	go w.watchLoop()

	return w, nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				cfg, err := Load()
				if err != nil {
					w.logger.Warn().Err(err).Msg("Config reload failed")
					continue
				}
				w.logger.Info().Msg("Config reloaded")
				w.mu.RLock()
				cb := w.onReload
				w.mu.RUnlock()
				if cb != nil {
					cb(cfg)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
