package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadDebounce is the quiet period after the last write before reloading.
const ReloadDebounce = 500 * time.Millisecond

// Watcher re-reads a config file when it changes and hands valid results to
// OnChange. Invalid edits are logged and the previous config stays in force.
type Watcher struct {
	Path     string
	OnChange func(*Config)
	Logger   zerolog.Logger
	Debounce time.Duration
}

// Run watches until ctx is cancelled. The parent directory is watched so
// editors that replace the file are still seen.
func (w Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()
	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %q: %w", w.Path, err)
	}
	delay := w.Debounce
	if delay <= 0 {
		delay = ReloadDebounce
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(delay, w.reload)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w Watcher) reload() {
	cfg, err := FromFile(w.Path)
	if err != nil {
		w.Logger.Error().Err(err).Str("path", w.Path).Msg("config reload failed")
		return
	}
	w.Logger.Info().Str("path", w.Path).Msg("config reloaded")
	if w.OnChange != nil {
		w.OnChange(cfg)
	}
}
