package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchFile watches the config file for changes and reloads it into the Store.
// On successful reload the runtime-tunable fields are swapped in; on error the
// old config is kept. Returns a stop function to cleanly shut down the
// watcher, or an error if setup fails.
func WatchFile(path string, store *Store, logger zerolog.Logger) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch file: %w", err)
	}

	done := make(chan struct{})

	go func() {
		defer watcher.Close()

		var lastEvent time.Time
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Debounce rapid successive events.
				now := time.Now()
				if now.Sub(lastEvent) < 500*time.Millisecond {
					continue
				}
				lastEvent = now

				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					logger.Info().Str("file", ev.Name).Msg("config file change detected")
					cfg, err := Load(path)
					if err != nil {
						logger.Error().Err(err).Msg("failed to reload config, keeping previous")
						continue
					}
					if cur := store.Current(); cur != nil &&
						(cfg.Log != cur.Log || cfg.Tail != cur.Tail ||
							cfg.Metrics != cur.Metrics || cfg.Logging != cur.Logging) {
						logger.Warn().Msg("log, tail, metrics, and logging settings apply at startup only; keeping boot values")
					}
					merged := store.ApplyRuntime(cfg)
					logger.Info().
						Int("cdn_rules", len(merged.CDNs)).
						Dur("report_interval", merged.Stats.ReportInterval).
						Msg("config reloaded")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("config watcher error")
			}
		}
	}()

	return func() { close(done) }, nil
}
