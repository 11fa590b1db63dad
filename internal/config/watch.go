package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the config file and invokes onChange with the freshly
// loaded Config whenever it is rewritten. Reload failures are logged and
// the previous configuration stays in effect. Returns a stop function.
//
// The parent directory is watched rather than the file itself: editors
// replace files by rename, which would silently detach a file watch.
func Watch(path string, onChange func(*Config), logger *slog.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}

				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}

				cfg, loadErr := Load(path)
				if loadErr != nil {
					logger.Warn("config reload failed, keeping previous configuration",
						slog.String("path", path),
						slog.String("error", loadErr.Error()),
					)

					continue
				}

				logger.Info("config reloaded", slog.String("path", path))
				onChange(cfg)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}

				logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
