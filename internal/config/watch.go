package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"tiltbot/internal/sim"
)

// WatchTuning reloads the tuning file at path whenever it changes and passes
// valid results to apply. The parent directory is watched so editors that
// replace the file on save are picked up. It blocks until ctx is done.
func WatchTuning(ctx context.Context, path string, base sim.Params, logger *zap.SugaredLogger, apply func(sim.Params) error) error {
	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tuning watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	logger.Infow("watching tuning file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p, err := LoadTuning(path, base)
			if err != nil {
				logger.Warnw("ignoring tuning reload", "path", path, "error", err)
				continue
			}
			if err := apply(p); err != nil {
				logger.Warnw("tuning rejected", "path", path, "error", err)
				continue
			}
			logger.Infow("tuning reloaded", "path", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("tuning watcher error", "error", err)
		}
	}
}
