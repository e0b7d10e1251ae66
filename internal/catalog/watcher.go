package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// ReloadCallback is called after every reload attempt. err is nil on success.
type ReloadCallback func(c *Catalog, err error)

// Watch reloads the catalog file at path into h whenever it changes, until
// ctx is cancelled. The parent directory is watched so that editors which
// replace the file by rename are picked up. A file that fails to parse
// leaves the previous snapshot in place.
func Watch(ctx context.Context, path string, h *Holder, logger *slog.Logger, cb ReloadCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("catalog watcher: started", slog.String("path", abs))

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("catalog watcher: stopped")
			return nil

		case <-timerCh:
			timerCh = nil
			c, loadErr := Load(abs)
			if loadErr != nil {
				logger.Warn("catalog watcher: reload failed",
					slog.String("path", abs),
					slog.String("error", loadErr.Error()))
			} else {
				h.Replace(c)
				logger.Info("catalog watcher: reloaded",
					slog.String("path", abs),
					slog.Int("servings", c.Len()))
			}
			if cb != nil {
				cb(c, loadErr)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerCh = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("catalog watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
