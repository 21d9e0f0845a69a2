package profile

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch watches the store's file until ctx is cancelled and calls cb with the
// freshly loaded profile after each change. The parent directory is watched
// rather than the file itself, because Save and most editors replace the file
// by rename.
func Watch(ctx context.Context, store *Store, logger *slog.Logger, cb func(Profile)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(store.Path())
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger.Info("profile watcher: started", slog.String("path", target))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("profile watcher: stopped")
			return nil

		case <-fire:
			fire = nil
			p, loadErr := store.Load()
			if loadErr != nil {
				logger.Warn("profile watcher: reload failed", slog.String("error", loadErr.Error()))
				continue
			}
			logger.Info("profile watcher: reloaded",
				slog.String("owner", p.Owner),
				slog.String("repo", p.Repo),
				slog.String("branch", p.Branch))
			if cb != nil {
				cb(p)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("profile watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
