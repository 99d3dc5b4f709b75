// Package settings watches the configuration file and applies changes to a
// running process.
package settings

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is how long Watch waits after the last change before reloading.
const Debounce = 200 * time.Millisecond

// ReloadFunc re-reads the configuration and applies it.
type ReloadFunc func() error

// Watch calls reload whenever the file at path is written, created or
// replaced, until ctx is cancelled. Editors that save through a rename are
// handled by watching the parent directory. Bursts of events are coalesced;
// reload errors are logged and the previous settings stay in effect.
func Watch(ctx context.Context, path string, logger *slog.Logger, reload ReloadFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info("settings: watching", slog.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("settings: stopped")
			return nil

		case <-fire:
			if err := reload(); err != nil {
				logger.Warn("settings: reload rejected", slog.String("error", err.Error()))
				continue
			}
			logger.Info("settings: reloaded", slog.String("path", abs))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(Debounce)
				fire = timer.C
			} else {
				timer.Reset(Debounce)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("settings: watch error", slog.String("error", watchErr.Error()))
		}
	}
}
