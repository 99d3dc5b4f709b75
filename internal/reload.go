package internal

import (
	"log/slog"
	"time"

	"github.com/starford/inkmirror/internal/settings"
	pkgconfig "github.com/starford/inkmirror/pkg/config"
)

type intervalSetter interface {
	SetInterval(d time.Duration)
}

type reflowSetter interface {
	SetReflow(on bool)
}

// reloader re-reads the config file and applies the settings that may
// change at runtime. Other changed keys only take effect after a restart.
func reloader(path string, sched intervalSetter, writer reflowSetter, logger *slog.Logger) settings.ReloadFunc {
	return func() error {
		next := NewDefaultConfig()
		if err := pkgconfig.Load(path, next); err != nil {
			return err
		}
		sched.SetInterval(next.Sync.Interval())
		writer.SetReflow(next.Sync.Reflow)
		logger.Info("config: live settings applied",
			slog.Duration("interval", next.Sync.Interval()),
			slog.Bool("reflow", next.Sync.Reflow))
		return nil
	}
}
