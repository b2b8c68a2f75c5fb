package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-parses the file whenever it changes on disk and hands the
// result to onChange. A file that no longer parses is logged and kept
// out of onChange, so the previous configuration stays in effect.
func (l *Loader) Watch(logger *slog.Logger, onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Config()
		if err != nil {
			logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
}
