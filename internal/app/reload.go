package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/linguaplay/internal/config"
)

// pruneLoop removes idle sessions every practice.prune_interval until ctx
// is done.
func (a *App) pruneLoop(ctx context.Context) {
	interval := a.cfg.Practice.PruneInterval
	if interval <= 0 {
		interval = config.DefaultPruneInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Prune(ctx)
		}
	}
}

// Prune removes sessions idle for longer than the session TTL and returns
// how many were removed.
func (a *App) Prune(ctx context.Context) int {
	return a.service.Prune(ctx, a.now().Add(-a.SessionTTL()))
}

// ApplyConfig applies the hot-reloadable parts of next: log level, session
// TTL and default language. Provider changes are logged and need a restart.
// It is intended as the [config.Watcher] callback.
func (a *App) ApplyConfig(old, next *config.Config) {
	next.ApplyDefaults()
	d := config.Diff(old, next)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SessionTTLChanged {
		a.sessionTTL.Store(int64(d.NewSessionTTL))
		slog.Info("session ttl changed", "ttl", d.NewSessionTTL)
	}
	if d.DefaultLanguageChanged {
		lang := d.NewDefaultLanguage
		a.defaultLanguage.Store(&lang)
		slog.Info("default language changed", "language", lang)
	}
	if d.ProvidersChanged {
		slog.Warn("provider configuration changed; restart to apply")
	}
}

// SlogLevel converts a config log level to its slog equivalent. Unknown
// levels map to info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
