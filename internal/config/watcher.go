package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps a live copy of a config file. It polls the file's size and
// mtime; when either moves it reloads the file and compares the result with
// [Diff]. The callback only fires for edits Diff reports, so reformatting or
// commenting the file is adopted silently. Invalid files are logged and the
// previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, next *Config)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp

	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp is the cheap identity of a config file between polls.
type fileStamp struct {
	mtime time.Time
	size  int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mtime: info.ModTime(), size: info.Size()}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it in the background. onChange
// may be nil, in which case the watcher only tracks [Watcher.Current].
func NewWatcher(path string, onChange func(old, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}
	w.current = cfg
	w.stamp = stampOf(info)

	go w.poll()
	return w, nil
}

// Current returns the most recently adopted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
				continue
			}
			w.mu.Lock()
			same := w.stamp == stampOf(info)
			w.mu.Unlock()
			if same {
				continue
			}
			if _, err := w.Reload(); err != nil {
				slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Reload reads the file now, regardless of its mtime, and returns what
// changed. onChange runs, outside the watcher's lock, only when the diff is
// non-empty. On error the current config is kept.
func (w *Watcher) Reload() (ConfigDiff, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return ConfigDiff{}, fmt.Errorf("config: reload: %w", err)
	}
	next, err := Load(w.path)

	w.mu.Lock()
	// Record the stamp even for a broken file so it is not re-parsed on
	// every tick until it is edited again.
	w.stamp = stampOf(info)
	if err != nil {
		w.mu.Unlock()
		return ConfigDiff{}, fmt.Errorf("config: reload: %w", err)
	}
	old := w.current
	d := Diff(old, next)
	w.current = next
	w.mu.Unlock()

	if !d.Changed() {
		slog.Debug("config watcher: file changed, no effective difference", "path", w.path)
		return d, nil
	}
	slog.Info("config watcher: configuration reloaded", "path", w.path,
		"log_level", d.LogLevelChanged,
		"session_ttl", d.SessionTTLChanged,
		"default_language", d.DefaultLanguageChanged,
		"providers", d.ProvidersChanged,
	)
	if w.onChange != nil {
		w.onChange(old, next)
	}
	return d, nil
}
