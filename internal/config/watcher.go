package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/personaforge/internal/filewatch"
)

// Watcher reloads a config file when it changes. Files that no longer
// validate are ignored and the previous config stays current.
type Watcher struct {
	fw *filewatch.Watcher[*Config]
}

type watcherOptions struct {
	interval time.Duration
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*watcherOptions)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(o *watcherOptions) { o.interval = d }
}

// NewWatcher loads path and starts polling it. onChange receives the old and
// new config after every accepted change; it may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	o := watcherOptions{interval: filewatch.DefaultInterval}
	for _, opt := range opts {
		opt(&o)
	}
	fw, err := filewatch.New(path, parse, onChange,
		filewatch.Interval(o.interval),
		filewatch.Logger(slog.Default().With("component", "config")),
	)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	return &Watcher{fw: fw}, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config { return w.fw.Current() }

// Stop stops polling.
func (w *Watcher) Stop() { w.fw.Stop() }

func parse(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}
