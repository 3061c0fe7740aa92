package rules

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/MrWong99/personaforge/internal/filewatch"
)

// Watcher polls a rule source and swaps the rebuilt rule set into a [Store]
// whenever the file content changes. Missing or invalid sources are logged
// and the rule set already in the store stays active.
type Watcher struct {
	fw *filewatch.Watcher[RuleSet]
}

type watcherOptions struct {
	interval time.Duration
	onReload func(rs *RuleSet)
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*watcherOptions)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(o *watcherOptions) { o.interval = d }
}

// WithReloadHook registers fn to be called after every successful reload.
func WithReloadHook(fn func(rs *RuleSet)) WatcherOption {
	return func(o *watcherOptions) { o.onReload = fn }
}

// NewWatcher loads the rule source at path into store and starts polling it
// in a background goroutine. When the source cannot be loaded yet, store is
// left as is and replaced once the file becomes valid.
func NewWatcher(path string, store *Store, opts ...WatcherOption) *Watcher {
	o := watcherOptions{interval: filewatch.DefaultInterval}
	for _, opt := range opts {
		opt(&o)
	}

	onChange := func(_, rs RuleSet) {
		store.Replace(rs)
		slog.Info("rules: rule source reloaded", "path", path, "rules", len(rs.Rules))
		if o.onReload != nil {
			o.onReload(store.Snapshot())
		}
	}
	// Lenient never fails the initial load.
	fw, _ := filewatch.New(path, parseRuleSet, onChange,
		filewatch.Interval(o.interval),
		filewatch.Logger(slog.Default().With("component", "rules")),
		filewatch.Lenient(),
	)
	if fw.Loaded() {
		store.Replace(fw.Current())
	} else {
		slog.Warn("rules: rule source not loadable, keeping current rules", "path", path)
	}
	return &Watcher{fw: fw}
}

// Stop stops polling. It is safe to call more than once.
func (w *Watcher) Stop() { w.fw.Stop() }

func parseRuleSet(data []byte) (RuleSet, error) {
	src, err := ParseSource(bytes.NewReader(data))
	if err != nil {
		return RuleSet{}, err
	}
	return FromSource(src), nil
}
