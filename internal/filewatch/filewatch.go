// Package filewatch polls a file and reparses it when its content changes.
//
// A change is detected in two steps: a cheap mtime comparison, then a
// SHA-256 of the content, so touching a file without editing it does not
// trigger a reload. Content that fails to parse is logged once per
// modification and ignored; the last good value stays current.
package filewatch

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 5 * time.Second

// Option configures a [Watcher].
type Option func(*settings)

type settings struct {
	interval time.Duration
	logger   *slog.Logger
	lenient  bool
}

// Interval sets the polling period. Non-positive values are ignored.
func Interval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Logger sets the logger used for reload and failure messages.
func Logger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// Lenient lets [New] start polling even when the initial load fails. The
// watcher then holds the zero value until the file first parses, which is
// reported to onChange like any other change.
func Lenient() Option {
	return func(s *settings) { s.lenient = true }
}

// Watcher holds the latest successfully parsed value of a file.
type Watcher[T any] struct {
	path     string
	parse    func([]byte) (T, error)
	onChange func(old, new T)
	log      *slog.Logger

	mu      sync.Mutex
	current T
	loaded  bool
	mtime   time.Time
	sum     [sha256.Size]byte

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// New parses path once and then polls it in a background goroutine. The
// initial parse must succeed unless [Lenient] is given. onChange may be nil.
func New[T any](path string, parse func([]byte) (T, error), onChange func(old, new T), opts ...Option) (*Watcher[T], error) {
	s := settings{interval: DefaultInterval, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	w := &Watcher[T]{
		path:     path,
		parse:    parse,
		onChange: onChange,
		log:      s.logger.With("path", path),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	v, sum, mtime, err := w.read()
	switch {
	case err == nil:
		w.current, w.sum, w.mtime, w.loaded = v, sum, mtime, true
	case s.lenient:
		w.log.Warn("filewatch: initial load failed, waiting for a valid file", "err", err)
		w.mtime = mtime
	default:
		return nil, fmt.Errorf("filewatch: initial load: %w", err)
	}

	go w.loop(s.interval)
	return w, nil
}

// Current returns the last successfully parsed value.
func (w *Watcher[T]) Current() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Loaded reports whether the file has parsed successfully at least once.
func (w *Watcher[T]) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// Stop ends polling and waits for an in-flight poll to finish, so onChange
// is never called after Stop returns. Calling it more than once is fine. It
// must not be called from onChange.
func (w *Watcher[T]) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.exited
}

func (w *Watcher[T]) loop(interval time.Duration) {
	defer close(w.exited)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.poll()
		}
	}
}

func (w *Watcher[T]) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("filewatch: cannot stat file", "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	v, sum, mtime, err := w.read()
	if err != nil {
		// Remember the failed version so it is not re-read every tick.
		w.mu.Lock()
		w.mtime = mtime
		w.mu.Unlock()
		w.log.Warn("filewatch: keeping previous content", "err", err)
		return
	}

	w.mu.Lock()
	w.mtime = mtime
	if w.loaded && sum == w.sum {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.sum, w.loaded = v, sum, true
	w.mu.Unlock()

	w.log.Info("filewatch: file reloaded")
	if w.onChange != nil {
		w.onChange(old, v)
	}
}

func (w *Watcher[T]) read() (v T, sum [sha256.Size]byte, mtime time.Time, err error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return v, sum, mtime, err
	}
	mtime = info.ModTime()
	data, err := os.ReadFile(w.path)
	if err != nil {
		return v, sum, mtime, err
	}
	if v, err = w.parse(data); err != nil {
		return v, sum, mtime, err
	}
	return v, sha256.Sum256(data), mtime, nil
}
