package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend of a [Chain] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

type link[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain holds backends of one kind in preference order. Build it once and
// share it; Call is safe for concurrent use.
type Chain[T any] struct {
	cfg   BreakerConfig
	links []link[T]
}

// NewChain returns an empty chain whose breakers use cfg.
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a backend. Backends are tried in the order they were added.
func (c *Chain[T]) Add(name string, backend T) *Chain[T] {
	cfg := c.cfg
	cfg.Name = name
	c.links = append(c.links, link[T]{name: name, backend: backend, breaker: NewBreaker(cfg)})
	return c
}

// Len returns the number of backends.
func (c *Chain[T]) Len() int { return len(c.links) }

// Breaker returns the breaker guarding the named backend.
func (c *Chain[T]) Breaker(name string) (*Breaker, bool) {
	for _, l := range c.links {
		if l.name == name {
			return l.breaker, true
		}
	}
	return nil, false
}

// Call runs fn against each backend in order until one succeeds and returns
// its result together with the backend's name. A cancelled ctx stops the
// chain immediately.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, string, error) {
	var (
		zero R
		errs []error
	)
	for _, l := range c.links {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		var out R
		err := l.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, l.backend)
			return err
		})
		if err == nil {
			return out, l.name, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping backend", "backend", l.name)
		} else {
			slog.Warn("resilience: backend failed, trying next", "backend", l.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	if len(errs) == 0 {
		return zero, "", fmt.Errorf("%w: no backends configured", ErrAllFailed)
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
