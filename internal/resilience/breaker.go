// Package resilience guards calls to remote tag detectors.
//
// A [Breaker] stops calling a backend after repeated failures and probes it
// again after a cool-down. A [Chain] tries several backends of the same kind
// in order, each behind its own breaker.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down
	// has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// Threshold is the number of consecutive failures that opens the breaker.
	// Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close the
	// breaker again. Default: 2.
	Probes int

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
//
// Context cancellation of the caller is not counted as a backend failure.
type Breaker struct {
	cfg BreakerConfig

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probing    int
	probesDone int
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Do calls fn unless the breaker is open.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing--
	}
	switch {
	case err == nil:
		b.onSuccess(probe)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// The caller gave up; the backend is not to blame.
	default:
		b.onFailure(probe)
	}
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probesDone = 0
		slog.Info("resilience: breaker half-open", "name", b.cfg.Name)
	}
	if b.state == StateHalfOpen {
		if b.probing+b.probesDone >= b.cfg.Probes {
			return false, ErrCircuitOpen
		}
		b.probing++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) onSuccess(probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	if b.state != StateHalfOpen {
		return
	}
	b.probesDone++
	if b.probesDone >= b.cfg.Probes {
		b.state = StateClosed
		b.failures = 0
		slog.Info("resilience: breaker closed", "name", b.cfg.Name)
	}
}

func (b *Breaker) onFailure(probe bool) {
	if probe || b.state == StateHalfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.cfg.Threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	b.probesDone = 0
	slog.Warn("resilience: breaker opened", "name", b.cfg.Name, "failures", b.failures)
}

// State reports the current state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probesDone = 0
}
