package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend error")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold, probes int) (*Breaker, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	return NewBreaker(BreakerConfig{
		Name:      "test",
		Threshold: threshold,
		Cooldown:  time.Minute,
		Probes:    probes,
		Now:       clk.Now,
	}), clk
}

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	if b.cfg.Threshold != 5 || b.cfg.Cooldown != 30*time.Second || b.cfg.Probes != 2 {
		t.Errorf("defaults = %+v", b.cfg)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 1)
	ctx := context.Background()

	for range 3 {
		if err := b.Do(ctx, fail); !errors.Is(err, errBackend) {
			t.Fatalf("Do = %v, want backend error", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Do while open = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, 1)
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, succeed)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenClosesAfterProbes(t *testing.T) {
	b, clk := newTestBreaker(1, 2)
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clk.Advance(time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}

	if err := b.Do(ctx, succeed); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Errorf("after one probe state = %v, want half-open", b.State())
	}
	if err := b.Do(ctx, succeed); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(1, 2)
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clk.Advance(2 * time.Minute)
	_ = b.Do(ctx, fail)

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Do(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Do = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_CancellationNotCounted(t *testing.T) {
	b, _ := newTestBreaker(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do = %v, want context.Canceled", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, 1)
	_ = b.Do(context.Background(), fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
