package vision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/personaforge/internal/resilience"
)

// Fallback tries detectors in order, each behind its own circuit breaker.
// A detector that fails repeatedly is skipped until its breaker cools down.
type Fallback struct {
	chain *resilience.Chain[Detector]
}

// NewFallback returns a fallback starting with primary.
func NewFallback(primaryName string, primary Detector, cfg resilience.BreakerConfig) *Fallback {
	f := &Fallback{chain: resilience.NewChain[Detector](cfg)}
	f.chain.Add(primaryName, primary)
	return f
}

// Add appends a fallback detector.
func (f *Fallback) Add(name string, d Detector) *Fallback {
	f.chain.Add(name, d)
	return f
}

// Detect implements [Detector].
func (f *Fallback) Detect(ctx context.Context, imagePath string) ([]string, error) {
	tags, used, err := resilience.Call(ctx, f.chain, func(ctx context.Context, d Detector) ([]string, error) {
		return d.Detect(ctx, imagePath)
	})
	if err != nil {
		return nil, fmt.Errorf("vision: detect %q: %w", imagePath, err)
	}
	slog.Debug("vision: tags detected", "image", imagePath, "detector", used, "tags", tags)
	return tags, nil
}

// BreakerState reports the breaker state of the named detector.
func (f *Fallback) BreakerState(name string) (resilience.State, bool) {
	b, ok := f.chain.Breaker(name)
	if !ok {
		return resilience.StateClosed, false
	}
	return b.State(), true
}
