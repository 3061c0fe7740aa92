package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/personaforge/internal/vision"
)

// ErrProviderNotRegistered is returned by [Registry.CreateDetector] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// DetectorFactory builds a detector from the vision section. known supplies
// the current tag vocabulary.
type DetectorFactory func(cfg VisionConfig, known vision.Vocabulary) (vision.Detector, error)

// Registry maps vision provider names to detector factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	detectors map[VisionProvider]DetectorFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[VisionProvider]DetectorFactory)}
}

// RegisterDetector registers factory under name, replacing any previous
// registration.
func (r *Registry) RegisterDetector(name VisionProvider, factory DetectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[name] = factory
}

// CreateDetector builds the detector for cfg.Provider.
func (r *Registry) CreateDetector(cfg VisionConfig, known vision.Vocabulary) (vision.Detector, error) {
	r.mu.RLock()
	factory, ok := r.detectors[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vision %q", ErrProviderNotRegistered, cfg.Provider)
	}
	d, err := factory(cfg, known)
	if err != nil {
		return nil, fmt.Errorf("config: create vision provider %q: %w", cfg.Provider, err)
	}
	return d, nil
}

// Detectors lists the registered provider names, sorted.
func (r *Registry) Detectors() []VisionProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VisionProvider, 0, len(r.detectors))
	for name := range r.detectors {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
