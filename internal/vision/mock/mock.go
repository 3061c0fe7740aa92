// Package mock provides a test double for the vision.Detector interface.
//
// Example:
//
//	d := &mock.Detector{Tags: []string{"scar", "halo"}}
//	tags, err := d.Detect(ctx, "hero.png")
package mock

import (
	"context"
	"sync"
)

// DetectCall records a single invocation of Detect.
type DetectCall struct {
	// Ctx is the context passed to Detect.
	Ctx context.Context
	// ImagePath is the path passed to Detect.
	ImagePath string
}

// Detector is a mock implementation of vision.Detector.
type Detector struct {
	mu sync.Mutex

	// Tags is returned by every Detect call unless ByPath has an entry.
	Tags []string

	// ByPath maps image paths to per-image tags.
	ByPath map[string][]string

	// Err, if non-nil, is returned from Detect.
	Err error

	// FailPaths maps image paths to the error Detect returns for them.
	FailPaths map[string]error

	calls []DetectCall
}

// Detect implements vision.Detector.
func (d *Detector) Detect(ctx context.Context, imagePath string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, DetectCall{Ctx: ctx, ImagePath: imagePath})

	if err, ok := d.FailPaths[imagePath]; ok {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	if tags, ok := d.ByPath[imagePath]; ok {
		return append([]string(nil), tags...), nil
	}
	return append([]string(nil), d.Tags...), nil
}

// Calls returns a copy of all recorded Detect invocations.
func (d *Detector) Calls() []DetectCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DetectCall(nil), d.calls...)
}

// Reset clears recorded calls.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}
