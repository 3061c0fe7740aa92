// Package vision produces visual tags for a subject image.
//
// A [Detector] is the only way the rest of personaforge learns about an
// image. Implementations range from the seeded [Simulator] used for demos
// and offline batches to the OpenAI-backed detector in vision/openai.
// [Fallback] chains several detectors behind circuit breakers.
package vision

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/rules"
)

// Detector returns the visual tags found in the image at imagePath.
// Implementations must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]string, error)
}

// Vocabulary supplies the tags a detector may report. *rules.Store satisfies
// it, so detectors follow rule reloads.
type Vocabulary interface {
	AllTags() []string
}

// Tags is a fixed [Vocabulary].
type Tags []string

// AllTags implements [Vocabulary].
func (t Tags) AllTags() []string { return t }

// DetectorFunc adapts a function to [Detector].
type DetectorFunc func(ctx context.Context, imagePath string) ([]string, error)

// Detect implements [Detector].
func (f DetectorFunc) Detect(ctx context.Context, imagePath string) ([]string, error) {
	return f(ctx, imagePath)
}

// ParseTags splits a free-form detector answer on commas, semicolons and
// newlines, normalizes every tag and drops blanks and duplicates. When known
// is non-empty, tags outside known are dropped as well.
func ParseTags(answer string, known []string) []string {
	fields := strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		tag := rules.NormalizeTag(strings.Trim(strings.TrimSpace(f), "-*•.\"'`"))
		tag = strings.ReplaceAll(tag, " ", "_")
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		if len(known) > 0 && !slices.Contains(known, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// Observed wraps d so every call records detection latency and failures on
// m under the given detector name. A nil m records nothing.
func Observed(name string, d Detector, m *observe.Metrics) Detector {
	return DetectorFunc(func(ctx context.Context, imagePath string) ([]string, error) {
		ctx, span := observe.StartSpan(ctx, "vision.detect")
		defer span.End()

		start := time.Now()
		tags, err := d.Detect(ctx, imagePath)
		if m != nil {
			m.RecordDetection(ctx, name, time.Since(start).Seconds(), err != nil)
		}
		if err != nil {
			span.RecordError(err)
		}
		return tags, err
	})
}
