// Package resolve turns a list of visual tags into a [Persona]: the traits
// that survive the exclusion rules, the accumulated skill bonuses and a
// one-line summary.
//
// Resolution is a total function. Unknown tags are reported, never rejected,
// and an empty tag list yields an empty persona. A [Resolver] reads one rule
// snapshot per call, so it is safe for concurrent use even while the rule
// store is being reloaded.
package resolve

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/rules"
)

// NoAttributesSummary is the summary of a persona without traits or skills.
const NoAttributesSummary = "No special attributes"

// RuleProvider supplies the active rule set. [*rules.Store] satisfies it.
type RuleProvider interface {
	Snapshot() *rules.RuleSet
}

// Suggester proposes the closest known tag for an unmatched one.
type Suggester interface {
	Suggest(tag string) (string, bool)
}

// Persona is the result of resolving a tag list.
type Persona struct {
	// MatchedTags and UnmatchedTags partition the normalized input in input
	// order. Repeated tags are kept.
	MatchedTags   []string `json:"matchedTags"`
	UnmatchedTags []string `json:"unmatchedTags"`

	// Traits holds at most one trait per category and per conflict group.
	Traits []rules.Trait `json:"traits"`

	Skills  SkillSet `json:"skills"`
	Summary string   `json:"summary"`

	// Suggestions maps unmatched tags to the closest known tag. Only set when
	// the resolver has a [Suggester].
	Suggestions map[string]string `json:"suggestions,omitempty"`
}

// TraitDefs returns the names of the resolved traits.
func (p Persona) TraitDefs() []string {
	out := make([]string, len(p.Traits))
	for i, t := range p.Traits {
		out[i] = t.Def
	}
	return out
}

// Resolver resolves tag lists against a [RuleProvider].
type Resolver struct {
	rules     RuleProvider
	tb        tieBreak
	metrics   *observe.Metrics
	suggester Suggester
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithMetrics records resolution latency and tag counts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithSuggester attaches s to fill [Persona.Suggestions].
func WithSuggester(s Suggester) Option {
	return func(r *Resolver) {
		r.suggester = s
	}
}

// WithStableTieBreak breaks equal-priority conflicts by lexical trait def
// instead of first encounter, so results do not depend on tag order.
func WithStableTieBreak() Option {
	return func(r *Resolver) {
		r.tb = lexicalWins
	}
}

// New returns a resolver reading rules from p.
func New(p RuleProvider, opts ...Option) *Resolver {
	r := &Resolver{rules: p, tb: firstWins}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves tags without tracing.
func (r *Resolver) Resolve(tags []string) Persona {
	return r.resolve(r.rules.Snapshot(), tags)
}

// ResolveContext resolves tags inside a span and, when configured, records
// metrics.
func (r *Resolver) ResolveContext(ctx context.Context, tags []string) Persona {
	ctx, span := observe.StartSpan(ctx, "resolve.persona")
	defer span.End()

	start := time.Now()
	p := r.resolve(r.rules.Snapshot(), tags)

	span.SetAttributes(
		attribute.Int("tags.matched", len(p.MatchedTags)),
		attribute.Int("tags.unmatched", len(p.UnmatchedTags)),
		attribute.Int("traits", len(p.Traits)),
	)
	if r.metrics != nil {
		r.metrics.RecordResolution(ctx, time.Since(start).Seconds(), len(p.MatchedTags), len(p.UnmatchedTags))
	}
	if len(p.UnmatchedTags) > 0 {
		observe.Logger(ctx).Debug("resolve: unmatched tags", "tags", p.UnmatchedTags)
	}
	return p
}

func (r *Resolver) resolve(rs *rules.RuleSet, tags []string) Persona {
	p := Persona{
		MatchedTags:   []string{},
		UnmatchedTags: []string{},
	}
	var candidates []rules.Trait

	for _, raw := range tags {
		tag := rules.NormalizeTag(raw)
		rule, ok := rs.Lookup(tag)
		if !ok {
			p.UnmatchedTags = append(p.UnmatchedTags, tag)
			continue
		}
		p.MatchedTags = append(p.MatchedTags, tag)
		candidates = append(candidates, rule.Traits...)
		for _, s := range rule.Skills {
			p.Skills.Add(s)
		}
	}

	p.Traits = resolveTraits(candidates, rs.Groups, r.tb)
	if p.Traits == nil {
		p.Traits = []rules.Trait{}
	}
	p.Summary = Summarize(p.Traits, &p.Skills)

	if r.suggester != nil && len(p.UnmatchedTags) > 0 {
		for _, tag := range p.UnmatchedTags {
			if tag == "" {
				continue
			}
			if s, ok := r.suggester.Suggest(tag); ok {
				if p.Suggestions == nil {
					p.Suggestions = make(map[string]string)
				}
				p.Suggestions[tag] = s
			}
		}
	}
	return p
}

// Summarize renders "Traits: A, B | Skills: Melee+7 (Minor), Shooting+5".
// Either half is omitted when empty; with neither it returns
// [NoAttributesSummary].
func Summarize(traits []rules.Trait, skills *SkillSet) string {
	var parts []string

	if len(traits) > 0 {
		names := make([]string, len(traits))
		for i, t := range traits {
			names[i] = t.Def
		}
		parts = append(parts, "Traits: "+strings.Join(names, ", "))
	}

	if skills != nil && skills.Len() > 0 {
		entries := make([]string, 0, skills.Len())
		for _, s := range skills.All() {
			var b strings.Builder
			b.WriteString(s.Name)
			b.WriteByte('+')
			b.WriteString(strconv.Itoa(s.Bonus))
			if label := s.Passion.Label(); label != "" {
				b.WriteString(" (" + label + ")")
			}
			entries = append(entries, b.String())
		}
		parts = append(parts, "Skills: "+strings.Join(entries, ", "))
	}

	if len(parts) == 0 {
		return NoAttributesSummary
	}
	return strings.Join(parts, " | ")
}
