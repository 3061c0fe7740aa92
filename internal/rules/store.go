package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// RuleSet is an immutable snapshot of the rule table and the conflict groups.
// Rules is keyed by normalized tag.
type RuleSet struct {
	Groups ConflictGroups
	Rules  map[string]TagRule
}

// clone returns a deep-enough copy of rs for copy-on-write updates. Rule
// values are shared; they are never mutated in place.
func (rs *RuleSet) clone() *RuleSet {
	out := &RuleSet{
		Groups: rs.Groups.Clone(),
		Rules:  make(map[string]TagRule, len(rs.Rules)),
	}
	for k, v := range rs.Rules {
		out.Rules[k] = v
	}
	return out
}

// Lookup returns the rule registered for tag.
func (rs *RuleSet) Lookup(tag string) (TagRule, bool) {
	r, ok := rs.Rules[NormalizeTag(tag)]
	return r, ok
}

// Tags returns every registered tag in lexical order.
func (rs *RuleSet) Tags() []string {
	tags := make([]string, 0, len(rs.Rules))
	for tag := range rs.Rules {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Store publishes the active [RuleSet]. Lookups read an atomic snapshot and
// never block; loads and additions serialise on a mutex and swap in a new
// snapshot, so concurrent resolutions always see a consistent rule set.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[RuleSet]
	onSwap  func(*RuleSet)
}

// Option configures a [Store].
type Option func(*storeOptions)

type storeOptions struct {
	initial *RuleSet
	onSwap  func(*RuleSet)
}

// WithRuleSet initialises the store from rs instead of [Defaults].
func WithRuleSet(rs RuleSet) Option {
	return func(o *storeOptions) {
		o.initial = &rs
	}
}

// WithSwapHook registers fn to be called after every snapshot swap, e.g. to
// export the rule count as a metric.
func WithSwapHook(fn func(*RuleSet)) Option {
	return func(o *storeOptions) {
		o.onSwap = fn
	}
}

// New returns a store initialised from [Defaults] (or [WithRuleSet]).
func New(opts ...Option) *Store {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.initial == nil {
		d := Defaults()
		o.initial = &d
	}
	initial := o.initial.clone()
	if initial.Groups == nil {
		initial.Groups = ConflictGroups{}
	}

	s := &Store{onSwap: o.onSwap}
	s.swap(initial)
	return s
}

// Open returns a store loaded from the rule source at path. When path is
// empty, missing, unreadable or malformed, Open logs a warning and falls back
// to the built-in defaults. It never fails.
//
// Rules from the source are merged over the defaults' conflict groups, but
// replace the default rule table, matching a fresh generator instance that
// loads a rules file.
func Open(path string, opts ...Option) *Store {
	if path == "" {
		return New(opts...)
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("rules: cannot open rule source, using defaults", "path", path, "err", err)
		return New(opts...)
	}
	defer f.Close()

	src, err := ParseSource(f)
	if err != nil {
		slog.Warn("rules: cannot parse rule source, using defaults", "path", path, "err", err)
		return New(opts...)
	}

	s := New(append([]Option{WithRuleSet(FromSource(src))}, opts...)...)
	slog.Info("rules: loaded rule source", "path", path, "rules", len(src.Rules), "warnings", len(src.Warnings))
	return s
}

// FromSource builds a standalone rule set from src: the default conflict
// groups overlaid with the source's groups, and only the source's tag rules.
func FromSource(src *Source) RuleSet {
	rs := RuleSet{Groups: DefaultConflictGroups(), Rules: make(map[string]TagRule, len(src.Rules))}
	for name, members := range src.Groups {
		rs.Groups[name] = append([]string(nil), members...)
	}
	for _, rule := range src.Rules {
		rs.Rules[NormalizeTag(rule.Tag)] = rule
	}
	return rs
}

// LoadFile parses the rule source at path and merges it into the store.
// Returns the number of tag rules loaded. On error the store is unchanged.
func (s *Store) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("rules: open %q: %w", path, err)
	}
	defer f.Close()

	n, err := s.LoadFromReader(f)
	if err != nil {
		return 0, fmt.Errorf("rules: load %q: %w", path, err)
	}
	return n, nil
}

// ReplaceFile parses the rule source at path and swaps it in with the same
// semantics as [Open]: default conflict groups plus the source's, and only
// the source's tag rules. On error the store is unchanged.
func (s *Store) ReplaceFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("rules: open %q: %w", path, err)
	}
	defer f.Close()

	src, err := ParseSource(f)
	if err != nil {
		return 0, fmt.Errorf("rules: load %q: %w", path, err)
	}
	s.Replace(FromSource(src))
	return len(src.Rules), nil
}

// LoadFromReader parses a rule source and merges it into the store:
// conflict groups from the source override groups with the same name, and
// tag rules replace rules with the same tag (last loaded wins).
func (s *Store) LoadFromReader(r io.Reader) (int, error) {
	src, err := ParseSource(r)
	if err != nil {
		return 0, err
	}
	return s.apply(src), nil
}

// Replace swaps in rs wholesale.
func (s *Store) Replace(rs RuleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(rs.clone())
}

func (s *Store) apply(src *Source) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	for name, members := range src.Groups {
		next.Groups[name] = append([]string(nil), members...)
	}
	for _, rule := range src.Rules {
		next.Rules[NormalizeTag(rule.Tag)] = rule
	}
	s.swap(next)
	return len(src.Rules)
}

// AddRule registers rule, replacing any rule with the same tag.
func (s *Store) AddRule(rule TagRule) {
	if NormalizeTag(rule.Tag) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	next.Rules[NormalizeTag(rule.Tag)] = rule
	s.swap(next)
}

func (s *Store) swap(rs *RuleSet) {
	s.current.Store(rs)
	if s.onSwap != nil {
		s.onSwap(rs)
	}
}

// Snapshot returns the active rule set. Callers must not modify it.
func (s *Store) Snapshot() *RuleSet {
	return s.current.Load()
}

// Lookup returns the rule for tag after trimming and lowercasing it.
func (s *Store) Lookup(tag string) (TagRule, bool) {
	return s.Snapshot().Lookup(tag)
}

// AllTags returns every registered tag in lexical order.
func (s *Store) AllTags() []string {
	return s.Snapshot().Tags()
}

// Len returns the number of registered tag rules.
func (s *Store) Len() int {
	return len(s.Snapshot().Rules)
}

// ConflictGroups returns a copy of the active conflict groups.
func (s *Store) ConflictGroups() ConflictGroups {
	return s.Snapshot().Groups.Clone()
}

// Format selects the encoding used by [Store.Export].
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks an export format from the file extension; anything
// other than .yaml/.yml is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

type exportDoc struct {
	ConflictGroups ConflictGroups `json:"conflict_groups" yaml:"conflict_groups"`
	TagRules       []TagRule      `json:"tag_rules" yaml:"tag_rules"`
}

// Export writes the active rule set in the rule source format. Tag rules are
// written in lexical tag order so exports are reproducible.
func (s *Store) Export(w io.Writer, format Format) error {
	rs := s.Snapshot()
	doc := exportDoc{ConflictGroups: rs.Groups, TagRules: make([]TagRule, 0, len(rs.Rules))}
	for _, tag := range rs.Tags() {
		rule := rs.Rules[tag]
		rule.Traits = slices.Clone(rule.Traits)
		if rule.Traits == nil {
			rule.Traits = []Trait{}
		}
		if rule.Skills == nil {
			rule.Skills = []Skill{}
		}
		for i := range rule.Traits {
			if rule.Traits[i].ConflictsWith == nil {
				rule.Traits[i].ConflictsWith = []string{}
			}
		}
		doc.TagRules = append(doc.TagRules, rule)
	}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("rules: encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("rules: encode json: %w", err)
		}
		return nil
	}
}

// ExportFile writes the active rule set to path, choosing the format from
// the extension.
func (s *Store) ExportFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("rules: create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rules: create %q: %w", path, err)
	}
	if err := s.Export(f, FormatForPath(path)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("rules: close %q: %w", path, err)
	}
	return nil
}
