// Package rules holds the tag rule table that drives persona resolution.
//
// A [TagRule] maps one visual tag (e.g. "scar", "lab_coat") to the trait and
// skill candidates it contributes. A [RuleSet] bundles the rule table with
// the global conflict groups, and a [Store] publishes the active rule set to
// resolvers.
//
// Rule sets are built once, either from [Defaults] or from a declarative
// rule source (JSON or YAML, see [Store.LoadFromReader]), and are treated as
// read-only afterwards. Reloading swaps the whole set atomically.
package rules

import (
	"errors"
	"strings"
)

// ErrUnknownCategory is returned when a rule source names a trait category
// that is not one of the recognised [Category] values.
var ErrUnknownCategory = errors.New("rules: unknown trait category")

// Category is the trait axis used for mutual exclusion. At most one trait per
// category survives resolution, except for [CategoryUncategorized].
type Category string

const (
	// CategoryMood covers temperament archetypes (Kind vs Bloodlust).
	CategoryMood Category = "mood"

	// CategoryWorkEthic covers work attitude (Industrious vs Lazy).
	CategoryWorkEthic Category = "work"

	// CategorySocial covers social behaviour (Sociable vs Annoying).
	CategorySocial Category = "social"

	// CategoryCombat covers fighting style (Brawler vs Careful).
	CategoryCombat Category = "combat"

	// CategoryMental covers mental resilience (Steadfast vs Nervous).
	CategoryMental Category = "mental"

	// CategoryPhysical covers physical build (Tough vs Wimp).
	CategoryPhysical Category = "physical"

	// CategoryUncategorized traits are only excluded through explicit
	// conflicts and conflict groups.
	CategoryUncategorized Category = "uncategorized"
)

// Categories lists every recognised category in declaration order.
var Categories = []Category{
	CategoryMood,
	CategoryWorkEthic,
	CategorySocial,
	CategoryCombat,
	CategoryMental,
	CategoryPhysical,
	CategoryUncategorized,
}

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryMood, CategoryWorkEthic, CategorySocial, CategoryCombat,
		CategoryMental, CategoryPhysical, CategoryUncategorized:
		return true
	}
	return false
}

// ParseCategory converts a rule-source category string into a [Category].
// The empty string maps to [CategoryUncategorized].
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryUncategorized, nil
	}
	if !c.IsValid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// Passion is the emphasis level of a skill bonus.
type Passion int

const (
	PassionNone  Passion = 0
	PassionMinor Passion = 1
	PassionMajor Passion = 2
)

// Label returns the summary annotation for p: "Major", "Minor" or "".
func (p Passion) Label() string {
	switch {
	case p >= PassionMajor:
		return "Major"
	case p == PassionMinor:
		return "Minor"
	}
	return ""
}

// DefaultPriority is applied to traits whose rule source omits a priority.
const DefaultPriority = 50

// Trait is a trait candidate contributed by a tag rule.
type Trait struct {
	// Def is the trait definition name (e.g. "Bloodlust").
	Def string `json:"traitDef" yaml:"traitDef"`

	// Degree is the trait intensity in [-2, 2]. Zero means the trait has no
	// degrees.
	Degree int `json:"degree" yaml:"degree"`

	// Priority in [0, 100]; higher wins conflicts.
	Priority int `json:"priority" yaml:"priority"`

	// Category is the exclusivity axis.
	Category Category `json:"category" yaml:"category"`

	// ConflictsWith lists trait defs that cannot coexist with this trait.
	// Only consulted for uncategorized traits.
	ConflictsWith []string `json:"conflictsWith" yaml:"conflictsWith"`
}

// Skill is a skill bonus candidate contributed by a tag rule.
type Skill struct {
	Name    string  `json:"skillName" yaml:"skillName"`
	Bonus   int     `json:"bonus" yaml:"bonus"`
	Passion Passion `json:"passion" yaml:"passion"`
}

// TagRule maps one tag to the traits and skills it contributes.
type TagRule struct {
	Tag         string  `json:"tag" yaml:"tag"`
	Description string  `json:"description" yaml:"description"`
	Traits      []Trait `json:"traits" yaml:"traits"`
	Skills      []Skill `json:"skills" yaml:"skills"`
}

// ConflictGroups maps a group name to a set of mutually exclusive trait defs.
// Groups apply regardless of category.
type ConflictGroups map[string][]string

// Clone returns a deep copy of g.
func (g ConflictGroups) Clone() ConflictGroups {
	out := make(ConflictGroups, len(g))
	for name, members := range g {
		out[name] = append([]string(nil), members...)
	}
	return out
}

// NormalizeTag returns the lookup key for tag: trimmed and lowercased.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
