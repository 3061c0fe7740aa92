// Package tagmatch suggests the closest known tag for a tag the rule table
// does not contain, so "scarred" can point at "scar".
//
// Candidates are found in two stages. A known tag whose Double Metaphone
// codes overlap the input's is a phonetic candidate and needs a
// Jaro-Winkler score of at least the phonetic threshold (default 0.70).
// When no phonetic candidate qualifies, any known tag scoring at least the
// fuzzy threshold (default 0.85) is accepted. Tags are compared per
// underscore-separated token as well as whole.
package tagmatch

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/personaforge/internal/resolve"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Vocabulary lists the tags suggestions are drawn from. *rules.Store
// satisfies it, so suggestions follow rule reloads.
type Vocabulary interface {
	AllTags() []string
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum score for phonetic candidates.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum score when nothing sounds alike.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher implements [resolve.Suggester]. It is safe for concurrent use.
type Matcher struct {
	vocab             Vocabulary
	phoneticThreshold float64
	fuzzyThreshold    float64
}

var _ resolve.Suggester = (*Matcher)(nil)

// New returns a matcher drawing from vocab.
func New(vocab Vocabulary, opts ...Option) *Matcher {
	m := &Matcher{
		vocab:             vocab,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Suggest returns the known tag closest to tag, if any is close enough.
func (m *Matcher) Suggest(tag string) (string, bool) {
	s, _, ok := m.Match(tag)
	return s, ok
}

// Match is [Matcher.Suggest] with the winning score.
func (m *Matcher) Match(tag string) (suggestion string, score float64, ok bool) {
	input := strings.ToLower(strings.TrimSpace(tag))
	if input == "" {
		return "", 0, false
	}
	inTokens := tokens(input)
	inCodes := codes(inTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, known := range m.vocab.AllTags() {
		if known == "" || known == input {
			continue
		}
		kTokens := tokens(known)
		score := similarity(inTokens, kTokens, input, known)

		if overlaps(inCodes, codes(kTokens)) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = known, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = known, score
		}
	}
	return best, bestScore, best != ""
}

func tokens(tag string) []string {
	return strings.FieldsFunc(tag, func(r rune) bool { return r == '_' || r == ' ' || r == '-' })
}

func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			out[p] = struct{}{}
		}
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the whole tags, the tags
// with separators removed, and every token pair.
func similarity(inTokens, kTokens []string, input, known string) float64 {
	score := matchr.JaroWinkler(input, known, false)
	if len(inTokens) > 1 || len(kTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inTokens, ""), strings.Join(kTokens, ""), false); s > score {
			score = s
		}
	}
	// Token pairs only count when both sides are single words, otherwise
	// "red_hat" would match "red_jacket" perfectly on "red".
	if len(inTokens) == 1 && len(kTokens) == 1 {
		if s := matchr.JaroWinkler(inTokens[0], kTokens[0], false); s > score {
			score = s
		}
	}
	return score
}
