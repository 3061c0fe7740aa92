package resolve

import (
	"cmp"
	"slices"

	"github.com/MrWong99/personaforge/internal/rules"
)

// filter narrows a candidate list. Every pass preserves the relative order
// of the traits it keeps.
type filter func([]rules.Trait) []rules.Trait

// tieBreak reports whether challenger should replace incumbent when both
// have the same priority. The default keeps the first encountered trait.
type tieBreak func(challenger, incumbent rules.Trait) bool

func firstWins(rules.Trait, rules.Trait) bool { return false }

func lexicalWins(challenger, incumbent rules.Trait) bool {
	return challenger.Def < incumbent.Def
}

// beats reports whether a outranks b.
func (tb tieBreak) beats(a, b rules.Trait) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return tb(a, b)
}

// resolveTraits runs the full exclusion pipeline: category pass and explicit
// conflicts pass side by side, then conflict groups, then de-duplication.
func resolveTraits(candidates []rules.Trait, groups rules.ConflictGroups, tb tieBreak) []rules.Trait {
	if len(candidates) == 0 {
		return nil
	}
	kept := append(byCategory(candidates, tb), byExplicitConflicts(candidates, tb)...)
	kept = byConflictGroups(groups, tb)(kept)
	return dedupe(kept)
}

// byCategory keeps the single best candidate of every category except
// [rules.CategoryUncategorized], which it drops. Categories are emitted in
// first-encounter order.
func byCategory(candidates []rules.Trait, tb tieBreak) []rules.Trait {
	var out []rules.Trait
	slot := make(map[rules.Category]int)

	for _, c := range candidates {
		if c.Category == rules.CategoryUncategorized {
			continue
		}
		i, ok := slot[c.Category]
		if !ok {
			slot[c.Category] = len(out)
			out = append(out, c)
			continue
		}
		if tb.beats(c, out[i]) {
			out[i] = c
		}
	}
	return out
}

// byExplicitConflicts admits uncategorized candidates in descending priority
// order. An admitted trait excludes every trait it lists in ConflictsWith;
// excluded traits are skipped when their turn comes, and so is a candidate
// that itself lists an already admitted trait.
func byExplicitConflicts(candidates []rules.Trait, tb tieBreak) []rules.Trait {
	var pool []rules.Trait
	for _, c := range candidates {
		if c.Category == rules.CategoryUncategorized {
			pool = append(pool, c)
		}
	}
	slices.SortStableFunc(pool, func(a, b rules.Trait) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		switch {
		case tb(a, b):
			return -1
		case tb(b, a):
			return 1
		}
		return 0
	})

	var out []rules.Trait
	excluded := make(map[string]struct{})
	admitted := make(map[string]struct{})
	for _, c := range pool {
		if _, ok := excluded[c.Def]; ok {
			continue
		}
		if slices.ContainsFunc(c.ConflictsWith, func(def string) bool {
			_, ok := admitted[def]
			return ok
		}) {
			continue
		}
		admitted[c.Def] = struct{}{}
		out = append(out, c)
		for _, def := range c.ConflictsWith {
			excluded[def] = struct{}{}
		}
	}
	return out
}

// byConflictGroups returns a filter that, for every group in lexical name
// order, keeps only the best kept member of that group.
func byConflictGroups(groups rules.ConflictGroups, tb tieBreak) filter {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)

	return func(kept []rules.Trait) []rules.Trait {
		for _, name := range names {
			members := groups[name]
			best := -1
			for i, t := range kept {
				if !slices.Contains(members, t.Def) {
					continue
				}
				if best < 0 || tb.beats(t, kept[best]) {
					best = i
				}
			}
			if best < 0 {
				continue
			}
			next := kept[:0:0]
			for i, t := range kept {
				if i == best || !slices.Contains(members, t.Def) {
					next = append(next, t)
				}
			}
			kept = next
		}
		return kept
	}
}

// dedupe keeps the first occurrence of every trait def.
func dedupe(kept []rules.Trait) []rules.Trait {
	seen := make(map[string]struct{}, len(kept))
	out := kept[:0:0]
	for _, t := range kept {
		if _, ok := seen[t.Def]; ok {
			continue
		}
		seen[t.Def] = struct{}{}
		out = append(out, t)
	}
	return out
}
