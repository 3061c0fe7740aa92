package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Source is a parsed rule source: conflict-group overrides plus the tag rules
// that survived per-record validation. Skipped records are reported through
// Warnings and logged.
type Source struct {
	Groups   ConflictGroups
	Rules    []TagRule
	Warnings []error
}

// record is one undecoded entry of a rule source. It hides whether the
// source was JSON or YAML so per-record decoding can fail independently.
type record interface {
	decode(v any) error
}

type yamlRecord struct{ node *yaml.Node }

func (r yamlRecord) decode(v any) error { return r.node.Decode(v) }

type jsonRecord struct{ raw json.RawMessage }

func (r jsonRecord) decode(v any) error { return json.Unmarshal(r.raw, v) }

type rawTrait struct {
	TraitDef      string   `json:"traitDef" yaml:"traitDef"`
	Degree        int      `json:"degree" yaml:"degree"`
	Priority      *int     `json:"priority" yaml:"priority"`
	Category      string   `json:"category" yaml:"category"`
	ConflictsWith []string `json:"conflictsWith" yaml:"conflictsWith"`
}

type rawSkill struct {
	SkillName string `json:"skillName" yaml:"skillName"`
	Bonus     int    `json:"bonus" yaml:"bonus"`
	Passion   int    `json:"passion" yaml:"passion"`
}

// ParseSource reads a rule source from r. JSON input (first non-blank byte
// '{') is decoded with encoding/json, everything else as YAML.
//
// Only a source that cannot be read or whose top level cannot be decoded
// returns an error. Malformed conflict groups, tag rules, traits and skills
// are skipped with a warning.
func ParseSource(r io.Reader) (*Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("rules: read source: %w", err)
	}

	groups, records, err := splitSource(data)
	if err != nil {
		return nil, err
	}

	src := &Source{Groups: make(ConflictGroups, len(groups))}

	for name, rec := range groups {
		var members []string
		if err := rec.decode(&members); err != nil {
			src.warn(fmt.Errorf("conflict group %q: %w", name, err))
			continue
		}
		src.Groups[name] = members
	}

	for i, rec := range records {
		rule, warnings, err := parseTagRule(rec)
		for _, w := range warnings {
			src.warn(fmt.Errorf("tag_rules[%d]: %w", i, w))
		}
		if err != nil {
			src.warn(fmt.Errorf("tag_rules[%d] skipped: %w", i, err))
			continue
		}
		src.Rules = append(src.Rules, rule)
	}

	return src, nil
}

func (s *Source) warn(err error) {
	slog.Warn("rules: skipping malformed rule source entry", "err", err)
	s.Warnings = append(s.Warnings, err)
}

// splitSource decodes the two top-level collections without decoding their
// entries.
func splitSource(data []byte) (map[string]record, []record, error) {
	groups := make(map[string]record)
	var records []record

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return groups, nil, nil
	}

	if trimmed[0] == '{' {
		var top struct {
			ConflictGroups map[string]json.RawMessage `json:"conflict_groups"`
			TagRules       []json.RawMessage          `json:"tag_rules"`
		}
		if err := json.Unmarshal(trimmed, &top); err != nil {
			return nil, nil, fmt.Errorf("rules: decode json source: %w", err)
		}
		for name, raw := range top.ConflictGroups {
			groups[name] = jsonRecord{raw: raw}
		}
		for _, raw := range top.TagRules {
			records = append(records, jsonRecord{raw: raw})
		}
		return groups, records, nil
	}

	var top struct {
		ConflictGroups map[string]yaml.Node `yaml:"conflict_groups"`
		TagRules       []yaml.Node          `yaml:"tag_rules"`
	}
	if err := yaml.Unmarshal(trimmed, &top); err != nil {
		return nil, nil, fmt.Errorf("rules: decode yaml source: %w", err)
	}
	for name, node := range top.ConflictGroups {
		groups[name] = yamlRecord{node: &node}
	}
	for i := range top.TagRules {
		records = append(records, yamlRecord{node: &top.TagRules[i]})
	}
	return groups, records, nil
}

// parseTagRule decodes one tag rule. Entries without a trait def or skill
// name, or with out-of-range values, are dropped and reported as warnings.
// A missing tag or an unknown category rejects the whole rule.
func parseTagRule(rec record) (TagRule, []error, error) {
	var raw struct {
		Tag         string `json:"tag" yaml:"tag"`
		Description string `json:"description" yaml:"description"`
	}
	if err := rec.decode(&raw); err != nil {
		return TagRule{}, nil, err
	}
	if NormalizeTag(raw.Tag) == "" {
		return TagRule{}, nil, errors.New("missing required key \"tag\"")
	}

	traits, skills, err := splitEntries(rec)
	if err != nil {
		return TagRule{}, nil, fmt.Errorf("tag %q: %w", raw.Tag, err)
	}

	rule := TagRule{Tag: raw.Tag, Description: raw.Description}
	var warnings []error

	for i, tr := range traits {
		var rt rawTrait
		if err := tr.decode(&rt); err != nil {
			warnings = append(warnings, fmt.Errorf("tag %q traits[%d]: %w", raw.Tag, i, err))
			continue
		}
		if rt.TraitDef == "" {
			warnings = append(warnings, fmt.Errorf("tag %q traits[%d]: missing required key \"traitDef\"", raw.Tag, i))
			continue
		}
		cat, err := ParseCategory(rt.Category)
		if err != nil {
			return TagRule{}, warnings, fmt.Errorf("tag %q trait %q: %w: %q", raw.Tag, rt.TraitDef, err, rt.Category)
		}
		if rt.Degree < -2 || rt.Degree > 2 {
			warnings = append(warnings, fmt.Errorf("tag %q trait %q: degree %d out of range [-2, 2]", raw.Tag, rt.TraitDef, rt.Degree))
			continue
		}
		priority := DefaultPriority
		if rt.Priority != nil {
			priority = *rt.Priority
		}
		if priority < 0 || priority > 100 {
			warnings = append(warnings, fmt.Errorf("tag %q trait %q: priority %d out of range [0, 100]", raw.Tag, rt.TraitDef, priority))
			continue
		}
		rule.Traits = append(rule.Traits, Trait{
			Def:           rt.TraitDef,
			Degree:        rt.Degree,
			Priority:      priority,
			Category:      cat,
			ConflictsWith: rt.ConflictsWith,
		})
	}

	for i, sr := range skills {
		var rs rawSkill
		if err := sr.decode(&rs); err != nil {
			warnings = append(warnings, fmt.Errorf("tag %q skills[%d]: %w", raw.Tag, i, err))
			continue
		}
		if rs.SkillName == "" {
			warnings = append(warnings, fmt.Errorf("tag %q skills[%d]: missing required key \"skillName\"", raw.Tag, i))
			continue
		}
		if rs.Passion < int(PassionNone) || rs.Passion > int(PassionMajor) {
			warnings = append(warnings, fmt.Errorf("tag %q skill %q: passion %d out of range [0, 2]", raw.Tag, rs.SkillName, rs.Passion))
			continue
		}
		rule.Skills = append(rule.Skills, Skill{
			Name:    rs.SkillName,
			Bonus:   rs.Bonus,
			Passion: Passion(rs.Passion),
		})
	}

	return rule, warnings, nil
}

// splitEntries returns the undecoded trait and skill entries of a tag rule.
func splitEntries(rec record) (traits, skills []record, err error) {
	switch r := rec.(type) {
	case yamlRecord:
		var entries struct {
			Traits []yaml.Node `yaml:"traits"`
			Skills []yaml.Node `yaml:"skills"`
		}
		if err := r.node.Decode(&entries); err != nil {
			return nil, nil, err
		}
		for i := range entries.Traits {
			traits = append(traits, yamlRecord{node: &entries.Traits[i]})
		}
		for i := range entries.Skills {
			skills = append(skills, yamlRecord{node: &entries.Skills[i]})
		}
	case jsonRecord:
		var entries struct {
			Traits []json.RawMessage `json:"traits"`
			Skills []json.RawMessage `json:"skills"`
		}
		if err := json.Unmarshal(r.raw, &entries); err != nil {
			return nil, nil, err
		}
		for _, t := range entries.Traits {
			traits = append(traits, jsonRecord{raw: t})
		}
		for _, s := range entries.Skills {
			skills = append(skills, jsonRecord{raw: s})
		}
	default:
		return nil, nil, fmt.Errorf("unsupported record type %T", rec)
	}
	return traits, skills, nil
}
