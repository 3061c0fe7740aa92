package resolve

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/personaforge/internal/rules"
)

// SkillSet accumulates skill bonuses by name. Bonuses add up without
// clamping and the passion is the strongest contributed. Iteration follows
// the order in which skill names were first added.
//
// The zero value is ready to use. A SkillSet is not safe for concurrent
// mutation.
type SkillSet struct {
	order  []string
	byName map[string]rules.Skill
}

// Add folds s into the set.
func (ss *SkillSet) Add(s rules.Skill) {
	if ss.byName == nil {
		ss.byName = make(map[string]rules.Skill)
	}
	cur, ok := ss.byName[s.Name]
	if !ok {
		ss.order = append(ss.order, s.Name)
		ss.byName[s.Name] = s
		return
	}
	cur.Bonus += s.Bonus
	cur.Passion = max(cur.Passion, s.Passion)
	ss.byName[s.Name] = cur
}

// Get returns the merged skill called name.
func (ss *SkillSet) Get(name string) (rules.Skill, bool) {
	s, ok := ss.byName[name]
	return s, ok
}

// Len returns the number of distinct skills.
func (ss *SkillSet) Len() int { return len(ss.order) }

// Names returns the skill names in first-added order.
func (ss *SkillSet) Names() []string {
	return append([]string(nil), ss.order...)
}

// All returns the merged skills in first-added order.
func (ss *SkillSet) All() []rules.Skill {
	out := make([]rules.Skill, 0, len(ss.order))
	for _, name := range ss.order {
		out = append(out, ss.byName[name])
	}
	return out
}

type skillJSON struct {
	Bonus   int           `json:"bonus"`
	Passion rules.Passion `json:"passion"`
}

// MarshalJSON encodes the set as an object keyed by skill name, preserving
// insertion order.
func (ss SkillSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range ss.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		s := ss.byName[name]
		val, err := json.Marshal(skillJSON{Bonus: s.Bonus, Passion: s.Passion})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object written by MarshalJSON, keeping the key
// order of the document.
func (ss *SkillSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*ss = SkillSet{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("resolve: decode skills: want object, got %v", tok)
	}

	*ss = SkillSet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var v skillJSON
		if err := dec.Decode(&v); err != nil {
			return err
		}
		ss.Add(rules.Skill{Name: name, Bonus: v.Bonus, Passion: v.Passion})
	}
	_, err = dec.Token()
	return err
}
