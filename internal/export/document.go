// Package export renders a resolved persona as a RimWorld definition
// document: one PawnKindDef carrying the forced traits and one BackstoryDef
// carrying the skill gains, wrapped in a <Defs> root.
package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/personaforge/internal/resolve"
)

// maxTitleShort is the longest titleShort RimWorld displays.
const maxTitleShort = 12

// Document is the <Defs> root of an exported persona.
type Document struct {
	XMLName   xml.Name     `xml:"Defs"`
	PawnKind  PawnKindDef  `xml:"PawnKindDef"`
	Backstory BackstoryDef `xml:"BackstoryDef"`
}

// PawnKindDef describes the pawn and its forced traits.
type PawnKindDef struct {
	Comment      xml.Comment   `xml:",comment"`
	DefName      string        `xml:"defName"`
	Label        string        `xml:"label"`
	Race         string        `xml:"race"`
	ForcedTraits *ForcedTraits `xml:"forcedTraits"`
}

// ForcedTraits is the <forcedTraits> list.
type ForcedTraits struct {
	Items []ForcedTrait `xml:"li"`
}

// ForcedTrait is one <li> of forcedTraits. A zero degree is omitted.
type ForcedTrait struct {
	Def    string `xml:"def"`
	Degree int    `xml:"degree,omitempty"`
}

// BackstoryDef carries the title, description and skill gains.
type BackstoryDef struct {
	DefName         string           `xml:"defName"`
	Slot            string           `xml:"slot"`
	Title           string           `xml:"title"`
	TitleShort      string           `xml:"titleShort"`
	BaseDesc        string           `xml:"baseDesc"`
	SkillGains      *SkillGains      `xml:"skillGains"`
	SpawnCategories *SpawnCategories `xml:"spawnCategories"`
}

// SkillGain is one skill bonus.
type SkillGain struct {
	Skill string
	Bonus int
}

// SkillGains encodes as <skillGains><Melee>7</Melee>...</skillGains>, one
// element per skill named after the skill.
type SkillGains struct {
	Items []SkillGain
}

// MarshalXML implements [xml.Marshaler].
func (g SkillGains) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, s := range g.Items {
		el := xml.StartElement{Name: xml.Name{Local: elementName(s.Skill)}}
		if err := e.EncodeElement(strconv.Itoa(s.Bonus), el); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML implements [xml.Unmarshaler].
func (g *SkillGains) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var text string
			if err := d.DecodeElement(&text, &t); err != nil {
				return err
			}
			bonus, err := strconv.Atoi(strings.TrimSpace(text))
			if err != nil {
				return fmt.Errorf("export: skill %q: %w", t.Name.Local, err)
			}
			g.Items = append(g.Items, SkillGain{Skill: t.Name.Local, Bonus: bonus})
		case xml.EndElement:
			return nil
		}
	}
}

// SpawnCategories is the <spawnCategories> list.
type SpawnCategories struct {
	Items []string `xml:"li"`
}

type buildOptions struct {
	title       string
	description string
}

// Option customises [Build].
type Option func(*buildOptions)

// WithTitle sets the backstory title. Default: "<subject>'s Past".
func WithTitle(title string) Option {
	return func(o *buildOptions) { o.title = title }
}

// WithDescription sets the backstory description. Default:
// "A mysterious figure known as <subject>.".
func WithDescription(desc string) Option {
	return func(o *buildOptions) { o.description = desc }
}

// Build assembles the definition document for p under the display name
// subject.
func Build(p resolve.Persona, subject string, opts ...Option) Document {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.title == "" {
		o.title = subject + "'s Past"
	}
	if o.description == "" {
		o.description = "A mysterious figure known as " + subject + "."
	}

	defName := SanitizeDefName(subject)
	doc := Document{
		PawnKind: PawnKindDef{
			DefName: defName,
			Label:   subject,
			Race:    "Human",
		},
		Backstory: BackstoryDef{
			DefName:         defName + "_Backstory",
			Slot:            "Adulthood",
			Title:           o.title,
			TitleShort:      titleShort(o.title, subject),
			BaseDesc:        o.description,
			SpawnCategories: &SpawnCategories{Items: []string{"Offworld"}},
		},
	}

	if len(p.MatchedTags) > 0 {
		doc.PawnKind.Comment = xml.Comment(commentSafe(" Generated from tags: " + strings.Join(p.MatchedTags, ", ") + " "))
	}
	if len(p.Traits) > 0 {
		ft := &ForcedTraits{Items: make([]ForcedTrait, 0, len(p.Traits))}
		for _, t := range p.Traits {
			ft.Items = append(ft.Items, ForcedTrait{Def: t.Def, Degree: t.Degree})
		}
		doc.PawnKind.ForcedTraits = ft
	}
	if p.Skills.Len() > 0 {
		sg := &SkillGains{Items: make([]SkillGain, 0, p.Skills.Len())}
		for _, s := range p.Skills.All() {
			sg.Items = append(sg.Items, SkillGain{Skill: s.Name, Bonus: s.Bonus})
		}
		doc.Backstory.SkillGains = sg
	}
	return doc
}

// textUnescaper undoes the quote escaping of encoding/xml. Quotes are legal
// in character data and the document carries no attributes.
var textUnescaper = strings.NewReplacer("&#39;", "'", "&#34;", `"`)

// Encode writes d as two-space indented XML without a declaration.
func (d Document) Encode(w io.Writer) error {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("export: encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("export: encode document: %w", err)
	}
	buf.WriteByte('\n')
	if _, err := textUnescaper.WriteString(w, buf.String()); err != nil {
		return fmt.Errorf("export: encode document: %w", err)
	}
	return nil
}

// Bytes returns the encoded document.
func (d Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a document written by [Document.Encode].
func Decode(r io.Reader) (Document, error) {
	var d Document
	if err := xml.NewDecoder(r).Decode(&d); err != nil {
		return Document{}, fmt.Errorf("export: decode document: %w", err)
	}
	return d, nil
}

// WriteFile encodes d to path, creating parent directories as needed.
func WriteFile(path string, d Document) error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: write %q: %w", path, err)
	}
	return nil
}

// FileName returns the conventional file name for a document: "<defName>_Def.xml".
func (d Document) FileName() string {
	return d.PawnKind.DefName + "_Def.xml"
}

// SanitizeDefName turns a display name into a valid defName: spaces become
// underscores, anything outside [A-Za-z0-9_] is dropped, a leading non-letter
// gets a "Pawn_" prefix and an empty result becomes "UnnamedPawn".
func SanitizeDefName(name string) string {
	var b strings.Builder
	for _, r := range strings.ReplaceAll(name, " ", "_") {
		if r < utf8.RuneSelf && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return "UnnamedPawn"
	}
	if c := s[0]; !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
		s = "Pawn_" + s
	}
	return s
}

func titleShort(title, subject string) string {
	short := subject
	if fields := strings.Fields(title); len(fields) > 0 {
		short = fields[0]
	}
	if utf8.RuneCountInString(short) > maxTitleShort {
		short = string([]rune(short)[:maxTitleShort])
	}
	return short
}

// commentSafe removes sequences that would end an XML comment early.
func commentSafe(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.TrimSuffix(s, "-")
}

// elementName maps a skill name onto an XML element name.
func elementName(skill string) string {
	var b strings.Builder
	for i, r := range skill {
		switch {
		case unicode.IsLetter(r), r == '_':
			b.WriteRune(r)
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'):
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "Skill"
	}
	return b.String()
}
