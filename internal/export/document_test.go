package export_test

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/MrWong99/personaforge/internal/export"
	"github.com/MrWong99/personaforge/internal/resolve"
	"github.com/MrWong99/personaforge/internal/rules"
)

func resolveTags(tags ...string) resolve.Persona {
	return resolve.New(rules.New()).Resolve(tags)
}

func encode(t *testing.T, d export.Document) string {
	t.Helper()
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return buf.String()
}

func TestBuild_Document(t *testing.T) {
	t.Parallel()

	p := resolveTags("angry", "scar")
	doc := export.Build(p, "Test Sideria",
		export.WithTitle("The Awakened One"),
		export.WithDescription("Scarred by countless battles."),
	)
	out := encode(t, doc)

	if strings.HasPrefix(out, "<?xml") {
		t.Error("document must not carry an XML declaration")
	}
	if !strings.HasPrefix(out, "<Defs>\n  <PawnKindDef>\n    <!-- Generated from tags: angry, scar -->\n    <defName>Test_Sideria</defName>") {
		t.Errorf("unexpected document head:\n%s", out)
	}

	for _, want := range []string{
		"<label>Test Sideria</label>",
		"<race>Human</race>",
		"<def>Bloodlust</def>",
		"<def>Volatile</def>",
		"<def>Tough</def>",
		"<defName>Test_Sideria_Backstory</defName>",
		"<slot>Adulthood</slot>",
		"<title>The Awakened One</title>",
		"<titleShort>The</titleShort>",
		"<baseDesc>Scarred by countless battles.</baseDesc>",
		"<Melee>5</Melee>",
		"<Shooting>1</Shooting>",
		"<li>Offworld</li>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<degree>") {
		t.Error("zero degrees must be omitted")
	}
	if strings.Index(out, "<Melee>") > strings.Index(out, "<Shooting>") {
		t.Error("skill gains out of accumulation order")
	}
}

func TestBuild_Defaults(t *testing.T) {
	t.Parallel()

	doc := export.Build(resolveTags("kind"), "Mara")
	if doc.Backstory.Title != "Mara's Past" {
		t.Errorf("Title = %q", doc.Backstory.Title)
	}
	if doc.Backstory.TitleShort != "Mara's" {
		t.Errorf("TitleShort = %q", doc.Backstory.TitleShort)
	}
	if doc.Backstory.BaseDesc != "A mysterious figure known as Mara." {
		t.Errorf("BaseDesc = %q", doc.Backstory.BaseDesc)
	}
	if doc.FileName() != "Mara_Def.xml" {
		t.Errorf("FileName = %q", doc.FileName())
	}
}

func TestBuild_TitleShortTruncated(t *testing.T) {
	t.Parallel()

	doc := export.Build(resolve.Persona{}, "X", export.WithTitle("Übermenschlichkeit incarnate"))
	if got := doc.Backstory.TitleShort; got != "Übermenschli" {
		t.Errorf("TitleShort = %q, want 12 runes", got)
	}
}

func TestBuild_EmptyPersona(t *testing.T) {
	t.Parallel()

	out := encode(t, export.Build(resolveTags("unknown_tag_xyz"), "Nobody"))
	for _, absent := range []string{"<!--", "forcedTraits", "skillGains"} {
		if strings.Contains(out, absent) {
			t.Errorf("empty persona should not contain %q:\n%s", absent, out)
		}
	}
	if !strings.Contains(out, "<spawnCategories>") {
		t.Error("spawnCategories always present")
	}
}

func TestEncode_QuotesStayLiteral(t *testing.T) {
	t.Parallel()

	doc := export.Build(resolve.Persona{}, "Mara", export.WithDescription(`She said "never" & <meant> it.`))
	out := encode(t, doc)
	for _, want := range []string{
		"<title>Mara's Past</title>",
		"<titleShort>Mara's</titleShort>",
		`<baseDesc>She said "never" &amp; &lt;meant&gt; it.</baseDesc>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document missing %q:\n%s", want, out)
		}
	}

	back, err := export.Decode(strings.NewReader(out))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.Backstory.BaseDesc != `She said "never" & <meant> it.` {
		t.Errorf("BaseDesc after decode = %q", back.Backstory.BaseDesc)
	}
}

func TestBuild_Degree(t *testing.T) {
	t.Parallel()

	p := resolve.Persona{Traits: []rules.Trait{{Def: "SpeedOffset", Degree: -1}}}
	if out := encode(t, export.Build(p, "Slow")); !strings.Contains(out, "<degree>-1</degree>") {
		t.Errorf("non-zero degree missing:\n%s", out)
	}
}

func TestBuild_CommentIsEscaped(t *testing.T) {
	t.Parallel()

	p := resolve.Persona{MatchedTags: []string{"a--b"}}
	out := encode(t, export.Build(p, "Dash"))
	inner := out[strings.Index(out, "<!--")+4 : strings.Index(out, "-->")]
	if strings.Contains(inner, "--") {
		t.Errorf("comment body contains --: %q", inner)
	}
}

func TestDocument_RoundTrip(t *testing.T) {
	t.Parallel()

	doc := export.Build(resolveTags("lab_coat", "crown"), "Dr. Rex")
	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	back, err := export.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.PawnKind.DefName != "Dr_Rex" {
		t.Errorf("DefName = %q", back.PawnKind.DefName)
	}
	if back.Backstory.SkillGains == nil || len(back.Backstory.SkillGains.Items) != 3 {
		t.Fatalf("SkillGains = %+v", back.Backstory.SkillGains)
	}
	if g := back.Backstory.SkillGains.Items[0]; g.Skill != "Intellectual" || g.Bonus != 5 {
		t.Errorf("first skill gain = %+v", g)
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	doc := export.Build(resolveTags("halo"), "Seraph")
	path := filepath.Join(t.TempDir(), "nested", "out", doc.FileName())
	if err := export.WriteFile(path, doc); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "<def>Kind</def>") {
		t.Errorf("written file missing trait:\n%s", data)
	}
}

func TestWriteFile_Unwritable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := export.WriteFile(filepath.Join(blocker, "sub", "x.xml"), export.Build(resolve.Persona{}, "X"))
	if err == nil {
		t.Fatal("expected error writing beneath a regular file")
	}
}

var defNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func TestSanitizeDefName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{in: "Test Sideria", want: "Test_Sideria"},
		{in: "Dr. Jane O'Neil!", want: "Dr_Jane_ONeil"},
		{in: "42 Knights", want: "Pawn_42_Knights"},
		{in: " lead", want: "Pawn__lead"},
		{in: "Zoë", want: "Zo"},
		{in: "!!!", want: "UnnamedPawn"},
		{in: "", want: "UnnamedPawn"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := export.SanitizeDefName(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeDefName(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !defNamePattern.MatchString(got) {
				t.Errorf("SanitizeDefName(%q) = %q is not a valid defName", tt.in, got)
			}
		})
	}
}
