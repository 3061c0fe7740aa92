package batch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/personaforge/internal/archive"
	"github.com/MrWong99/personaforge/internal/batch"
	"github.com/MrWong99/personaforge/internal/resolve"
	"github.com/MrWong99/personaforge/internal/rules"
	"github.com/MrWong99/personaforge/internal/vision/mock"
)

func setupInput(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRun(t *testing.T) {
	t.Parallel()

	in := setupInput(t, "Test Sideria.png", "blank.png", "broken.png", "notes.txt")
	out := filepath.Join(t.TempDir(), "mods")
	det := &mock.Detector{
		ByPath: map[string][]string{
			filepath.Join(in, "Test Sideria.png"): {"angry", "scar", "monocle"},
			filepath.Join(in, "blank.png"):        {},
		},
		FailPaths: map[string]error{filepath.Join(in, "broken.png"): errors.New("vision down")},
	}
	store := archive.NewMemStore()

	sum, err := batch.Run(context.Background(),
		batch.Config{InputDir: in, OutputDir: out, Workers: 2},
		batch.Deps{Detector: det, Resolver: resolve.New(rules.New()), Archive: store},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Processed != 1 || sum.Failed != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if want := []string{"blank.png", "broken.png"}; !slices.Equal(sum.FailedFiles, want) {
		t.Errorf("FailedFiles = %v, want %v", sum.FailedFiles, want)
	}
	if n := len(det.Calls()); n != 3 {
		t.Errorf("detector calls = %d, want 3 (txt ignored)", n)
	}

	data, err := os.ReadFile(filepath.Join(out, "Test_Sideria_Def.xml"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	for _, want := range []string{
		"<title>Test Sideria's Journey</title>",
		"<baseDesc>Test Sideria - a character generated from visual analysis. Tags: angry, scar.</baseDesc>",
		"<def>Bloodlust</def>",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("output missing %q:\n%s", want, data)
		}
	}

	recs, _ := store.List(context.Background(), archive.ListOptions{})
	if len(recs) != 1 || recs[0].Subject != "Test Sideria" || recs[0].DefName != "Test_Sideria" {
		t.Errorf("archive = %+v", recs)
	}
	if !slices.Equal(recs[0].Tags, []string{"angry", "scar", "monocle"}) {
		t.Errorf("archived tags = %v", recs[0].Tags)
	}
}

func TestRun_Patterns(t *testing.T) {
	t.Parallel()

	in := setupInput(t, "a.png", "b.jpg", "c.webp")
	det := &mock.Detector{Tags: []string{"halo"}}
	sum, err := batch.Run(context.Background(),
		batch.Config{InputDir: in, OutputDir: t.TempDir(), Patterns: []string{"*.jpg", "*.webp", "*.jpg"}},
		batch.Deps{Detector: det, Resolver: resolve.New(rules.New())},
	)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 2 {
		t.Errorf("Processed = %d, want 2", sum.Processed)
	}
}

func TestRun_EmptyFolder(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out")
	sum, err := batch.Run(context.Background(),
		batch.Config{InputDir: t.TempDir(), OutputDir: out},
		batch.Deps{Detector: &mock.Detector{}, Resolver: resolve.New(rules.New())},
	)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 0 || sum.Failed != 0 || len(sum.FailedFiles) != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_MissingFolder(t *testing.T) {
	t.Parallel()

	_, err := batch.Run(context.Background(),
		batch.Config{InputDir: filepath.Join(t.TempDir(), "nope"), OutputDir: t.TempDir()},
		batch.Deps{Detector: &mock.Detector{}, Resolver: resolve.New(rules.New())},
	)
	if err == nil {
		t.Fatal("expected error for missing input folder")
	}
}

func TestRun_MissingDeps(t *testing.T) {
	t.Parallel()

	if _, err := batch.Run(context.Background(), batch.Config{InputDir: t.TempDir()}, batch.Deps{}); err == nil {
		t.Fatal("expected error without detector")
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	in := setupInput(t, "a.png", "b.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := batch.Run(ctx,
		batch.Config{InputDir: in, OutputDir: t.TempDir()},
		batch.Deps{Detector: &mock.Detector{Tags: []string{"halo"}}, Resolver: resolve.New(rules.New())},
	)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSubjectName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/in/Test Sideria.png": "Test Sideria",
		"hero.final.png":       "hero.final",
		"noext":                "noext",
	}
	for in, want := range tests {
		if got := batch.SubjectName(in); got != want {
			t.Errorf("SubjectName(%q) = %q, want %q", in, got, want)
		}
	}
}
