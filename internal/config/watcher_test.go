package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/personaforge/internal/config"
)

const baseYAML = `
server:
  log_level: info
rules:
  suggest: true
vision:
  provider: simulate
  seed: 7
`

func writeAt(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_AppliesEditsAsDiff(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "personaforge.yaml")
	base := time.Now().Add(-time.Hour)
	writeAt(t, path, baseYAML, base)

	diffs := make(chan config.ConfigDiff, 1)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		diffs <- config.Diff(old, new)
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Fatalf("initial log level = %q", got)
	}

	edited := "server:\n  log_level: debug\nrules:\n  suggest: false\nvision:\n  provider: simulate\n  seed: 7\n"
	writeAt(t, path, edited, base.Add(time.Minute))

	select {
	case d := <-diffs:
		if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
			t.Errorf("log level diff = %+v", d)
		}
		if !d.SuggestChanged {
			t.Error("SuggestChanged not set")
		}
		if len(d.RestartNeeded) != 0 {
			t.Errorf("RestartNeeded = %v", d.RestartNeeded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current log level = %q", got)
	}
}

func TestWatcher_IgnoresInvalidEdit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "personaforge.yaml")
	base := time.Now().Add(-time.Hour)
	writeAt(t, path, baseYAML, base)

	changed := make(chan struct{}, 1)
	w, err := config.NewWatcher(path, func(*config.Config, *config.Config) {
		changed <- struct{}{}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeAt(t, path, "server:\n  log_level: bananas\n", base.Add(time.Minute))
	select {
	case <-changed:
		t.Fatal("invalid config was applied")
	case <-time.After(300 * time.Millisecond):
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current log level = %q, want info", got)
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("expected error for a missing file")
	}
}
