package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/MrWong99/personaforge/internal/vision/openai"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hero.png")
	if err := os.WriteFile(path, []byte("\x89PNG fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func chatServer(t *testing.T, answer string, seen *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			*seen = string(body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": answer},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	var body string
	srv := chatServer(t, "Scar, halo\n- bionic_eye\nwings", &body)
	d, err := openai.New("sk-test",
		openai.WithBaseURL(srv.URL+"/"),
		openai.WithKnownTags([]string{"scar", "halo", "bionic_eye"}),
		openai.WithRequestOptions(option.WithMaxRetries(0)),
	)
	if err != nil {
		t.Fatal(err)
	}

	tags, err := d.Detect(context.Background(), writeImage(t))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if want := []string{"scar", "halo", "bionic_eye"}; !slices.Equal(tags, want) {
		t.Errorf("tags = %v, want %v", tags, want)
	}
	if !strings.Contains(body, "data:image/png;base64,") {
		t.Error("request did not carry the image as a data URL")
	}
	if !strings.Contains(body, "Use only these tags: scar, halo, bionic_eye") {
		t.Error("request did not list the known tags")
	}
}

func TestDetect_EmptyAnswer(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, "  ", nil)
	d, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"), openai.WithRequestOptions(option.WithMaxRetries(0)))
	if _, err := d.Detect(context.Background(), writeImage(t)); err != openai.ErrEmptyAnswer {
		t.Errorf("err = %v, want ErrEmptyAnswer", err)
	}
}

func TestDetect_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"), openai.WithRequestOptions(option.WithMaxRetries(0)))
	if _, err := d.Detect(context.Background(), writeImage(t)); err == nil {
		t.Fatal("expected error from failing server")
	}
}

func TestDetect_MissingFile(t *testing.T) {
	t.Parallel()

	d, _ := openai.New("sk-test")
	if _, err := d.Detect(context.Background(), filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatal("expected error for missing image")
	}
}
