// Package batch turns a folder of character images into definition
// documents: every image is tagged by a detector, resolved into a persona and
// exported next to the others.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/personaforge/internal/archive"
	"github.com/MrWong99/personaforge/internal/export"
	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/resolve"
	"github.com/MrWong99/personaforge/internal/vision"
)

// ErrNoTags marks an image for which the detector returned no tags.
var ErrNoTags = errors.New("batch: no tags detected")

// DefaultPatterns is used when Config.Patterns is empty.
var DefaultPatterns = []string{"*.png"}

// Config selects the images and where their documents go.
type Config struct {
	InputDir  string
	OutputDir string

	// Patterns are filepath.Match globs relative to InputDir.
	Patterns []string

	// Workers bounds concurrent subjects. Zero or less means one.
	Workers int
}

// Deps are the collaborators of [Run]. Archive and Metrics are optional.
type Deps struct {
	Detector vision.Detector
	Resolver *resolve.Resolver
	Archive  archive.Store
	Metrics  *observe.Metrics
}

// Summary reports the outcome of a run.
type Summary struct {
	Processed int
	Failed    int
	// FailedFiles holds the base names of failed images, sorted.
	FailedFiles []string
}

// Run processes every matching image in cfg.InputDir. Individual failures
// are counted in the summary; Run itself only fails when the input folder
// is unreadable, the output folder cannot be created or ctx is cancelled.
func Run(ctx context.Context, cfg Config, deps Deps) (Summary, error) {
	if deps.Detector == nil || deps.Resolver == nil {
		return Summary{}, errors.New("batch: detector and resolver are required")
	}
	images, err := findImages(cfg)
	if err != nil {
		return Summary{}, err
	}
	if len(images) == 0 {
		slog.Warn("batch: no images found", "dir", cfg.InputDir, "patterns", patterns(cfg))
		return Summary{FailedFiles: []string{}}, nil
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("batch: create output dir: %w", err)
	}
	slog.Info("batch: processing images", "count", len(images), "workers", max(cfg.Workers, 1))

	var (
		mu  sync.Mutex
		sum = Summary{FailedFiles: []string{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))

	for _, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := processOne(gctx, cfg.OutputDir, img, deps)

			status := "ok"
			mu.Lock()
			if err != nil {
				status = "failed"
				sum.Failed++
				sum.FailedFiles = append(sum.FailedFiles, filepath.Base(img))
			} else {
				sum.Processed++
			}
			mu.Unlock()

			if deps.Metrics != nil {
				deps.Metrics.RecordBatchSubject(gctx, status)
			}
			if err != nil {
				slog.Warn("batch: subject failed", "image", img, "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, fmt.Errorf("batch: %w", err)
	}
	slices.Sort(sum.FailedFiles)

	slog.Info("batch: complete", "processed", sum.Processed, "failed", sum.Failed)
	return sum, nil
}

func processOne(ctx context.Context, outDir, img string, deps Deps) error {
	ctx, span := observe.StartSpan(ctx, "batch.subject")
	defer span.End()

	name := SubjectName(img)
	tags, err := deps.Detector.Detect(ctx, img)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	if len(tags) == 0 {
		return ErrNoTags
	}

	p := deps.Resolver.ResolveContext(ctx, tags)
	doc := export.Build(p, name,
		export.WithTitle(name+"'s Journey"),
		export.WithDescription(fmt.Sprintf("%s - a character generated from visual analysis. Tags: %s.", name, strings.Join(p.MatchedTags, ", "))),
	)

	err = export.WriteFile(filepath.Join(outDir, doc.FileName()), doc)
	if deps.Metrics != nil {
		deps.Metrics.RecordExport(ctx, exportStatus(err))
	}
	if err != nil {
		return err
	}
	slog.Debug("batch: exported", "subject", name, "summary", p.Summary)

	if deps.Archive == nil {
		return nil
	}
	data, err := doc.Bytes()
	if err != nil {
		return err
	}
	rec := &archive.Record{Subject: name, DefName: doc.PawnKind.DefName, Tags: tags, Persona: p, Document: data}
	if err := deps.Archive.Save(ctx, rec); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

// SubjectName is the image's base name without extension.
func SubjectName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func findImages(cfg Config) ([]string, error) {
	info, err := os.Stat(cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("batch: input folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("batch: input folder %q is not a directory", cfg.InputDir)
	}

	var out []string
	for _, pat := range patterns(cfg) {
		matches, err := filepath.Glob(filepath.Join(cfg.InputDir, pat))
		if err != nil {
			return nil, fmt.Errorf("batch: pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			if !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func patterns(cfg Config) []string {
	if len(cfg.Patterns) == 0 {
		return DefaultPatterns
	}
	return cfg.Patterns
}

func exportStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
