package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/personaforge/internal/batch"
	"github.com/MrWong99/personaforge/internal/export"
	"github.com/MrWong99/personaforge/internal/mcpserver"
	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/resolve"
	"github.com/MrWong99/personaforge/internal/rules"
)

func newFlagSet(env *environment, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("personaforge "+name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	return fs
}

func runResolve(ctx context.Context, env *environment, args []string) int {
	fs := newFlagSet(env, "resolve")
	tagList := fs.String("tags", "", "comma-separated tags")
	name := fs.String("name", "", "character name for the exported document")
	out := fs.String("out", "", "write the definition document to this file (requires -name)")
	asJSON := fs.Bool("json", false, "print the resolved persona as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out != "" && strings.TrimSpace(*name) == "" {
		fmt.Fprintln(env.stderr, "personaforge resolve: -out requires -name")
		return 2
	}

	m := observe.DefaultMetrics()
	store := openRules(env.cfg.Rules, m)
	p := newResolver(env.cfg.Rules, store, m).ResolveContext(ctx, splitTags(*tagList))

	if *asJSON {
		enc := json.NewEncoder(env.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(p); err != nil {
			slog.Error("failed to encode persona", "err", err)
			return 1
		}
	} else {
		printPersona(env, p)
	}

	if *out != "" {
		doc := export.Build(p, *name)
		if err := export.WriteFile(*out, doc); err != nil {
			slog.Error("export failed", "err", err)
			return 1
		}
		slog.Info("persona exported", "path", *out, "def_name", doc.PawnKind.DefName)
	}
	return 0
}

func runBatch(ctx context.Context, env *environment, args []string) int {
	fs := newFlagSet(env, "batch")
	in := fs.String("in", env.cfg.Batch.InputDir, "folder with input images")
	out := fs.String("out", env.cfg.Batch.OutputDir, "folder for generated documents")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := observe.DefaultMetrics()
	store := openRules(env.cfg.Rules, m)
	det, err := buildDetector(env.cfg.Vision, newRegistry(), store, m)
	if err != nil {
		slog.Error("failed to build detector", "err", err)
		return 1
	}

	deps := batch.Deps{Detector: det, Resolver: newResolver(env.cfg.Rules, store, m), Metrics: m}
	if env.cfg.Archive.PostgresDSN != "" {
		arch, closeArchive, err := openArchive(ctx, env.cfg.Archive)
		if err != nil {
			slog.Error("failed to open archive", "err", err)
			return 1
		}
		defer closeArchive()
		deps.Archive = arch
	}

	sum, err := batch.Run(ctx, batch.Config{
		InputDir:  *in,
		OutputDir: *out,
		Patterns:  env.cfg.Batch.Patterns,
		Workers:   env.cfg.Batch.Workers,
	}, deps)
	if err != nil {
		slog.Error("batch failed", "err", err)
		return 1
	}

	fmt.Fprintf(env.stdout, "Processed: %d, Failed: %d\n", sum.Processed, sum.Failed)
	for _, f := range sum.FailedFiles {
		fmt.Fprintf(env.stdout, "  failed: %s\n", f)
	}
	if sum.Failed > 0 {
		return 1
	}
	return 0
}

func runRulesExport(_ context.Context, env *environment, args []string) int {
	fs := newFlagSet(env, "rules-export")
	out := fs.String("out", "", "output file; .yaml/.yml writes YAML, anything else JSON (default: JSON on stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store := openRules(env.cfg.Rules, observe.DefaultMetrics())
	var err error
	if *out == "" {
		err = store.Export(env.stdout, rules.FormatJSON)
	} else {
		err = store.ExportFile(*out)
	}
	if err != nil {
		slog.Error("rules export failed", "err", err)
		return 1
	}
	if *out != "" {
		slog.Info("rules exported", "path", *out, "rules", store.Len())
	}
	return 0
}

func runMCP(ctx context.Context, env *environment, args []string) int {
	fs := newFlagSet(env, "mcp")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := observe.DefaultMetrics()
	store := openRules(env.cfg.Rules, m)
	srv := mcpserver.New(store, newResolver(env.cfg.Rules, store, m))
	slog.Info("mcp server listening on stdio", "rules", store.Len())
	if err := srv.Run(ctx); err != nil {
		slog.Error("mcp server stopped", "err", err)
		return 1
	}
	return 0
}

// demoTagSets are resolved by the demo command.
var demoTagSets = [][]string{
	{"angry", "bionic_eye", "red_jacket", "scar"},
	{"kind", "halo", "nature_background"},
	{"cold", "cybernetic", "military_uniform"},
}

func runDemo(ctx context.Context, env *environment, args []string) int {
	fs := newFlagSet(env, "demo")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := observe.DefaultMetrics()
	store := openRules(env.cfg.Rules, m)
	r := newResolver(env.cfg.Rules, store, m)

	for _, tags := range demoTagSets {
		fmt.Fprintf(env.stdout, "Input tags: %s\n", strings.Join(tags, ", "))
		printPersona(env, r.ResolveContext(ctx, tags))
		fmt.Fprintln(env.stdout, strings.Repeat("-", 40))
	}

	p := r.ResolveContext(ctx, []string{"angry", "bionic_eye", "scar"})
	doc := export.Build(p, "Test Sideria",
		export.WithTitle("The Awakened One"),
		export.WithDescription("A mysterious being who emerged from the void, bearing scars of countless battles."),
	)
	fmt.Fprintf(env.stdout, "\n%s:\n", doc.FileName())
	if err := doc.Encode(env.stdout); err != nil {
		slog.Error("export failed", "err", err)
		return 1
	}
	return 0
}

func printPersona(env *environment, p resolve.Persona) {
	fmt.Fprintf(env.stdout, "  Matched:   %s\n", strings.Join(p.MatchedTags, ", "))
	if len(p.UnmatchedTags) > 0 {
		fmt.Fprintf(env.stdout, "  Unmatched: %s\n", strings.Join(p.UnmatchedTags, ", "))
	}
	fmt.Fprintf(env.stdout, "  Traits:    %s\n", strings.Join(p.TraitDefs(), ", "))
	fmt.Fprintf(env.stdout, "  Summary:   %s\n", p.Summary)
	for _, tag := range p.UnmatchedTags {
		if s, ok := p.Suggestions[tag]; ok {
			fmt.Fprintf(env.stdout, "  Did you mean %q for %q?\n", s, tag)
		}
	}
}

func splitTags(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	return strings.Split(list, ",")
}
