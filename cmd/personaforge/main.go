// Command personaforge turns visual tags into RimWorld character definitions.
//
// Usage:
//
//	personaforge [-config path] <command> [flags]
//
// Commands: resolve, batch, rules-export, serve, mcp, demo.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/personaforge/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *environment, args []string) int
}

var commands = []command{
	{"resolve", "resolve tags into a persona, optionally exporting it", runResolve},
	{"batch", "detect, resolve and export every image in a folder", runBatch},
	{"rules-export", "write the active rule set to a JSON or YAML file", runRulesExport},
	{"serve", "serve the HTTP API", runServe},
	{"mcp", "serve the MCP tools over stdio", runMCP},
	{"demo", "resolve the sample tag sets and print an example document", runDemo},
}

// environment is shared by every command.
type environment struct {
	cfg        *config.Config
	configPath string
	level      *slog.LevelVar
	stdout     io.Writer
	stderr     io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("personaforge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file (default: built-in defaults)")
	fs.Usage = func() { usage(fs, stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "personaforge: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := &environment{cfg: cfg, configPath: *configPath, level: level, stdout: stdout, stderr: stderr}
	name, rest := fs.Arg(0), fs.Args()[1:]
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, env, rest)
		}
	}
	fmt.Fprintf(stderr, "personaforge: unknown command %q\n", name)
	fs.Usage()
	return 2
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: personaforge [-config path] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-13s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fs.PrintDefaults()
}

// loadConfig reads path, or starts from the defaults with environment
// overrides when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", path)
		}
		return cfg, err
	}
	cfg := config.Default()
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
