package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/personaforge/internal/archive"
	"github.com/MrWong99/personaforge/internal/config"
	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/resilience"
	"github.com/MrWong99/personaforge/internal/resolve"
	"github.com/MrWong99/personaforge/internal/rules"
	"github.com/MrWong99/personaforge/internal/tagmatch"
	"github.com/MrWong99/personaforge/internal/vision"
	visionopenai "github.com/MrWong99/personaforge/internal/vision/openai"
)

// openRules builds the rule store from cfg, keeping the rules gauge current.
func openRules(cfg config.RulesConfig, m *observe.Metrics) *rules.Store {
	hook := rules.WithSwapHook(func(rs *rules.RuleSet) {
		m.SetRulesLoaded(context.Background(), len(rs.Rules))
	})
	if cfg.Path == "" {
		return rules.New(hook)
	}
	return rules.Open(cfg.Path, hook)
}

// ruleSource owns the served rule store and, when watching is enabled, the
// watcher of the current rule file.
type ruleSource struct {
	store *rules.Store
	cfg   config.RulesConfig

	mu      sync.Mutex
	watcher *rules.Watcher
}

// newRuleSource opens the store from cfg and starts watching cfg.Path when
// cfg.Watch is set. A missing or malformed file leaves the defaults active.
func newRuleSource(cfg config.RulesConfig, m *observe.Metrics) *ruleSource {
	src := &ruleSource{store: openRules(cfg, m), cfg: cfg}
	src.mu.Lock()
	src.watchLocked()
	src.mu.Unlock()
	return src
}

// switchTo replaces the rule table with the source at path, or with the
// defaults when path is empty, and moves the watcher to the new file.
func (s *ruleSource) switchTo(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.Path = path
	if path == "" {
		s.store.Replace(rules.Defaults())
		slog.Info("rules path cleared, using defaults")
	} else if n, err := s.store.ReplaceFile(path); err != nil {
		slog.Warn("failed to load new rules file, keeping current rules", "path", path, "err", err)
	} else {
		slog.Info("rules file loaded", "path", path, "rules", n)
	}
	s.watchLocked()
}

func (s *ruleSource) watchLocked() {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	if !s.cfg.Watch || s.cfg.Path == "" {
		return
	}
	path := s.cfg.Path
	s.watcher = rules.NewWatcher(path, s.store,
		rules.WithInterval(s.cfg.WatchInterval),
		rules.WithReloadHook(func(rs *rules.RuleSet) {
			slog.Info("rules reloaded", "path", path, "rules", len(rs.Rules))
		}),
	)
}

// close stops the watcher, if any.
func (s *ruleSource) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
}

func newResolver(cfg config.RulesConfig, store *rules.Store, m *observe.Metrics) *resolve.Resolver {
	opts := []resolve.Option{resolve.WithMetrics(m)}
	if cfg.Suggest {
		opts = append(opts, resolve.WithSuggester(tagmatch.New(store)))
	}
	if cfg.StableTieBreak {
		opts = append(opts, resolve.WithStableTieBreak())
	}
	return resolve.New(store, opts...)
}

// ── Detector wiring ───────────────────────────────────────────────────────────

func newRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterDetector(config.VisionSimulate, func(cfg config.VisionConfig, known vision.Vocabulary) (vision.Detector, error) {
		return vision.NewSimulator(known, cfg.Seed), nil
	})
	reg.RegisterDetector(config.VisionOpenAI, func(cfg config.VisionConfig, known vision.Vocabulary) (vision.Detector, error) {
		opts := []visionopenai.Option{visionopenai.WithVocabulary(known)}
		if cfg.Model != "" {
			opts = append(opts, visionopenai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, visionopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, visionopenai.WithTimeout(cfg.Timeout))
		}
		return visionopenai.New(cfg.APIKey, opts...)
	})
	return reg
}

// buildDetector creates the configured detector, optionally backed by the
// simulator, and instruments it.
func buildDetector(cfg config.VisionConfig, reg *config.Registry, known vision.Vocabulary, m *observe.Metrics) (vision.Detector, error) {
	primary, err := reg.CreateDetector(cfg, known)
	if err != nil {
		return nil, err
	}
	name := string(cfg.Provider)
	det := vision.Observed(name, primary, m)
	if cfg.FallbackToSimulation && cfg.Provider != config.VisionSimulate {
		sim := vision.Observed(string(config.VisionSimulate), vision.NewSimulator(known, cfg.Seed), m)
		det = vision.NewFallback(name, det, resilience.BreakerConfig{}).Add(string(config.VisionSimulate), sim)
		slog.Info("vision fallback enabled", "primary", name, "fallback", config.VisionSimulate)
	}
	return det, nil
}

// ── Archive wiring ────────────────────────────────────────────────────────────

// openArchive returns the Postgres archive when a DSN is configured and an
// in-memory archive otherwise. The returned func releases the pool.
func openArchive(ctx context.Context, cfg config.ArchiveConfig) (archive.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		return archive.NewMemStore(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect archive: %w", err)
	}
	store := archive.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	slog.Info("persona archive ready", "backend", "postgres")
	return store, pool.Close, nil
}
