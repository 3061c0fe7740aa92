package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/personaforge/internal/api"
	"github.com/MrWong99/personaforge/internal/archive"
	"github.com/MrWong99/personaforge/internal/config"
	"github.com/MrWong99/personaforge/internal/health"
	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/resolve"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, env *environment, args []string) int {
	fs := newFlagSet(env, "serve")
	addr := fs.String("addr", env.cfg.Server.ListenAddr, "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg := env.cfg

	slog.Info("personaforge starting",
		"config", env.configPath,
		"listen_addr", *addr,
		"log_level", cfg.Server.LogLevel,
		"vision", cfg.Vision.Provider,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics {
		provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: cfg.Telemetry.ServiceName})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(sctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()
		metricsHandler = provider.Handler()
	}
	m := observe.DefaultMetrics()

	// ── Rules ─────────────────────────────────────────────────────────────────
	ruleSrc := newRuleSource(cfg.Rules, m)
	defer ruleSrc.close()
	store := ruleSrc.store

	// ── Archive and detector ──────────────────────────────────────────────────
	arch, closeArchive, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		slog.Error("failed to open archive", "err", err)
		return 1
	}
	defer closeArchive()

	det, err := buildDetector(cfg.Vision, newRegistry(), store, m)
	if err != nil {
		slog.Error("failed to build detector", "err", err)
		return 1
	}

	var checkers []health.Checker
	if p, ok := arch.(archive.Pinger); ok {
		checkers = append(checkers, health.Ping("archive", p))
	}

	srv := api.New(api.Deps{
		Rules:          store,
		Resolver:       newResolver(cfg.Rules, store, m),
		Detector:       det,
		Archive:        arch,
		Metrics:        m,
		MetricsHandler: metricsHandler,
		Checkers:       checkers,
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	if env.configPath != "" {
		cw, err := config.NewWatcher(env.configPath, func(old, new *config.Config) {
			applyConfigChange(env, srv, ruleSrc, m, config.Diff(old, new), new)
		})
		if err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
		defer cw.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	httpSrv := api.NewHTTPServer(*addr, srv.Handler())
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	slog.Info("server ready, press Ctrl+C to shut down", "addr", *addr, "rules", store.Len())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

type resolverSetter interface {
	SetResolver(r *resolve.Resolver)
}

// applyConfigChange applies the hot-reloadable part of a config change.
func applyConfigChange(env *environment, srv resolverSetter, src *ruleSource, m *observe.Metrics, d config.ConfigDiff, next *config.Config) {
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged {
		env.level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RulesChanged {
		src.switchTo(d.NewRulesPath)
	}
	if d.RulesChanged || d.SuggestChanged || d.TieBreakChanged {
		srv.SetResolver(newResolver(next.Rules, src.store, m))
	}
	if len(d.RestartNeeded) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartNeeded)
	}
}
