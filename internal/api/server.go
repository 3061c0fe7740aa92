// Package api exposes persona resolution and export over HTTP.
//
//	POST /v1/resolve          {"tags": [...]} → persona JSON
//	POST /v1/export           {"tags", "name", "title", "description"} → definition XML
//	POST /v1/analyze          multipart "image" → detected tags and persona JSON
//	GET  /v1/tags             known tags
//	GET  /v1/personas         archived personas, newest first
//	GET  /v1/personas/{id}    one archived persona
//	GET  /healthz, /readyz    probes
//	GET  /metrics             Prometheus scrape endpoint
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/personaforge/internal/archive"
	"github.com/MrWong99/personaforge/internal/export"
	"github.com/MrWong99/personaforge/internal/health"
	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/resolve"
	"github.com/MrWong99/personaforge/internal/rules"
	"github.com/MrWong99/personaforge/internal/vision"
)

// maxUpload caps /v1/analyze request bodies.
const maxUpload = 20 << 20

// Deps are the collaborators of [Server]. Rules and Resolver are required.
type Deps struct {
	Rules    *rules.Store
	Resolver *resolve.Resolver

	// Detector enables /v1/analyze.
	Detector vision.Detector

	// Archive enables /v1/personas and archiving of exports.
	Archive archive.Store

	Metrics *observe.Metrics

	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler

	// Checkers are added to /readyz next to the rules check.
	Checkers []health.Checker
}

// Server is the HTTP API.
type Server struct {
	deps     Deps
	resolver atomic.Pointer[resolve.Resolver]
	health   *health.Handler
}

// New returns a server for deps.
func New(deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	s := &Server{
		deps:   deps,
		health: health.New(append([]health.Checker{health.RulesLoaded(deps.Rules)}, deps.Checkers...)...),
	}
	s.resolver.Store(deps.Resolver)
	return s
}

// SetResolver swaps the resolver used by subsequent requests.
func (s *Server) SetResolver(r *resolve.Resolver) {
	s.resolver.Store(r)
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/resolve", s.handleResolve)
	mux.HandleFunc("POST /v1/export", s.handleExport)
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /v1/tags", s.handleTags)
	mux.HandleFunc("GET /v1/personas", s.handleListPersonas)
	mux.HandleFunc("GET /v1/personas/{id}", s.handleGetPersona)
	s.health.Register(mux)
	if s.deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.deps.MetricsHandler)
	}
	return observe.Middleware(s.deps.Metrics)(mux)
}

// NewHTTPServer wraps h with the timeouts used in production.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

type resolveRequest struct {
	Tags []string `json:"tags"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.resolver.Load().ResolveContext(r.Context(), req.Tags))
}

type exportRequest struct {
	Tags        []string `json:"tags"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	p := s.resolver.Load().ResolveContext(ctx, req.Tags)
	doc := export.Build(p, req.Name, export.WithTitle(req.Title), export.WithDescription(req.Description))
	data, err := doc.Bytes()
	s.deps.Metrics.RecordExport(ctx, statusOf(err))
	if err != nil {
		observe.Logger(ctx).Error("api: export failed", "name", req.Name, "err", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	if s.deps.Archive != nil {
		rec := &archive.Record{Subject: req.Name, DefName: doc.PawnKind.DefName, Tags: req.Tags, Persona: p, Document: data}
		if err := s.deps.Archive.Save(ctx, rec); err != nil {
			observe.Logger(ctx).Warn("api: archive failed", "name", req.Name, "err", err)
		} else {
			w.Header().Set("X-Persona-ID", rec.ID.String())
		}
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type analyzeResponse struct {
	Tags    []string        `json:"tags"`
	Persona resolve.Persona `json:"persona"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Detector == nil {
		http.Error(w, "image analysis is not configured", http.StatusNotImplemented)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "multipart field image is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "personaforge-*"+filepath.Ext(header.Filename))
	if err != nil {
		http.Error(w, "cannot store upload", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		http.Error(w, "cannot store upload", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	tags, err := s.deps.Detector.Detect(ctx, tmp.Name())
	if err != nil {
		observe.Logger(ctx).Warn("api: detection failed", "file", header.Filename, "err", err)
		http.Error(w, "detection failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Tags: tags, Persona: s.resolver.Load().ResolveContext(ctx, tags)})
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tags": s.deps.Rules.AllTags()})
}

type personaSummary struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"subject"`
	DefName   string    `json:"defName"`
	Tags      []string  `json:"tags"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		http.Error(w, "archive is not configured", http.StatusNotImplemented)
		return
	}
	opts := archive.ListOptions{Subject: r.URL.Query().Get("subject")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}
	recs, err := s.deps.Archive.List(r.Context(), opts)
	if err != nil {
		observe.Logger(r.Context()).Error("api: list personas", "err", err)
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	out := make([]personaSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summarize(rec))
	}
	writeJSON(w, http.StatusOK, map[string][]personaSummary{"personas": out})
}

type personaDetail struct {
	personaSummary
	Persona  resolve.Persona `json:"persona"`
	Document string          `json:"document"`
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		http.Error(w, "archive is not configured", http.StatusNotImplemented)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid persona id", http.StatusBadRequest)
		return
	}
	rec, err := s.deps.Archive.Get(r.Context(), id)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		http.Error(w, "persona not found", http.StatusNotFound)
		return
	case err != nil:
		observe.Logger(r.Context()).Error("api: get persona", "id", id, "err", err)
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, personaDetail{personaSummary: summarize(*rec), Persona: rec.Persona, Document: string(rec.Document)})
}

func summarize(rec archive.Record) personaSummary {
	return personaSummary{
		ID:        rec.ID,
		Subject:   rec.Subject,
		DefName:   rec.DefName,
		Tags:      rec.Tags,
		Summary:   rec.Persona.Summary,
		CreatedAt: rec.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
