// Package web serves the assistant's pages, its JSON API and the operational
// endpoints over a chi router.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/SqlAssist/internal/assistant"
	"github.com/JonMunkholm/SqlAssist/internal/observability"
	"github.com/JonMunkholm/SqlAssist/internal/prompt"
	"github.com/JonMunkholm/SqlAssist/internal/schema"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	schemaTimeout   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type Config struct {
	Controller *assistant.Controller
	Catalog    prompt.Catalog
	// Schema is optional; without it the about page omits the live schema.
	Schema        *schema.Cache
	SessionSecret string
	Logger        *slog.Logger
}

type Server struct {
	controller *assistant.Controller
	catalog    prompt.Catalog
	schema     *schema.Cache
	sessions   *sessionStore
	pages      map[string]*template.Template
	logger     *slog.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	pages, err := parsePages("home", "about")
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		controller: cfg.Controller,
		catalog:    cfg.Catalog,
		schema:     cfg.Schema,
		sessions:   newSessionStore(cfg.SessionSecret),
		pages:      pages,
		logger:     logger,
	}, nil
}

var templateFuncs = template.FuncMap{
	"cell": formatValue,
	"join": strings.Join,
}

func parsePages(names ...string) (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		tmpl, err := template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// Routes returns the HTTP handler with all middleware attached.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.LoggingMiddleware(s.logger))
	r.Use(observability.MetricsMiddleware)

	r.Get("/", s.handleHome)
	r.Get("/about", s.handleAbout)
	r.Post("/sample", s.handleSample)
	r.Post("/generate", s.handleGenerate)
	r.Post("/execute", s.handleExecute)
	r.Post("/explanation", s.handleExplanation)
	r.Get("/export.csv", s.handleExportCSV)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleAPIGenerate)
		r.Post("/execute", s.handleAPIExecute)
	})

	r.Get("/schema", s.handleSchema)
	r.Post("/schema/refresh", s.handleSchemaRefresh)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		s.logger.Info("listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) render(w http.ResponseWriter, page string, data any) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("render template", slog.String("page", page), slog.Any("error", err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
