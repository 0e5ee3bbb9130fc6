package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeblew999/quakemap/internal/api"
	"github.com/joeblew999/quakemap/internal/api/live"
	"github.com/joeblew999/quakemap/internal/config"
	"github.com/joeblew999/quakemap/internal/db"
	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/humastar"
	"github.com/joeblew999/quakemap/internal/observability"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and templates
}

// Server is the quakemap HTTP server.
type Server struct {
	config   Config
	app      *config.Config
	logger   *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	renderer *templates.Renderer
	metrics  *observability.Metrics
	registry *prometheus.Registry

	linksMu sync.RWMutex
	links   humastar.Links
}

// New creates a new quakemap server. A database that cannot be opened
// disables the hover journal; missing templates disable the viewer page.
func New(cfg Config, app *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = observability.Discard()
	}
	doc, err := app.Document()
	if err != nil {
		return nil, fmt.Errorf("load style document: %w", err)
	}

	s := &Server{
		config:   cfg,
		app:      app,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: prometheus.NewRegistry(),
	}
	s.metrics = observability.NewMetricsFor(s.registry)
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("quakemap API", "1.0.0")
	humaConfig.Info.Description = "Earthquake, building and US state map widgets driven over Datastar SSE."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer(s.currentLinks))
	s.humaAPI = humago.New(s.mux, humaConfig)

	var journal *db.Journal
	if conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "quakemap"}); err != nil {
		logger.Warn("duckdb unavailable, hover journal disabled", "error", err)
	} else {
		j := db.NewJournal(conn, nil)
		if err := j.Init(context.Background()); err != nil {
			logger.Warn("hover journal init failed", "error", err)
			conn.Close()
		} else {
			s.db = conn
			journal = j
		}
	}

	bus := service.NewEventBus()
	styles := service.NewStyleService(cfg.DataDir, doc, bus)
	var svcJournal service.Journal
	if journal != nil {
		svcJournal = journal
	}
	s.services = &api.Services{
		Widgets: service.NewWidgetService(service.WidgetOptions{
			Engine: engine.Options{
				Style:       app.MapStyle,
				Center:      app.MapCenter,
				Zoom:        app.MapZoom,
				AccessToken: app.MapboxToken,
			},
			Styles:  styles,
			IdleTTL: app.WidgetIdleTTL,
			Journal: svcJournal,
			Bus:     bus,
			Metrics: s.metrics,
			Logger:  logger,
		}),
		Styles:          styles,
		Sources:         service.NewSourceService(cfg.DataDir),
		Journal:         journal,
		TokenConfigured: app.TokenConfigured(),
	}

	if cfg.WebDir != "" {
		templatesDir := filepath.Join(cfg.WebDir, "templates")
		if r, err := templates.New(templatesDir); err == nil {
			s.renderer = r
			logger.Info("loaded templates", "dir", templatesDir)
		} else {
			logger.Warn("templates not loaded, viewer disabled", "dir", templatesDir, "error", err)
		}
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// API returns the Huma API.
func (s *Server) API() huma.API { return s.humaAPI }

// Services returns the services behind the API.
func (s *Server) Services() *api.Services { return s.services }

// RunSweeper removes idle widgets until ctx is done.
func (s *Server) RunSweeper(ctx context.Context) {
	interval := max(s.app.WidgetIdleTTL/4, time.Second)
	s.services.Widgets.RunSweeper(ctx, interval)
}

// Close unmounts every widget and closes the database.
func (s *Server) Close() error {
	s.services.Widgets.Shutdown()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) currentLinks() humastar.Links {
	s.linksMu.RLock()
	defer s.linksMu.RUnlock()
	return s.links
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.app.TokenConfigured(), api.MapInfo{
		Style:  s.app.MapStyle,
		Center: [2]float64{s.app.MapCenter.Lon(), s.app.MapCenter.Lat()},
		Zoom:   s.app.MapZoom,
	}).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.services.Journal).RegisterRoutes(s.humaAPI)

	// Datastar SSE streams
	live.NewCommandHandler(s.services.Widgets, s.metrics, s.logger).RegisterRoutes(s.humaAPI)
	live.NewEventHandler(s.services.Widgets, s.renderer).RegisterRoutes(s.humaAPI)

	s.linksMu.Lock()
	s.links = humastar.AutoLinks(s.humaAPI, "live")
	s.linksMu.Unlock()

	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Static files and local GeoJSON sources
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	s.mux.Handle(service.SourceURLPrefix, http.StripPrefix(service.SourceURLPrefix, s.handleSources(s.services.Sources.SourcesDir())))

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service":         "quakemap",
		"status":          "running",
		"tokenConfigured": s.app.TokenConfigured(),
		"widgets":         len(s.services.Widgets.List()),
	})
}

// ViewerData feeds the viewer page template.
type ViewerData struct {
	Title    string
	WidgetID string
	// Container is the DOM id the engine renders into.
	Container string
	Error     string
}

// handleViewer mounts a fresh widget and serves the page hosting it. Each
// page load is its own widget; the page unmounts it when it goes away.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		http.Error(w, "viewer templates not loaded", http.StatusServiceUnavailable)
		return
	}
	data := ViewerData{Title: "Earthquakes, buildings and US states"}
	status := http.StatusOK

	if !s.app.TokenConfigured() {
		data.Error = api.ErrTokenMissing
		status = http.StatusServiceUnavailable
	} else {
		sess, err := s.services.Widgets.Create("")
		if err != nil {
			s.logger.Error("create widget", "error", err)
			data.Error = err.Error()
			status = http.StatusInternalServerError
		} else {
			data.WidgetID = sess.ID
			data.Container = sess.Remote.Options().Container
		}
	}

	html, err := s.renderer.Render("viewer", data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(html))
}

func (s *Server) handleSources(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if filepath.Ext(r.URL.Path) == ".geojson" {
			w.Header().Set("Content-Type", "application/geo+json")
		}
		http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
	})
}
