package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-landmatrix/internal/api"
	"github.com/joeblew999/plat-landmatrix/internal/api/viewer"
	"github.com/joeblew999/plat-landmatrix/internal/db"
	"github.com/joeblew999/plat-landmatrix/internal/humastar"
	"github.com/joeblew999/plat-landmatrix/internal/loader"
	"github.com/joeblew999/plat-landmatrix/internal/region"
	"github.com/joeblew999/plat-landmatrix/internal/service"
	"github.com/joeblew999/plat-landmatrix/internal/state"
	"github.com/joeblew999/plat-landmatrix/internal/templates"
	"github.com/joeblew999/plat-landmatrix/internal/wfs"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and fragment overrides

	// GeoServerURL is the land_matrix workspace, e.g. http://localhost:8080/geoserver/land_matrix.
	GeoServerURL string
	Sources      []loader.Source
	RegionsFile  string
	MaxFeatures  int
	// SessionIdle is how long an unused viewer session survives.
	SessionIdle time.Duration
	// NoDB skips opening the DuckDB snapshot store.
	NoDB   bool
	Logger *zap.Logger
}

// Server is the land deal map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	sessions *state.Sessions
	bus      *service.EventBus
	renderer *templates.Renderer
	links    *humastar.Links
	logger   *zap.Logger
}

// New wires the services and routes. Deals are not loaded until Load.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	regions := region.Default()
	if cfg.RegionsFile != "" {
		t, err := region.LoadFile(cfg.RegionsFile)
		if err != nil {
			return nil, fmt.Errorf("loading regions: %w", err)
		}
		regions = t
	}

	fragmentsDir := ""
	if cfg.WebDir != "" {
		fragmentsDir = filepath.Join(cfg.WebDir, "templates", "fragments")
	}
	renderer, err := templates.New(fragmentsDir)
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	mux := http.NewServeMux()
	links := humastar.NewLinks("/health")

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-landmatrix API", "1.0.0")
	humaConfig.Info.Description = "Agricultural land deals map: filtered deals, size legend, country chart and map layers."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		bus:      service.NewEventBus(),
		renderer: renderer,
		links:    links,
		logger:   logger,
	}

	if !cfg.NoDB {
		conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "landmatrix", Logger: logger})
		if err != nil {
			logger.Warn("duckdb unavailable, snapshots disabled", zap.Error(err))
		} else {
			s.db = conn
		}
	}

	deals := service.NewDealService(regions, s.bus)
	sources := service.NewSourceService(cfg.DataDir)
	s.services = &api.Services{
		Deals:   deals,
		Layers:  service.NewLayerService(cfg.DataDir, service.DefaultLayers(cfg.GeoServerURL), s.bus, logger),
		Sources: sources,
		Loader: loader.New(loader.Config{
			WFS: wfs.Config{
				BaseURL:     strings.TrimRight(cfg.GeoServerURL, "/") + "/ows",
				MaxFeatures: cfg.MaxFeatures,
			},
			Files:   sources,
			DB:      s.database,
			Regions: regions,
			Logger:  logger,
		}),
		DealSources: cfg.Sources,
		DB:          s.db,
		Options:     state.DefaultOptions,
		Renderer:    renderer,
		Logger:      logger,
	}
	s.sessions = state.NewSessions(deals, s.bus, state.DefaultOptions)

	s.routes()
	links.Build(humaAPI, "viewer")
	return s, nil
}

func (s *Server) database() (*sql.DB, error) {
	if s.db == nil {
		return nil, fmt.Errorf("duckdb not available")
	}
	return s.db, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the wired services, e.g. for CLI subcommands.
func (s *Server) Services() *api.Services {
	return s.services
}

// Load fills the deal collection from the configured sources. When they fail
// and a snapshot exists, the snapshot is used instead; a successful load from
// the sources refreshes the snapshot.
func (s *Server) Load(ctx context.Context) error {
	svc := s.services
	res, err := svc.Loader.Reload(ctx, svc.Deals, svc.DealSources)
	if err == nil {
		s.snapshot(ctx, res)
		return nil
	}
	if s.db == nil || usesSnapshot(svc.DealSources) {
		return err
	}

	s.logger.Warn("deal sources failed, falling back to the duckdb snapshot", zap.Error(err))
	if _, serr := svc.Loader.Reload(ctx, svc.Deals, []loader.Source{{Kind: loader.KindDuckDB}}); serr != nil {
		return fmt.Errorf("%w (snapshot: %v)", err, serr)
	}
	return nil
}

func (s *Server) snapshot(ctx context.Context, res loader.Result) {
	if s.db == nil || usesSnapshot(s.services.DealSources) {
		return
	}
	if err := db.SaveDeals(ctx, s.db, res.Records); err != nil {
		s.logger.Warn("saving deal snapshot", zap.Error(err))
		return
	}
	s.logger.Info("saved deal snapshot", zap.Int("records", len(res.Records)))
}

func usesSnapshot(sources []loader.Source) bool {
	for _, src := range sources {
		if src.Kind == loader.KindDuckDB {
			return true
		}
	}
	return false
}

// Run maintains the viewer sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.sessions.Run(ctx, s.config.SessionIdle)
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return db.Close()
}

func (s *Server) routes() {
	// REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.services.Deals).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	// Viewer SSE routes using Huma + Datastar SDK
	viewer.NewHandler(s.sessions, s.services.Deals, s.bus, s.renderer, state.DefaultOptions, s.logger).
		RegisterRoutes(s.humaAPI)

	// Static files
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.For(s.links.Entry) {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-landmatrix",
		"status":  "running",
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	if _, err := os.Stat(templatePath); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, templatePath)
}
