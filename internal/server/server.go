// Package server provides the HTTP server for browsing and running FlowState analyses.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/flowstate/internal/analysis"
	"github.com/ayusman/flowstate/internal/server/api"
	"github.com/ayusman/flowstate/internal/store"
	"github.com/ayusman/flowstate/internal/viewer"
)

// Config holds the server configuration.
type Config struct {
	// StaticDir is served at / and receives viewer data for analyses
	// created through the API.
	StaticDir      string
	Store          *store.Store
	Analyzer       *analysis.Analyzer
	ViewerSettings viewer.Settings
}

// Server represents the HTTP server for the FlowState application.
type Server struct {
	config   Config
	router   *mux.Router
	handler  http.Handler
	hub      *EventHub
	analyses *api.AnalysesHandler
	start    time.Time
	http     *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		hub:    NewEventHub(),
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = withCORS(s.router)
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/api/events", s.hub)

	// Register analysis and settings API handlers if Store is configured
	if s.config.Store != nil {
		var analyzer api.Analyzer
		if s.config.Analyzer != nil {
			s.config.Analyzer.OnProgress(s.hub.PublishProgress)
			analyzer = s.config.Analyzer
		}

		s.analyses = api.NewAnalysesHandler(s.config.Store, analyzer)
		s.analyses.SetPublisher(s.hub)
		if s.config.StaticDir != "" {
			s.analyses.SetViewerOutput(s.config.StaticDir, s.config.ViewerSettings)
		}
		s.analyses.RegisterRoutes(s.router)

		api.NewSettingsHandler(s.config.Store).RegisterRoutes(s.router)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.router.PathPrefix("/").Handler(fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Hub returns the event hub used for WebSocket broadcasts.
func (s *Server) Hub() *EventHub {
	return s.hub
}

// Analyses returns the analysis API handler, or nil without a store.
func (s *Server) Analyses() *api.AnalysesHandler {
	return s.analyses
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns
// nil after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
