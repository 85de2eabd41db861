// Package server provides the HTTP control surface: program start and
// terminate, the MJPEG stream, the tracking WebSocket and REST resources
// for session history and calibration.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// Controller is the session controller driven by the control endpoints.
type Controller interface {
	api.Controller
	Current() (session.Program, bool)
	Active() *session.Session
}

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Controller Controller
	Frames     *FrameHub
	Events     *EventHub
	// Settings validates uploaded calibration profiles.
	Settings config.Config
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Controller != nil {
		control := api.NewControlHandler(s.config.Controller)
		s.mux.HandleFunc("/api/start", control.Start)
		s.mux.HandleFunc("/api/terminate", control.Terminate)
	}

	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
		s.mux.Handle("/api/calibration/", api.NewCalibrationHandler(s.config.Store, s.config.Settings))
	}

	if s.config.Frames != nil {
		var onIdle func()
		if s.config.Controller != nil && s.config.Settings.Server.StopOnDisconnect {
			onIdle = s.stopUnwatched
		}
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames, onIdle))
	}

	if s.config.Events != nil {
		s.mux.Handle("/ws/tracking", NewTrackingHandler(s.config.Events))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface. Every origin is allowed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// stopUnwatched terminates the running session once nobody watches its stream.
func (s *Server) stopUnwatched() {
	c := s.config.Controller
	if c.Active() == nil {
		return
	}
	p, ok := c.Current()
	if !ok {
		return
	}
	if err := c.Terminate(string(p)); err != nil {
		log.Printf("server: stop %s after stream disconnect: %v", p, err)
		return
	}
	log.Printf("server: stopped %s, last stream viewer left", p)
}

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Program string `json:"program,omitempty"`
	State   string `json:"state,omitempty"`
	Score   *int   `json:"score,omitempty"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).String(),
	}
	if c := s.config.Controller; c != nil {
		if p, ok := c.Current(); ok {
			response.Program = string(p)
			response.State = "stopped"
		}
		if active := c.Active(); active != nil {
			response.State = active.State().String()
			if active.Program.Game() {
				score := active.Stats().Score
				response.Score = &score
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
