// Package control exposes the runtime command channel: reload the
// classifier ensemble, flip fusion debugging and inspect what the
// watcher is tracking, all without restarting it.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kozaktomas/facewatch/internal/classifier"
	"github.com/kozaktomas/facewatch/internal/recognize"
)

const errInvalidRequestBody = "invalid request body"

// Tracker reports the identities currently being debounced.
type Tracker interface {
	Tracked() []string
}

// Options wires the server dependencies.
type Options struct {
	Addr    string
	Store   *classifier.Store
	Engine  *recognize.Engine
	Tracker Tracker
	Log     *zap.Logger
}

// Server is the HTTP control channel. Every command request gets
// exactly one JSON reply; failures are replied as payloads.
type Server struct {
	store      *classifier.Store
	engine     *recognize.Engine
	tracker    Tracker
	log        *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
	started    time.Time
}

// NewServer creates the control server listening on opts.Addr.
func NewServer(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	r := chi.NewRouter()
	s := &Server{
		store:   opts.Store,
		engine:  opts.Engine,
		tracker: opts.Tracker,
		log:     opts.Log,
		router:  r,
		started: time.Now(),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/command", s.handleCommand)

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info("control server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down control server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

type commandRequest struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type reloadResult struct {
	Classifiers int      `json:"classifiers"`
	Classes     []string `json:"classes"`
}

type statusResult struct {
	Uptime      string   `json:"uptime"`
	Classifiers int      `json:"classifiers"`
	Classes     []string `json:"classes"`
	Tracked     []string `json:"tracked"`
	Debug       bool     `json:"debug"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFail(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	s.log.Debug("control command", zap.String("command", req.Command))

	switch req.Command {
	case "reload":
		s.handleReload(w)
	case "status":
		s.handleStatus(w)
	case "debug":
		s.handleDebug(w, req.Data)
	default:
		respondFail(w, http.StatusBadRequest, fmt.Sprintf("unknown command %q", req.Command))
	}
}

func (s *Server) handleReload(w http.ResponseWriter) {
	if err := s.store.Reload(); err != nil {
		s.log.Error("ensemble reload failed", zap.Error(err))
		respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ensemble := s.store.Current()
	s.log.Info("ensemble reloaded", zap.Int("classifiers", ensemble.Len()))
	respondOK(w, reloadResult{
		Classifiers: ensemble.Len(),
		Classes:     ensemble.Classes(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter) {
	ensemble := s.store.Current()
	tracked := []string{}
	if s.tracker != nil {
		tracked = s.tracker.Tracked()
	}
	respondOK(w, statusResult{
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Classifiers: ensemble.Len(),
		Classes:     ensemble.Classes(),
		Tracked:     tracked,
		Debug:       s.engine.Debug(),
	})
}

func (s *Server) handleDebug(w http.ResponseWriter, data json.RawMessage) {
	if len(data) == 0 {
		respondFail(w, http.StatusBadRequest, "debug command needs a boolean data field")
		return
	}
	var on bool
	if err := json.Unmarshal(data, &on); err != nil {
		respondFail(w, http.StatusBadRequest, "debug command needs a boolean data field")
		return
	}
	s.engine.SetDebug(on)
	s.log.Info("fusion debug toggled", zap.Bool("enabled", on))
	respondOK(w, map[string]bool{"debug": on})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondOK(w http.ResponseWriter, result any) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

func respondFail(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"ok": false, "error": message})
}
