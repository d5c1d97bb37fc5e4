package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/runlog"
	"kiln/internal/worker"
)

const shutdownGrace = 5 * time.Second

// Server is the worker HTTP interface.
type Server struct {
	bind   string
	token  string
	cfg    *config.Config
	logger *slog.Logger
	worker *worker.Worker
	store  *runlog.Store
	runs   *RunService

	listener net.Listener
	server   *http.Server
}

// NewServer builds the HTTP interface and registers all routes. A blank
// api.bind disables the interface; callers receive nil and skip Start.
func NewServer(cfg *config.Config, wk *worker.Worker, store *runlog.Store, logger *slog.Logger) *Server {
	if cfg == nil || wk == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil
	}

	s := &Server{
		bind:   bind,
		token:  strings.TrimSpace(cfg.API.Token),
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "api"),
		worker: wk,
		store:  store,
	}
	if store != nil {
		s.runs = NewRunService(store)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.loggingMiddleware)
	router.Use(metricsMiddleware)

	router.Get("/metrics", metricsHandler().ServeHTTP)
	router.Route("/api", func(r chi.Router) {
		// Probes must work without credentials.
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/run", s.handleRun)
			r.Get("/runs", s.handleRuns)
			r.Get("/runs/{id}", s.handleRunItem)
			r.Get("/stats", s.handleStats)
		})
	})

	// No write deadline: render submissions legitimately hold the
	// connection for the full job wait.
	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start begins serving in the background and arranges a graceful drain when
// ctx is canceled. Request contexts derive from ctx so an in-flight render
// aborts with the daemon instead of outliving the drain window.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requireToken validates bearer tokens when api.token is set. With no token
// configured all requests pass through.
func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.token {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request using the structured logger. Health
// probes and metric scrapes arrive continuously, so they log at debug.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if r.URL.Path == "/api/health" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int64("duration_ms", time.Since(start).Milliseconds()),
			logging.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
