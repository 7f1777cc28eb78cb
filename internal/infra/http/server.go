package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-gpt-relay/internal/config"
	"telegram-gpt-relay/internal/domain"
	"telegram-gpt-relay/internal/usecase"
)

// ReportSource is the read side of the chat use case.
type ReportSource interface {
	Report(ctx context.Context, userID int64) (*usecase.UsageReport, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server exposes health, metrics and the bearer-protected usage API.
type Server struct {
	cfg     *config.AdminConfig
	reports ReportSource
	checks  map[string]HealthCheck
	auth    *AuthManager
	log     *zerolog.Logger
	server  *http.Server
}

func NewServer(cfg *config.AdminConfig, reports ReportSource, checks map[string]HealthCheck, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http.Server").Logger()
	s := &Server{cfg: cfg, reports: reports, checks: checks, log: &l}
	if cfg.JWTSecret != "" {
		s.auth = NewAuthManager(cfg.JWTSecret, 0)
	}
	// built here so Start and Shutdown may run on different goroutines
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Auth returns nil when no JWT secret is configured.
func (s *Server) Auth() *AuthManager { return s.auth }

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log), Timeout(10*time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.auth == nil {
			r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "ops api disabled: admin.jwt_secret not set")
			})
			return
		}
		r.Use(s.auth.Middleware)
		r.Get("/usage/{userID}", s.handleUsage)
	})
	return r
}

// Start blocks until the server stops. http.ErrServerClosed is not reported, so a
// Shutdown that wins the race against Start makes Start return nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	out := map[string]string{}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			out[name] = err.Error()
			continue
		}
		out[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": out})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "userID must be a positive integer")
		return
	}
	rep, err := s.reports.Report(r.Context(), userID)
	if errors.Is(err, domain.ErrLockTimeout) {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "user is busy, retry later")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Int64("tg_id", userID).Msg("usage report")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
