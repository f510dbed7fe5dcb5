// Package api exposes the HTTP interface for the run-controller service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsrun-controller/internal/config"
	"github.com/JakeFAU/newsrun-controller/internal/controller"
	"github.com/JakeFAU/newsrun-controller/internal/metrics"
	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
)

// Server wires HTTP handlers to the controller surface.
type Server struct {
	router chi.Router
	ctrl   *controller.Controller
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ctrl *controller.Controller, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ctrl:   ctrl,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/run", s.requestRun)
			r.Get("/status", s.getStatus)
			r.Post("/clear", s.manualClear)
			r.Post("/reset", s.reset)
		})
		r.Get("/articles", s.listArticles)
		r.Get("/artifacts/latest", s.latestArtifact)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) requestRun(w http.ResponseWriter, r *http.Request) {
	runID, decision, err := s.ctrl.RequestRun(r.Context())
	if err != nil {
		var triggerErr *pipeline.TriggerError
		switch {
		case errors.Is(err, pipeline.ErrCooldownActive), errors.Is(err, pipeline.ErrRunInProgress):
			writeJSON(w, http.StatusTooManyRequests, runDeniedResponse{
				Error:         err.Error(),
				Reason:        decision.Reason,
				NextAvailable: decision.NextAvailable,
				Remaining:     s.ctrl.FormatRemaining(r.Context()),
			})
		case errors.As(err, &triggerErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "triggered"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	decision, record := s.ctrl.Status(r.Context())
	writeJSON(w, http.StatusOK, statusResponse{
		Decision:  decision,
		Record:    record,
		Remaining: s.ctrl.FormatRemaining(r.Context()),
	})
}

func (s *Server) manualClear(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ManualClear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(pipeline.RunStatusCleared)})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	articles, err := s.ctrl.Articles(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load articles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (s *Server) latestArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.ctrl.LatestArtifact(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to locate artifact")
		return
	}
	if artifact == nil {
		writeError(w, http.StatusNotFound, "no artifact available")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

type statusResponse struct {
	Decision  pipeline.Decision   `json:"decision"`
	Record    *pipeline.RunRecord `json:"record,omitempty"`
	Remaining string              `json:"remaining"`
}

type runDeniedResponse struct {
	Error         string     `json:"error"`
	Reason        string     `json:"reason"`
	NextAvailable *time.Time `json:"next_available,omitempty"`
	Remaining     string     `json:"remaining"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
