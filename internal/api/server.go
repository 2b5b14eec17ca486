package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/dispatcher"
	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
)

// RunManager starts, inspects and cancels background runs.
type RunManager interface {
	Start(ctx context.Context, params crawler.RunParams) (crawler.Run, error)
	Cancel(ctx context.Context, runID string) error
	Get(ctx context.Context, runID string) (crawler.Run, error)
	Active() (string, bool)
}

// Counter reports store totals and doubles as the readiness probe.
type Counter interface {
	Counts(ctx context.Context) (crawler.StoreCounts, error)
}

// Server wires HTTP handlers to the dispatcher and the posting store.
type Server struct {
	router   chi.Router
	runs     RunManager
	counter  Counter
	defaults crawler.RunParams
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. defaults supplies
// the query and bounds for runs started without overrides.
func NewServer(runs RunManager, counter Counter, defaults crawler.RunParams, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:     runs,
		counter:  counter,
		defaults: defaults,
		logger:   logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.startRun)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Post("/cancel", s.cancelRun)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.counter != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := s.counter.Counts(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if s.counter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	counts, err := s.counter.Counts(r.Context())
	if err != nil {
		s.logger.Error("count store rows failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to count postings")
		return
	}
	resp := map[string]any{"companies": counts.Companies, "postings": counts.Postings}
	if id, ok := s.runs.Active(); ok {
		resp["active_run_id"] = id
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type startRunRequest struct {
	Keyword      *string `json:"keyword"`
	LocationCode *string `json:"location_code"`
	MaxPages     *int    `json:"max_pages"`
	MaxPostings  *int    `json:"max_postings"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params := s.defaults
	params.Query.Keyword = valueOrDefault(req.Keyword, params.Query.Keyword)
	params.Query.LocationCode = valueOrDefault(req.LocationCode, params.Query.LocationCode)
	params.MaxPages = valueOrDefault(req.MaxPages, params.MaxPages)
	params.MaxPostings = valueOrDefault(req.MaxPostings, params.MaxPostings)
	if params.MaxPages < 1 {
		s.writeError(w, http.StatusBadRequest, "max_pages must be >= 1")
		return
	}
	if params.MaxPostings < 0 {
		s.writeError(w, http.StatusBadRequest, "max_postings must be >= 0")
		return
	}

	run, err := s.runs.Start(r.Context(), params)
	if err != nil {
		if errors.Is(err, dispatcher.ErrRunInProgress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("start run failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": string(run.Status)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	err := s.runs.Cancel(r.Context(), runID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "canceling"})
	case errors.Is(err, crawler.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "run not found")
	case errors.Is(err, dispatcher.ErrRunNotActive):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("cancel run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to cancel run")
	}
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
