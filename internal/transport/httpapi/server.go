package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
	healthuc "github.com/alannreyes/uwia-sub001/internal/usecase/health"
)

const defaultMaxBodyBytes = 64 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the extraction pipeline over HTTP.
type Server struct {
	extractor     Extractor
	sessions      SessionStore
	health        HealthChecker
	logger        *zap.Logger
	maxBodyBytes  int64
	apiKeys       []string
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. sessions may be nil when the
// retrieval path is disabled.
func NewServer(extractor Extractor, sessions SessionStore, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		extractor:    extractor,
		sessions:     sessions,
		health:       health,
		logger:       logger,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound),
		sentinelHandler(domain.ErrSessionExpired, http.StatusGone, CodeSessionExpired),
		sentinelHandler(domain.ErrNoChunks, http.StatusNotFound, CodeSessionNotFound),
		sentinelHandler(domain.ErrEmptyDocument, http.StatusBadRequest, CodeEmptyDocument),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrModelRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrModelUnavailable, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrModelTimeout, http.StatusGatewayTimeout, CodeProviderTimeout),
	}
	return s
}

// WithMaxBodyBytes overrides the request body cap.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// WithAPIKeys enables bearer authentication on the API routes.
func (s *Server) WithAPIKeys(keys []string) *Server {
	s.apiKeys = keys
	return s
}

// Router builds the chi router with middleware and all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(s.apiKeys))

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Post("/api/extract", s.ExtractFields)
	r.Delete("/api/sessions/{sessionID}", s.DeleteSession)

	return r
}

// ExtractFields handles POST /api/extract.
func (s *Server) ExtractFields(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	ucReq, err := requestFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res := s.extractor.Extract(ctx, ucReq)

	s.logger.Info("extraction complete",
		zap.String("file", req.FileName),
		zap.String("strategy", string(res.Strategy)),
		zap.Int("fields", len(ucReq.Fields)),
		zap.Float64("confidence", res.Confidence),
		zap.Float64("not_found_rate", res.NotFoundRate),
		zap.Int("model_calls", usage.ModelCalls))

	writeJSON(w, http.StatusOK, responseToDTO(res, usage))
}

// DeleteSession handles DELETE /api/sessions/{sessionID}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, CodeSessionNotFound, domain.ErrSessionNotFound.Error())
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "session id is required")
		return
	}

	if err := s.sessions.DeleteSession(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrSessionNotFound,
		domain.ErrSessionExpired,
		domain.ErrNoChunks,
		domain.ErrEmptyDocument,
		domain.ErrRateLimited,
		domain.ErrModelRateLimited,
		domain.ErrModelUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrModelTimeout,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
