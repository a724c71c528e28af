// Package chi serves the pipeline's observability surface over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/metrics"
	"github.com/kailas-cloud/vecsync/internal/usecase/health"
	"github.com/kailas-cloud/vecsync/internal/usecase/pipeline"
	"github.com/kailas-cloud/vecsync/internal/usecase/subscription"
	"github.com/kailas-cloud/vecsync/internal/usecase/usage"
)

const (
	codeUnauthorized = "unauthorized"
	codeInternal     = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pipeline is the read-only view of the controller served over HTTP.
type Pipeline interface {
	Stats() pipeline.Snapshot
	Subscriptions() []subscription.Status
}

// HealthChecker produces the aggregated health report.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// UsageReporter produces the embedding token usage report.
type UsageReporter interface {
	GetReport(ctx context.Context) usage.Report
}

// Server handles the observability routes.
type Server struct {
	pipeline Pipeline
	health   HealthChecker
	usage    UsageReporter
	logger   *zap.Logger
}

// NewServer creates a Server.
func NewServer(p Pipeline, h HealthChecker, logger *zap.Logger) *Server {
	return &Server{pipeline: p, health: h, logger: logger}
}

// WithUsage enables GET /usage.
func (s *Server) WithUsage(u UsageReporter) *Server {
	s.usage = u
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/stats", s.Stats)
	r.Get("/subscriptions", s.Subscriptions)
	if s.usage != nil {
		r.Get("/usage", s.Usage)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == health.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Stats())
}

type subscriptionsResponse struct {
	Items []subscription.Status `json:"items"`
}

// Subscriptions handles GET /subscriptions.
func (s *Server) Subscriptions(w http.ResponseWriter, _ *http.Request) {
	items := s.pipeline.Subscriptions()
	if items == nil {
		items = []subscription.Status{}
	}
	writeJSON(w, http.StatusOK, subscriptionsResponse{Items: items})
}

// Usage handles GET /usage.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.usage.GetReport(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
