// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	service "github.com/okian/ceoorcto/internal/app"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

// maxBodyBytes caps request bodies; a full batch is well under this.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	Comparison(ctx context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error)
	SubmitStats(ctx context.Context, sub model.StatsSubmission) (service.SubmitResult, error)
	ReportMissingAsset(ctx context.Context, report model.AssetReport)
	Rankings(ctx context.Context, limit int) (model.Rankings, error)
	StatsProvider
}

// Server wires HTTP routes for the game API.
type Server struct {
	deps       Dependencies
	validate   *validator.Validate
	limiter    *rate.Limiter
	production bool
	timeout    time.Duration
	logger     logger.Logger

	healthHandler     *HealthHandler
	comparisonHandler *ComparisonHandler
	statsHandler      *StatsHandler
	logHandler        *LogHandler
	rankingsHandler   *RankingsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		limiter:  rate.NewLimiter(rate.Limit(defaultReportRate), defaultReportBurst),
		timeout:  defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler(deps)
	s.comparisonHandler = &ComparisonHandler{srv: s}
	s.statsHandler = &StatsHandler{srv: s}
	s.logHandler = &LogHandler{srv: s}
	s.rankingsHandler = &RankingsHandler{srv: s}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.healthHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/comparison", MetricsMiddleware(withTimeout(s.comparisonHandler.HandleGetComparison, s.timeout), "comparison"))
	mux.HandleFunc("/api/stats", MetricsMiddleware(withTimeout(s.statsHandler.HandlePostStats, s.timeout), "submit_stats"))
	mux.HandleFunc("/api/log", MetricsMiddleware(s.logHandler.HandlePostLog, "log"))
	mux.HandleFunc("/api/rankings", MetricsMiddleware(withTimeout(s.rankingsHandler.HandleGetRankings, s.timeout), "rankings"))
}

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError replies with message and code. The wrapped error is exposed
// as details outside production.
func (s *Server) writeError(w http.ResponseWriter, status int, code, message string, err error) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := errorResponse{Error: message, Code: code}
	if err != nil && !s.production {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// classify maps a service error to a status, a stable code and a
// user-facing message.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrInvalidSubmission):
		return http.StatusBadRequest, "bad_request", "Invalid request format"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "Too many requests"
	case errors.Is(err, model.ErrInsufficientPopulation):
		return http.StatusInternalServerError, "insufficient_population", "Not enough people in database for matchups"
	case errors.Is(err, model.ErrIntroProfilesMissing):
		return http.StatusInternalServerError, "intro_missing", "First visit images not found"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found", "Not found"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "Service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "Request timed out"
	default:
		return http.StatusInternalServerError, "internal", "Internal server error"
	}
}

// fail classifies err, logs server-side failures and writes the reply.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	status, code, message := classify(err)
	if status >= statusInternalError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("endpoint", endpoint),
			logger.String("code", code),
			logger.Error(err),
		)
	}
	s.writeError(w, status, code, message, err)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "", nil)
}
