// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IncrementDependencies
	RankingDependencies
	ContributionDependencies
	EventLogDependencies

	Audit(ctx context.Context) ([]repository.Discrepancy, error)
}

// Response formats accepted by the image endpoints.
const (
	formatPNG  = "png"
	formatJSON = "json"
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	incrementHandler    *IncrementHandler
	rankingHandler      *RankingHandler
	contributionHandler *ContributionHandler
	eventsHandler       *EventsHandler
	auditHandler        *AuditHandler
	renderLimiter       *rate.Limiter
	log                 logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRenderLimit caps ranking and contribution requests, which render
// images, at perSecond with the given burst. perSecond <= 0 means unlimited.
func WithRenderLimit(perSecond float64, burst int) ServerOption {
	return func(s *Server) {
		if perSecond > 0 {
			s.renderLimiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		incrementHandler:    NewIncrementHandler(deps),
		rankingHandler:      NewRankingHandler(deps),
		contributionHandler: NewContributionHandler(deps),
		eventsHandler:       NewEventsHandler(deps),
		auditHandler:        NewAuditHandler(deps),
		renderLimiter:       rate.NewLimiter(rate.Inf, 0),
		log:                 logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint), s.log))
	}
	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	route("POST /increments/{userID}", "increments", s.incrementHandler.HandlePostIncrement)
	route("GET /ranking", "ranking", RateLimitMiddleware(s.rankingHandler.HandleGetRanking, s.renderLimiter))
	route("GET /contributions/{userID}", "contributions",
		RateLimitMiddleware(s.contributionHandler.HandleGetContributions, s.renderLimiter))
	route("GET /events/{userID}", "events", s.eventsHandler.HandleGetEvents)
	route("GET /audit", "audit", s.auditHandler.HandleGetAudit)
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, RequestID: w.Header().Get(requestIDHeader)})
}

// writeFailure maps err through statusFor and logs server-side failures.
func writeFailure(ctx context.Context, w http.ResponseWriter, log logger.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("code", code), logger.Error(err))
	}
	writeError(w, status, code, err)
}

// writeImage sends img as a PNG attachment, or 204 when there is nothing to draw.
func writeImage(w http.ResponseWriter, img *model.Image) {
	if img == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", img.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// parseFormat reads ?format=, defaulting to png.
func parseFormat(r *http.Request) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); f {
	case "", formatPNG:
		return formatPNG, nil
	case formatJSON:
		return formatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}
