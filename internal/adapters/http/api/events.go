// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// IncrementDependencies defines the interface for recording increments.
type IncrementDependencies interface {
	IncrementOnce(ctx context.Context, userID, key string) (int, bool, error)
}

// IdempotencyKeyHeader carries a client-chosen key that makes an increment safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

type incrementResponse struct {
	UserID   string `json:"user_id"`
	Total    int    `json:"total"`
	Replayed bool   `json:"replayed"`
}

// IncrementHandler handles increment requests.
type IncrementHandler struct {
	deps IncrementDependencies
	log  logger.Logger
}

// NewIncrementHandler creates a new increment handler.
func NewIncrementHandler(deps IncrementDependencies) *IncrementHandler {
	return &IncrementHandler{deps: deps, log: logger.Named("api.increments")}
}

// HandlePostIncrement handles POST /increments/{userID} requests.
func (h *IncrementHandler) HandlePostIncrement(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_increment"
	userID := r.PathValue("userID")
	total, replayed, err := h.deps.IncrementOnce(r.Context(), userID, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeFailure(r.Context(), w, h.log, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, incrementResponse{UserID: userID, Total: total, Replayed: replayed})
}

// EventLogDependencies defines the interface for reading raw event logs.
type EventLogDependencies interface {
	Events(ctx context.Context, userID string) ([]model.Event, error)
}

type eventsResponse struct {
	UserID string        `json:"user_id"`
	Events []model.Event `json:"events"`
}

// EventsHandler handles event log requests.
type EventsHandler struct {
	deps EventLogDependencies
	log  logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventLogDependencies) *EventsHandler {
	return &EventsHandler{deps: deps, log: logger.Named("api.events")}
}

// HandleGetEvents handles GET /events/{userID} requests.
func (h *EventsHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_events"
	userID := r.PathValue("userID")
	events, err := h.deps.Events(r.Context(), userID)
	if err != nil {
		writeFailure(r.Context(), w, h.log, wrap(op, err))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{UserID: userID, Events: events})
}
