// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/pkg/logger"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}

// AuditDependencies defines the interface for counter consistency checks.
type AuditDependencies interface {
	Audit(ctx context.Context) ([]repository.Discrepancy, error)
}

type auditResponse struct {
	Consistent    bool                     `json:"consistent"`
	Discrepancies []repository.Discrepancy `json:"discrepancies"`
}

// AuditHandler reports users whose totals disagree with their event logs.
type AuditHandler struct {
	deps AuditDependencies
	log  logger.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(deps AuditDependencies) *AuditHandler {
	return &AuditHandler{deps: deps, log: logger.Named("api.audit")}
}

// HandleGetAudit handles GET /audit requests. It never repairs anything.
func (h *AuditHandler) HandleGetAudit(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_audit"
	diffs, err := h.deps.Audit(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, h.log, wrap(op, err))
		return
	}
	if diffs == nil {
		diffs = []repository.Discrepancy{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Consistent: len(diffs) == 0, Discrepancies: diffs})
}
