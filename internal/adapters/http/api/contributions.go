// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// ContributionDependencies defines the interface for per-day contribution reads.
type ContributionDependencies interface {
	Contributions(ctx context.Context, userID string) ([]model.ContributionBucket, error)
	ContributionImage(ctx context.Context, userID string) (*model.Image, error)
}

type contributionsResponse struct {
	UserID string                     `json:"user_id"`
	Days   []model.ContributionBucket `json:"days"`
}

// ContributionHandler handles contribution requests.
type ContributionHandler struct {
	deps ContributionDependencies
	log  logger.Logger
}

// NewContributionHandler creates a new contribution handler.
func NewContributionHandler(deps ContributionDependencies) *ContributionHandler {
	return &ContributionHandler{deps: deps, log: logger.Named("api.contributions")}
}

// HandleGetContributions handles GET /contributions/{userID}?format=png|json requests.
func (h *ContributionHandler) HandleGetContributions(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_contributions"
	userID := r.PathValue("userID")
	format, err := parseFormat(r)
	if err != nil {
		writeFailure(r.Context(), w, h.log, wrap(op, err))
		return
	}

	if format == formatJSON {
		days, err := h.deps.Contributions(r.Context(), userID)
		if err != nil {
			writeFailure(r.Context(), w, h.log, wrap(op, err))
			return
		}
		if days == nil {
			days = []model.ContributionBucket{}
		}
		writeJSON(w, http.StatusOK, contributionsResponse{UserID: userID, Days: days})
		return
	}

	img, err := h.deps.ContributionImage(r.Context(), userID)
	if err != nil {
		writeFailure(r.Context(), w, h.log, wrap(op, err))
		return
	}
	writeImage(w, img)
}
