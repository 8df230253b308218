// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// RankingDependencies defines the interface for leaderboard operations.
type RankingDependencies interface {
	Leaderboard(ctx context.Context, window model.Window) (model.Leaderboard, error)
	RankingImage(ctx context.Context, window model.Window) (*model.Image, error)
}

// RankingHandler handles ranking requests.
type RankingHandler struct {
	deps RankingDependencies
	log  logger.Logger
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(deps RankingDependencies) *RankingHandler {
	return &RankingHandler{deps: deps, log: logger.Named("api.ranking")}
}

// HandleGetRanking handles GET /ranking?window=total|yearly|weekly&format=png|json requests.
// A PNG request with nobody in the window answers 204.
func (h *RankingHandler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ranking"
	window, err := model.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeFailure(r.Context(), w, h.log, wrap(op, err))
		return
	}
	format, err := parseFormat(r)
	if err != nil {
		writeFailure(r.Context(), w, h.log, wrap(op, err))
		return
	}

	if format == formatJSON {
		lb, err := h.deps.Leaderboard(r.Context(), window)
		if err != nil {
			writeFailure(r.Context(), w, h.log, wrap(op, err))
			return
		}
		if lb.Entries == nil {
			lb.Entries = []model.RankedUser{}
		}
		writeJSON(w, http.StatusOK, lb)
		return
	}

	img, err := h.deps.RankingImage(r.Context(), window)
	if err != nil {
		writeFailure(r.Context(), w, h.log, wrap(op, err))
		return
	}
	writeImage(w, img)
}
