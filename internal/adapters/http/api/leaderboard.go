package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/zen/internal/domain/model"
)

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	reader   Reader
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(reader Reader, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{reader: reader, maxLimit: maxLimit}
}

type leaderboardResponse struct {
	ServerID string                   `json:"server_id"`
	Ledger   model.Ledger             `json:"ledger"`
	Entries  []model.LeaderboardEntry `json:"entries"`
}

// HandleGetLeaderboard handles GET /leaderboard/{server}/{rep|xp}?limit=N.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("server")
	ledger := model.Ledger(r.PathValue("ledger"))

	var top func(ctx context.Context, serverID string, limit int) ([]model.LeaderboardEntry, error)
	switch ledger {
	case model.LedgerReputation:
		top = h.reader.TopReputation
	case model.LedgerExperience:
		top = h.reader.TopExperience
	default:
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("unknown ledger %q", ledger))
		return
	}

	limit, err := parseLimit(r, defaultLimit, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	entries, err := top(r.Context(), serverID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("leaderboard %s/%s: %w", serverID, ledger, err))
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{ServerID: serverID, Ledger: ledger, Entries: entries})
}
