package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/zen/internal/domain/model"
)

// ProfileHandler serves a member's reputation and experience standing.
type ProfileHandler struct {
	reader   Reader
	policies PolicySource
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(reader Reader, policies PolicySource) *ProfileHandler {
	return &ProfileHandler{reader: reader, policies: policies}
}

type profileResponse struct {
	ServerID   string             `json:"server_id"`
	UserID     string             `json:"user_id"`
	Reputation reputationStanding `json:"reputation"`
	Experience experienceStanding `json:"experience"`
}

type reputationStanding struct {
	Score int64 `json:"score"`
	Rank  int   `json:"rank,omitempty"`
}

type experienceStanding struct {
	XP        int64 `json:"xp"`
	Level     int   `json:"level"`
	Messages  int64 `json:"messages"`
	Rank      int   `json:"rank,omitempty"`
	LevelXP   int64 `json:"level_xp"`
	NextLevel int64 `json:"next_level_xp"`
}

// HandleGetProfile handles GET /profile/{server}/{user}. Members who never
// scored get zero values and no rank.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := model.MemberKey{ServerID: r.PathValue("server"), UserID: r.PathValue("user")}

	p, err := h.policies.Policy(ctx, key.ServerID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", fmt.Errorf("%w: %w", ErrUnavailable, err))
		return
	}
	rep, err := h.reader.ReputationProfile(ctx, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	xp, err := h.reader.ExperienceProfile(ctx, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	repRank, err := optionalRank(h.reader.ReputationRank(ctx, key))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	xpRank, err := optionalRank(h.reader.ExperienceRank(ctx, key))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ServerID:   key.ServerID,
		UserID:     key.UserID,
		Reputation: reputationStanding{Score: rep.Score, Rank: repRank},
		Experience: experienceStanding{
			XP:        xp.XP,
			Level:     xp.Level,
			Messages:  xp.Messages,
			Rank:      xpRank,
			LevelXP:   p.Levels.XPFor(xp.Level),
			NextLevel: p.Levels.XPFor(xp.Level + 1),
		},
	})
}

func optionalRank(rank int, err error) (int, error) {
	if errors.Is(err, model.ErrNotFound) {
		return 0, nil
	}
	return rank, err
}
