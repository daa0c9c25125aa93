package api

import (
	"fmt"
	"net/http"

	"github.com/okian/zen/internal/domain/model"
)

const defaultRepLogLimit = 20

// RepLogHandler serves the reputation audit log.
type RepLogHandler struct {
	reader   Reader
	maxLimit int
}

// NewRepLogHandler creates a new reputation log handler.
func NewRepLogHandler(reader Reader, maxLimit int) *RepLogHandler {
	return &RepLogHandler{reader: reader, maxLimit: maxLimit}
}

// HandleGetRepLog handles GET /replog/{server}?limit=N, newest first.
func (h *RepLogHandler) HandleGetRepLog(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("server")
	limit, err := parseLimit(r, defaultRepLogLimit, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rows, err := h.reader.ReputationLog(r.Context(), serverID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("replog %s: %w", serverID, err))
		return
	}
	if rows == nil {
		rows = []model.ReputationGrant{}
	}
	writeJSON(w, http.StatusOK, rows)
}
