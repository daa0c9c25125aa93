package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/zen/internal/adapters/mq/queue"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	"github.com/okian/zen/pkg/metrics"
)

const maxEventBytes = 64 << 10

// EventsHandler handles event requests.
type EventsHandler struct {
	intake Intake
	logger logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(intake Intake, l logger.Logger) *EventsHandler {
	return &EventsHandler{intake: intake, logger: l}
}

// HandlePostEvent handles POST /events. An already processed event is
// acknowledged with 200 and status "duplicate"; a full queue answers 429 so the
// feed retries later.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ev model.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	seen, err := h.intake.Seen(ctx, ev.ID)
	if err != nil {
		h.logger.Error(ctx, "processed set lookup failed", logger.String("event_id", ev.ID), logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", ErrUnavailable)
		return
	}
	if seen {
		metrics.RecordEventDuplicate()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if err := h.intake.Enqueue(ctx, ev); err != nil {
		switch {
		case errors.Is(err, queue.ErrFull):
			writeError(w, http.StatusTooManyRequests, "backpressure", ErrBackpressure)
		default:
			writeError(w, http.StatusServiceUnavailable, "unavailable", fmt.Errorf("%w: %w", ErrUnavailable, err))
		}
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
