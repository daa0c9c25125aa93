// Package api exposes the event intake and the ledger read side over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/zen/internal/domain/ledger"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
)

const (
	defaultMaxLimit = 100
	defaultLimit    = 10
)

// Intake accepts events for asynchronous dispatch.
type Intake interface {
	// Seen reports whether the event was already processed.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Enqueue hands the event to the dispatch workers without blocking.
	Enqueue(ctx context.Context, e model.Event) error
}

// Reader is the ledger read side.
type Reader interface {
	ledger.Board
	ReputationProfile(ctx context.Context, key model.MemberKey) (*model.ReputationProfile, error)
	ExperienceProfile(ctx context.Context, key model.MemberKey) (*model.ExperienceProfile, error)
}

// PolicySource resolves a server's policy for level progress.
type PolicySource interface {
	Policy(ctx context.Context, serverID string) (*model.Policy, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	leaderboardHandler *LeaderboardHandler
	profileHandler     *ProfileHandler
	repLogHandler      *RepLogHandler
	logger             logger.Logger
}

// Option configures a Server.
type Option func(*options)

type options struct {
	maxLimit int
	logger   logger.Logger
}

// WithMaxLimit caps the limit query parameter of list endpoints.
func WithMaxLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// WithLogger sets the API logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(intake Intake, reader Reader, policies PolicySource, stats StatsProvider, opts ...Option) *Server {
	o := options{maxLimit: defaultMaxLimit, logger: logger.Get().Named("api")}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(stats),
		eventsHandler:      NewEventsHandler(intake, o.logger),
		leaderboardHandler: NewLeaderboardHandler(reader, o.maxLimit),
		profileHandler:     NewProfileHandler(reader, policies),
		repLogHandler:      NewRepLogHandler(reader, o.maxLimit),
		logger:             o.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RecoverMiddleware(MetricsMiddleware(h, endpoint), s.logger))
	}
	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /metrics", "metrics", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	route("POST /events", "events", s.eventsHandler.HandlePostEvent)
	route("GET /leaderboard/{server}/{ledger}", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	route("GET /profile/{server}/{user}", "profile", s.profileHandler.HandleGetProfile)
	route("GET /replog/{server}", "replog", s.repLogHandler.HandleGetRepLog)
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
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
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// parseLimit reads ?limit=, falling back to def when absent.
func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return min(def, maxLimit), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %w", ErrBadRequest, model.ErrInvalidLimit)
	}
	if n > maxLimit {
		return 0, fmt.Errorf("%w: limit exceeds maximum of %d", ErrBadRequest, maxLimit)
	}
	return n, nil
}
