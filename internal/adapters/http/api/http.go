// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	repository "github.com/okian/trailvote/internal/adapters/repository"
	"github.com/okian/trailvote/internal/domain/model"
)

const defaultMaxLimit = 1000

// Dependencies required by HTTP handlers.
type Dependencies interface {
	StatsProvider

	// Recent returns recorded vote results, newest first.
	Recent(ctx context.Context, q repository.Query) ([]model.VoteResult, error)

	// Trails and Voters expose the read-only configuration.
	Trails() []model.TrailRule
	Voters() []model.Voter
}

// Server wires HTTP routes for the trail API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	votesHandler  *VotesHandler
	trailsHandler *TrailsHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps
// /votes?limit; a value below 1 uses the default.
func NewServer(deps Dependencies, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = defaultMaxLimit
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		votesHandler:  NewVotesHandler(deps, maxLimit),
		trailsHandler: NewTrailsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/votes", MetricsMiddleware(s.votesHandler.HandleGetVotes, "votes"))
	mux.HandleFunc("/trails", MetricsMiddleware(s.trailsHandler.HandleListTrails, "trails"))
	mux.HandleFunc("/trails/", MetricsMiddleware(s.trailsHandler.HandleGetTrail, "trail"))
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
