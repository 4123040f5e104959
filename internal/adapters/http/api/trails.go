package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/trailvote/internal/domain/model"
)

// TrailsDependencies defines the interface for configuration reads.
type TrailsDependencies interface {
	Trails() []model.TrailRule
	Voters() []model.Voter
}

// trailView is a trail as exposed over HTTP. Voter credentials never leave
// the process.
type trailView struct {
	Name           string   `json:"name"`
	Account        string   `json:"account"`
	MaxAge         int      `json:"max_age"`
	EnableComments bool     `json:"enable_comments"`
	AllowUpvote    bool     `json:"allow_upvote"`
	AllowDownvote  bool     `json:"allow_downvote"`
	SkipTags       []string `json:"skip_tags"`
	OnlyTags       []string `json:"only_tags"`
	ScaleVotes     int      `json:"scale_votes"`
	AgeFrom        string   `json:"age_from"`
}

type trailsResponse struct {
	Trails []trailView `json:"trails"`
	Voters []string    `json:"voters"`
}

func toView(t model.TrailRule) trailView { //nolint:gocritic // hugeParam
	return trailView{
		Name:           t.Name,
		Account:        t.Account,
		MaxAge:         t.MaxAgeMinutes,
		EnableComments: t.EnableComments,
		AllowUpvote:    t.AllowUpvote,
		AllowDownvote:  t.AllowDownvote,
		SkipTags:       t.SkipTags,
		OnlyTags:       t.OnlyTags,
		ScaleVotes:     t.ScalePercent,
		AgeFrom:        string(t.AgeFrom),
	}
}

// TrailsHandler handles trail configuration requests.
type TrailsHandler struct {
	deps TrailsDependencies
}

// NewTrailsHandler creates a new trails handler.
func NewTrailsHandler(deps TrailsDependencies) *TrailsHandler {
	return &TrailsHandler{deps: deps}
}

// HandleListTrails handles GET /trails requests.
func (h *TrailsHandler) HandleListTrails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	trails := h.deps.Trails()
	voters := h.deps.Voters()

	resp := trailsResponse{
		Trails: make([]trailView, 0, len(trails)),
		Voters: make([]string, 0, len(voters)),
	}
	for _, t := range trails {
		resp.Trails = append(resp.Trails, toView(t))
	}
	for _, v := range voters {
		resp.Voters = append(resp.Voters, v.Name)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetTrail handles GET /trails/{name} requests.
func (h *TrailsHandler) HandleGetTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/trails/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	for _, t := range h.deps.Trails() {
		if t.Name == name {
			writeJSON(w, http.StatusOK, toView(t))
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("trail %q: %w", name, ErrNotFound))
}
