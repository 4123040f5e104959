package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	repository "github.com/okian/trailvote/internal/adapters/repository"
	"github.com/okian/trailvote/internal/domain/model"
)

const defaultVotesLimit = 50

// VotesDependencies defines the interface for vote result reads.
type VotesDependencies interface {
	Recent(ctx context.Context, q repository.Query) ([]model.VoteResult, error)
}

// VotesHandler handles recent vote requests.
type VotesHandler struct {
	deps     VotesDependencies
	maxLimit int
}

// NewVotesHandler creates a new votes handler.
func NewVotesHandler(deps VotesDependencies, maxLimit int) *VotesHandler {
	return &VotesHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetVotes handles GET /votes?limit=N&trail=T&voter=V requests.
func (h *VotesHandler) HandleGetVotes(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_votes"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	q := repository.Query{
		Limit: defaultVotesLimit,
		Trail: query.Get("trail"),
		Voter: query.Get("voter"),
	}
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: limit must be a positive integer", op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%s: %w: limit must not exceed %d", op, ErrBadRequest, h.maxLimit))
			return
		}
		q.Limit = n
	}

	results, err := h.deps.Recent(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	if results == nil {
		results = []model.VoteResult{}
	}
	writeJSON(w, http.StatusOK, results)
}
