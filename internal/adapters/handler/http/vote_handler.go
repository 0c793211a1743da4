package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

type VoteHandler struct {
	service ports.VoteService
	clock   ports.Clock
	log     *zap.Logger
}

func NewVoteHandler(service ports.VoteService, clock ports.Clock, log *zap.Logger) *VoteHandler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VoteHandler{
		service: service,
		clock:   clock,
		log:     log,
	}
}

type voteRequest struct {
	OptionID string `json:"option_id"`
}

// VoteOnPoll godoc
// @Summary      Casts one vote
// @Description  Responds with the poll as committed by this vote.
// @Tags         votes
// @Accept       json
// @Produce      json
// @Success      200
// @Failure      400
// @Failure      404
// @Failure      409
// @Failure      410
// @Router       /api/polls/{id}/vote [post]
func (h *VoteHandler) VoteOnPoll(w http.ResponseWriter, r *http.Request) {
	pollID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid poll id")
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	optionID, err := uuid.Parse(req.OptionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid option id")
		return
	}

	poll, err := h.service.Vote(r.Context(), ports.VoteInput{PollID: pollID, OptionID: optionID})
	if err != nil {
		status, message := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("vote failed", zap.String("poll_id", pollID.String()), zap.Error(err))
		}
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, newPollResponse(poll, h.clock.Now()))
}
