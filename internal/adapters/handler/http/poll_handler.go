package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

type PollHandler struct {
	service ports.PollService
	clock   ports.Clock
	store   string
	log     *zap.Logger
}

func NewPollHandler(service ports.PollService, clock ports.Clock, store string, log *zap.Logger) *PollHandler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PollHandler{
		service: service,
		clock:   clock,
		store:   store,
		log:     log,
	}
}

type createPollRequest struct {
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreatePoll godoc
// @Summary      Creates a poll
// @Description  Options are trimmed; blank or duplicate options are rejected. expires_at is optional and must be in the future.
// @Tags         polls
// @Accept       json
// @Produce      json
// @Success      201
// @Failure      400
// @Router       /api/polls [post]
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	poll, err := h.service.Create(r.Context(), ports.CreatePollInput{
		Question:  req.Question,
		Options:   req.Options,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newPollResponse(poll, h.clock.Now()))
}

func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := h.service.ListPolls(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.clock.Now()
	resp := make([]pollResponse, 0, len(polls))
	for _, poll := range polls {
		resp = append(resp, newPollResponse(poll, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing poll id")
		return
	}

	poll, err := h.service.GetPoll(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPollResponse(poll, h.clock.Now()))
}

// DeletePoll godoc
// @Summary      Deletes a poll
// @Description  Removes the poll with its options and detaches every live subscriber.
// @Tags         polls
// @Success      200
// @Failure      404
// @Router       /api/polls/{id} [delete]
func (h *PollHandler) DeletePoll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePoll(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *PollHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.String("store", h.store), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "store": h.store})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": h.store})
}

func (h *PollHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, domain.ErrStorageUnavailable) {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, message)
}
