package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

type pollResponse struct {
	ID         uuid.UUID       `json:"id"`
	Question   string          `json:"question"`
	Options    []domain.Option `json:"options"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	TotalVotes int64           `json:"total_votes"`
	Expired    bool            `json:"expired"`
}

func newPollResponse(poll *domain.Poll, now time.Time) pollResponse {
	options := poll.Options
	if options == nil {
		options = []domain.Option{}
	}
	return pollResponse{
		ID:         poll.ID,
		Question:   poll.Question,
		Options:    options,
		CreatedAt:  poll.CreatedAt,
		ExpiresAt:  poll.ExpiresAt,
		TotalVotes: poll.TotalVotes,
		Expired:    !poll.IsVotable(now),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorStatus maps core errors to the status and message exposed to clients. Anything it does
// not recognise is an internal error whose details stay in the logs.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrInvalidPollID):
		return http.StatusBadRequest, "invalid poll id"
	case errors.Is(err, domain.ErrPollNotFound):
		return http.StatusNotFound, "poll not found"
	case errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusNotFound, "option not found"
	case errors.Is(err, domain.ErrPollExpired):
		return http.StatusGone, "poll has expired"
	case errors.Is(err, domain.ErrWriteConflict):
		return http.StatusConflict, "too much contention on this poll, try again"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
