package domain

import "errors"

var (
	ErrValidation         = errors.New("invalid input")
	ErrInvalidPollID      = errors.New("invalid poll id")
	ErrPollNotFound       = errors.New("poll not found")
	ErrOptionNotFound     = errors.New("option not found")
	ErrPollExpired        = errors.New("poll has expired")
	ErrWriteConflict      = errors.New("concurrent write conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
