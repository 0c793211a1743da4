package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinOptions        = 2
	MaxOptions        = 10
	MaxQuestionLength = 500
	MaxOptionLength   = 200
)

type Poll struct {
	ID         uuid.UUID  `json:"id"`
	Question   string     `json:"question"`
	Options    []Option   `json:"options"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	TotalVotes int64      `json:"total_votes"`
	// Version is bumped by the store on every committed vote.
	Version int64 `json:"-"`
}

type Option struct {
	ID    uuid.UUID `json:"id"`
	Text  string    `json:"text"`
	Votes int64     `json:"votes"`
}

// NewPoll validates raw creation input and builds a poll with fresh ids and zeroed counters.
func NewPoll(question string, options []string, expiresAt *time.Time, now time.Time) (*Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return nil, fmt.Errorf("%w: question must be at most %d characters", ErrValidation, MaxQuestionLength)
	}
	if len(options) < MinOptions || len(options) > MaxOptions {
		return nil, fmt.Errorf("%w: between %d and %d options are required", ErrValidation, MinOptions, MaxOptions)
	}

	poll := &Poll{
		ID:        uuid.New(),
		Question:  question,
		Options:   make([]Option, 0, len(options)),
		CreatedAt: now.UTC(),
	}

	seen := make(map[string]struct{}, len(options))
	for i, raw := range options {
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, fmt.Errorf("%w: option %d is empty", ErrValidation, i+1)
		}
		if utf8.RuneCountInString(text) > MaxOptionLength {
			return nil, fmt.Errorf("%w: option %d must be at most %d characters", ErrValidation, i+1, MaxOptionLength)
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate option %q", ErrValidation, text)
		}
		seen[key] = struct{}{}
		poll.Options = append(poll.Options, Option{ID: uuid.New(), Text: text})
	}

	if expiresAt != nil {
		if !expiresAt.After(now) {
			return nil, fmt.Errorf("%w: expiration must be in the future", ErrValidation)
		}
		exp := expiresAt.UTC()
		poll.ExpiresAt = &exp
	}

	return poll, nil
}

// IsVotable applies the expiration gate to this poll.
func (p *Poll) IsVotable(now time.Time) bool {
	return IsVotable(p.ExpiresAt, now)
}

// Option returns the option with exactly the given id.
func (p *Poll) Option(id uuid.UUID) (Option, bool) {
	for _, opt := range p.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p *Poll) Clone() Poll {
	c := *p
	c.Options = append([]Option(nil), p.Options...)
	if p.ExpiresAt != nil {
		exp := *p.ExpiresAt
		c.ExpiresAt = &exp
	}
	return c
}

// CountedVotes sums the per-option counters.
func (p *Poll) CountedVotes() int64 {
	var sum int64
	for _, opt := range p.Options {
		sum += opt.Votes
	}
	return sum
}
