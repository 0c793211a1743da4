package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVotable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.True(t, IsVotable(nil, now), "no expiration")
	assert.True(t, IsVotable(&future, now))
	assert.False(t, IsVotable(&past, now))
	assert.False(t, IsVotable(&now, now), "expiration instant itself is closed")
}

func TestNewPoll(t *testing.T) {
	now := time.Now()
	exp := now.Add(time.Hour)

	poll, err := NewPoll("  Favourite colour? ", []string{"Red", " Blue "}, &exp, now)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, poll.ID)
	assert.Equal(t, "Favourite colour?", poll.Question)
	require.Len(t, poll.Options, 2)
	assert.Equal(t, "Red", poll.Options[0].Text)
	assert.Equal(t, "Blue", poll.Options[1].Text)
	assert.NotEqual(t, poll.Options[0].ID, poll.Options[1].ID)
	assert.Zero(t, poll.TotalVotes)
	assert.Zero(t, poll.CountedVotes())
	require.NotNil(t, poll.ExpiresAt)
	assert.True(t, poll.ExpiresAt.Equal(exp))
}

func TestNewPoll_Validation(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	tests := []struct {
		name      string
		question  string
		options   []string
		expiresAt *time.Time
	}{
		{"empty question", "   ", []string{"a", "b"}, nil},
		{"long question", strings.Repeat("q", MaxQuestionLength+1), []string{"a", "b"}, nil},
		{"one option", "q", []string{"a"}, nil},
		{"too many options", "q", []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}, nil},
		{"blank option", "q", []string{"a", " "}, nil},
		{"duplicate option", "q", []string{"Yes", "yes"}, nil},
		{"long option", "q", []string{"a", strings.Repeat("o", MaxOptionLength+1)}, nil},
		{"expiration in the past", "q", []string{"a", "b"}, &past},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPoll(tt.question, tt.options, tt.expiresAt, now)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPoll_OptionExactMatch(t *testing.T) {
	poll, err := NewPoll("q", []string{"a", "b"}, nil, time.Now())
	require.NoError(t, err)

	opt, ok := poll.Option(poll.Options[1].ID)
	assert.True(t, ok)
	assert.Equal(t, "b", opt.Text)

	_, ok = poll.Option(uuid.New())
	assert.False(t, ok)
}

func TestPoll_CloneIsDeep(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	poll, err := NewPoll("q", []string{"a", "b"}, &exp, time.Now())
	require.NoError(t, err)

	snap := poll.Clone()
	poll.Options[0].Votes = 7
	*poll.ExpiresAt = poll.ExpiresAt.Add(time.Hour)

	assert.Zero(t, snap.Options[0].Votes)
	assert.True(t, snap.ExpiresAt.Equal(exp.UTC()))
}
