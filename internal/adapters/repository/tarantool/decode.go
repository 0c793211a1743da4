package tarantool

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

func decodePoll(rawPoll, rawOptions interface{}) (*domain.Poll, error) {
	tuple, ok := rawPoll.([]interface{})
	if !ok || len(tuple) < 6 {
		return nil, fmt.Errorf("repository: unexpected poll tuple %v", rawPoll)
	}

	id, err := toUUID(tuple[0])
	if err != nil {
		return nil, err
	}
	question, _ := tuple[1].(string)
	createdAt, err := toInt64(tuple[2])
	if err != nil {
		return nil, err
	}
	total, err := toInt64(tuple[4])
	if err != nil {
		return nil, err
	}
	version, err := toInt64(tuple[5])
	if err != nil {
		return nil, err
	}

	poll := &domain.Poll{
		ID:         id,
		Question:   question,
		CreatedAt:  time.UnixMilli(createdAt).UTC(),
		TotalVotes: total,
		Version:    version,
	}
	if tuple[3] != nil {
		expiresAt, err := toInt64(tuple[3])
		if err != nil {
			return nil, err
		}
		exp := time.UnixMilli(expiresAt).UTC()
		poll.ExpiresAt = &exp
	}

	options, ok := rawOptions.([]interface{})
	if !ok {
		return nil, fmt.Errorf("repository: unexpected options payload %T", rawOptions)
	}
	for _, raw := range options {
		opt, ok := raw.([]interface{})
		if !ok || len(opt) < 5 {
			return nil, fmt.Errorf("repository: unexpected option tuple %v", raw)
		}
		optID, err := toUUID(opt[0])
		if err != nil {
			return nil, err
		}
		text, _ := opt[3].(string)
		votes, err := toInt64(opt[4])
		if err != nil {
			return nil, err
		}
		poll.Options = append(poll.Options, domain.Option{ID: optID, Text: text, Votes: votes})
	}
	return poll, nil
}

func toUUID(v interface{}) (uuid.UUID, error) {
	s, ok := v.(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("repository: unexpected id type %T", v)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to parse id: %w", err)
	}
	return id, nil
}

// toInt64 accepts whichever integer width the msgpack decoder picked.
func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("repository: unexpected numeric type %T", v)
	}
}
