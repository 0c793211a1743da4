package tarantool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tarantool/go-tarantool"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

// Every procedure below runs in a single fiber without yielding, so reads see one committed
// state and writes inside box.atomic are applied all together.
const (
	savePollLua = `
local poll, options = ...
box.atomic(function()
    box.space.polls:insert(poll)
    for _, option in ipairs(options) do
        box.space.poll_options:insert(option)
    end
end)
return true
`

	getPollLua = `
local id = ...
local poll = box.space.polls:get(id)
if poll == nil then
    return nil
end
return poll, box.space.poll_options.index.poll:select({id})
`

	listPollsLua = `
local out = {}
for _, poll in box.space.polls:pairs() do
    table.insert(out, {poll, box.space.poll_options.index.poll:select({poll[1]})})
end
return out
`

	deletePollLua = `
local id = ...
return box.atomic(function()
    if box.space.polls:get(id) == nil then
        return false
    end
    for _, option in box.space.poll_options.index.poll:pairs({id}) do
        box.space.poll_options:delete(option[1])
    end
    box.space.polls:delete(id)
    return true
end)
`

	applyVoteLua = `
local poll_id, option_id, at = ...
return box.atomic(function()
    local poll = box.space.polls:get(poll_id)
    if poll == nil then
        return 'poll_not_found'
    end
    if poll[4] ~= nil and at >= poll[4] then
        return 'poll_expired'
    end
    local option = box.space.poll_options:get(option_id)
    if option == nil or option[2] ~= poll_id then
        return 'option_not_found'
    end
    box.space.poll_options:update(option_id, {{'+', 5, 1}})
    poll = box.space.polls:update(poll_id, {{'+', 5, 1}, {'+', 6, 1}})
    return 'ok', poll, box.space.poll_options.index.poll:select({poll_id})
end)
`
)

type pollRepository struct {
	conn *tarantool.Connection
	log  *zap.Logger
}

func NewPollRepository(conn *tarantool.Connection, log *zap.Logger) ports.PollRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &pollRepository{
		conn: conn,
		log:  log,
	}
}

func (r *pollRepository) eval(ctx context.Context, expr string, args []interface{}) ([]interface{}, error) {
	resp, err := r.conn.Do(tarantool.NewEvalRequest(expr).Args(args).Context(ctx)).Get()
	if err != nil {
		return nil, classify(err)
	}
	r.log.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.Any("resp", resp.Data))
	return resp.Data, nil
}

func (r *pollRepository) Save(ctx context.Context, poll *domain.Poll) error {
	var expiresAt interface{}
	if poll.ExpiresAt != nil {
		expiresAt = uint64(poll.ExpiresAt.UnixMilli())
	}
	pollTuple := []interface{}{
		poll.ID.String(),
		poll.Question,
		uint64(poll.CreatedAt.UnixMilli()),
		expiresAt,
		uint64(poll.TotalVotes),
		uint64(poll.Version),
	}
	optionTuples := make([]interface{}, 0, len(poll.Options))
	for i, opt := range poll.Options {
		optionTuples = append(optionTuples, []interface{}{
			opt.ID.String(), poll.ID.String(), uint64(i), opt.Text, uint64(opt.Votes),
		})
	}

	if _, err := r.eval(ctx, savePollLua, []interface{}{pollTuple, optionTuples}); err != nil {
		return fmt.Errorf("repository: database insert error: %w", err)
	}
	return nil
}

func (r *pollRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	data, err := r.eval(ctx, getPollLua, []interface{}{id.String()})
	if err != nil {
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	if len(data) < 2 || data[0] == nil {
		return nil, domain.ErrPollNotFound
	}
	return decodePoll(data[0], data[1])
}

func (r *pollRepository) List(ctx context.Context) ([]*domain.Poll, error) {
	data, err := r.eval(ctx, listPollsLua, []interface{}{})
	if err != nil {
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	entries, ok := data[0].([]interface{})
	if !ok {
		return nil, fmt.Errorf("repository: unexpected list payload %T", data[0])
	}
	polls := make([]*domain.Poll, 0, len(entries))
	for _, entry := range entries {
		pair, ok := entry.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("repository: unexpected list entry %T", entry)
		}
		poll, err := decodePoll(pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		polls = append(polls, poll)
	}

	slices.SortFunc(polls, func(a, b *domain.Poll) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return polls, nil
}

func (r *pollRepository) Delete(ctx context.Context, id uuid.UUID) error {
	data, err := r.eval(ctx, deletePollLua, []interface{}{id.String()})
	if err != nil {
		return fmt.Errorf("repository: database delete error: %w", err)
	}
	if deleted, _ := first(data).(bool); !deleted {
		return domain.ErrPollNotFound
	}
	return nil
}

func (r *pollRepository) ApplyVote(ctx context.Context, pollID, optionID uuid.UUID, at time.Time) (*domain.Poll, error) {
	data, err := r.eval(ctx, applyVoteLua, []interface{}{pollID.String(), optionID.String(), uint64(at.UnixMilli())})
	if err != nil {
		return nil, fmt.Errorf("repository: database update error: %w", err)
	}

	status, _ := first(data).(string)
	switch status {
	case "ok":
	case "poll_not_found":
		return nil, domain.ErrPollNotFound
	case "poll_expired":
		return nil, domain.ErrPollExpired
	case "option_not_found":
		return nil, domain.ErrOptionNotFound
	default:
		return nil, fmt.Errorf("repository: unexpected vote status %v", first(data))
	}
	if len(data) < 3 {
		return nil, fmt.Errorf("repository: incomplete vote response")
	}

	return decodePoll(data[1], data[2])
}

func (r *pollRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.conn.Ping(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func first(data []interface{}) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data[0]
}

func classify(err error) error {
	var clientErr tarantool.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Code {
		case tarantool.ErrConnectionNotReady, tarantool.ErrConnectionClosed, tarantool.ErrTimeouted:
			return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		}
	}
	return err
}
