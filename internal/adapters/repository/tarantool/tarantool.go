package tarantool

import (
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool"
	"github.com/vncsmyrnk/livepoll/internal/config"
)

const schemaLua = `
box.schema.space.create('polls', {
    if_not_exists = true,
    format = {
        {name = 'id', type = 'string'},
        {name = 'question', type = 'string'},
        {name = 'created_at', type = 'unsigned'},
        {name = 'expires_at', type = 'unsigned', is_nullable = true},
        {name = 'total_votes', type = 'unsigned'},
        {name = 'version', type = 'unsigned'},
    },
})
box.space.polls:create_index('primary', {parts = {'id'}, if_not_exists = true})

box.schema.space.create('poll_options', {
    if_not_exists = true,
    format = {
        {name = 'id', type = 'string'},
        {name = 'poll_id', type = 'string'},
        {name = 'position', type = 'unsigned'},
        {name = 'text', type = 'string'},
        {name = 'vote_count', type = 'unsigned'},
    },
})
box.space.poll_options:create_index('primary', {parts = {'id'}, if_not_exists = true})
box.space.poll_options:create_index('poll', {parts = {'poll_id', 'position'}, if_not_exists = true})
`

// Connect dials the instance and makes sure the poll spaces exist.
func Connect(cfg config.Tarantool) (*tarantool.Connection, error) {
	conn, err := tarantool.Connect(cfg.Addr(), tarantool.Opts{
		User:          cfg.Username,
		Pass:          cfg.Password,
		Timeout:       5 * time.Second,
		Reconnect:     time.Second,
		MaxReconnects: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed connect to Tarantool: %w", err)
	}

	if _, err := conn.Eval(schemaLua, []interface{}{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure tarantool schema: %w", err)
	}
	return conn, nil
}
