// Package repository selects the poll store backend named by the configuration.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/sqlite"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/tarantool"
	"github.com/vncsmyrnk/livepoll/internal/config"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

// Open returns the configured store and a function releasing its connections.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (ports.PollRepository, func() error, error) {
	log = log.With(zap.String("store", cfg.StoreDriver))

	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.NewPollRepository(log), func() error { return nil }, nil

	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.Postgres.ConnString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to reach postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewPollRepository(db, log), db.Close, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewPollRepository(db, log), db.Close, nil

	case config.DriverTarantool:
		conn, err := tarantool.Connect(cfg.Tarantool)
		if err != nil {
			return nil, nil, err
		}
		return tarantool.NewPollRepository(conn, log), conn.CloseGraceful, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
