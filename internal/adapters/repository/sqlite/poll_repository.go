// Package sqlite provides a SQLite-backed poll store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/sqlite/migrations"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database file and applies the embedded migrations. Write transactions take
// the database lock up front and wait up to five seconds for it.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

type pollRepository struct {
	db  *sql.DB
	log *zap.Logger
}

func NewPollRepository(db *sql.DB, log *zap.Logger) ports.PollRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &pollRepository{
		db:  db,
		log: log,
	}
}

const selectPollWithOptions = `
	SELECT p.id, p.question, p.created_at, p.expires_at, p.total_votes, p.version,
	       o.id, o.text, o.vote_count
	FROM polls p
	JOIN poll_options o ON o.poll_id = p.id
`

func (r *pollRepository) Save(ctx context.Context, poll *domain.Poll) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	var expiresAt sql.NullInt64
	if poll.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: toMillis(*poll.ExpiresAt), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO polls (id, question, created_at, expires_at, total_votes, version) VALUES (?, ?, ?, ?, ?, ?)`,
		poll.ID.String(), poll.Question, toMillis(poll.CreatedAt), expiresAt, poll.TotalVotes, poll.Version,
	)
	if err != nil {
		return fmt.Errorf("insert poll: %w", classify(err))
	}

	for i, opt := range poll.Options {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO poll_options (id, poll_id, position, text, vote_count) VALUES (?, ?, ?, ?, ?)`,
			opt.ID.String(), poll.ID.String(), i, opt.Text, opt.Votes,
		)
		if err != nil {
			return fmt.Errorf("insert option: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit poll: %w", classify(err))
	}

	r.log.Debug("poll saved", zap.String("poll_id", poll.ID.String()))
	return nil
}

func (r *pollRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	rows, err := r.db.QueryContext(ctx, selectPollWithOptions+`WHERE p.id = ? ORDER BY o.position`, id.String())
	if err != nil {
		return nil, fmt.Errorf("get poll: %w", classify(err))
	}
	defer rows.Close()

	polls, err := scanPolls(rows)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, domain.ErrPollNotFound
	}
	return polls[0], nil
}

func (r *pollRepository) List(ctx context.Context) ([]*domain.Poll, error) {
	rows, err := r.db.QueryContext(ctx, selectPollWithOptions+`ORDER BY p.created_at DESC, p.id, o.position`)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", classify(err))
	}
	defer rows.Close()

	return scanPolls(rows)
}

func (r *pollRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM polls WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete poll: %w", classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	if affected == 0 {
		return domain.ErrPollNotFound
	}

	r.log.Debug("poll deleted", zap.String("poll_id", id.String()))
	return nil
}

// ApplyVote runs inside an immediate transaction, so the database write lock is held from BEGIN
// and concurrent voters queue on busy_timeout. A voter still waiting when the timeout runs out
// gets SQLITE_BUSY, reported as a write conflict. The version check on the poll row guards the
// same invariant for connections opened without _txlock=immediate.
//
// Expiration is judged at the later of at and the moment the lock was acquired.
func (r *pollRepository) ApplyVote(ctx context.Context, pollID, optionID uuid.UUID, at time.Time) (*domain.Poll, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin vote: %w", classify(err))
	}
	defer tx.Rollback()

	if locked := time.Now(); locked.After(at) {
		at = locked
	}

	var (
		version   int64
		expiresAt sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, `SELECT version, expires_at FROM polls WHERE id = ?`, pollID.String()).Scan(&version, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, fmt.Errorf("read poll: %w", classify(err))
	}

	if expiresAt.Valid {
		exp := fromMillis(expiresAt.Int64)
		if !domain.IsVotable(&exp, at) {
			return nil, domain.ErrPollExpired
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE poll_options SET vote_count = vote_count + 1 WHERE id = ? AND poll_id = ?`,
		optionID.String(), pollID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("bump option: %w", classify(err))
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("bump option: %w", err)
	} else if affected == 0 {
		return nil, domain.ErrOptionNotFound
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE polls SET total_votes = total_votes + 1, version = version + 1 WHERE id = ? AND version = ?`,
		pollID.String(), version,
	)
	if err != nil {
		return nil, fmt.Errorf("bump poll: %w", classify(err))
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("bump poll: %w", err)
	} else if affected == 0 {
		return nil, domain.ErrWriteConflict
	}

	rows, err := tx.QueryContext(ctx, selectPollWithOptions+`WHERE p.id = ? ORDER BY o.position`, pollID.String())
	if err != nil {
		return nil, fmt.Errorf("read committed poll: %w", classify(err))
	}
	polls, err := scanPolls(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, domain.ErrPollNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vote: %w", classify(err))
	}

	r.log.Debug("vote applied",
		zap.String("poll_id", pollID.String()),
		zap.String("option_id", optionID.String()),
		zap.Int64("version", polls[0].Version))
	return polls[0], nil
}

func (r *pollRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func scanPolls(rows *sql.Rows) ([]*domain.Poll, error) {
	var (
		polls   []*domain.Poll
		current *domain.Poll
	)
	for rows.Next() {
		var (
			pollID, optionID string
			question, text   string
			createdAt        int64
			expiresAt        sql.NullInt64
			total, version   int64
			votes            int64
		)
		if err := rows.Scan(&pollID, &question, &createdAt, &expiresAt, &total, &version, &optionID, &text, &votes); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}

		id, err := uuid.Parse(pollID)
		if err != nil {
			return nil, fmt.Errorf("parse poll id: %w", err)
		}
		if current == nil || current.ID != id {
			current = &domain.Poll{
				ID:         id,
				Question:   question,
				CreatedAt:  fromMillis(createdAt),
				TotalVotes: total,
				Version:    version,
			}
			if expiresAt.Valid {
				exp := fromMillis(expiresAt.Int64)
				current.ExpiresAt = &exp
			}
			polls = append(polls, current)
		}

		optID, err := uuid.Parse(optionID)
		if err != nil {
			return nil, fmt.Errorf("parse option id: %w", err)
		}
		current.Options = append(current.Options, domain.Option{ID: optID, Text: text, Votes: votes})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate polls: %w", classify(err))
	}
	return polls, nil
}

// classify maps lock contention to a write conflict so the caller retries with fresh state.
func classify(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", domain.ErrWriteConflict, err)
		case sqlite3lib.SQLITE_CANTOPEN, sqlite3lib.SQLITE_IOERR:
			return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		}
	}
	return err
}

var _ ports.PollRepository = (*pollRepository)(nil)
