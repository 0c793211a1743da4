package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

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
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	queryPoll := `
		INSERT INTO polls (id, question, created_at, expires_at, total_votes, version)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, queryPoll, poll.ID, poll.Question, poll.CreatedAt, poll.ExpiresAt, poll.TotalVotes, poll.Version)
	if err != nil {
		return fmt.Errorf("failed to insert poll: %w", classify(err))
	}

	queryOption := `
		INSERT INTO poll_options (id, poll_id, position, text, vote_count)
		VALUES ($1, $2, $3, $4, $5)
	`
	stmt, err := tx.PrepareContext(ctx, queryOption)
	if err != nil {
		return fmt.Errorf("failed to prepare option statement: %w", classify(err))
	}
	defer stmt.Close()

	for i, opt := range poll.Options {
		_, err = stmt.ExecContext(ctx, opt.ID, poll.ID, i, opt.Text, opt.Votes)
		if err != nil {
			return fmt.Errorf("failed to insert option: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}

	r.log.Debug("poll saved", zap.String("poll_id", poll.ID.String()), zap.Int("options", len(poll.Options)))
	return nil
}

// GetByID reads the poll and its options in a single statement so the counters belong to
// the same committed state.
func (r *pollRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	rows, err := r.db.QueryContext(ctx, selectPollWithOptions+`WHERE p.id = $1 ORDER BY o.position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", classify(err))
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
		return nil, fmt.Errorf("failed to list polls: %w", classify(err))
	}
	defer rows.Close()

	return scanPolls(rows)
}

func (r *pollRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete poll: %w", classify(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}
	if affected == 0 {
		return domain.ErrPollNotFound
	}

	r.log.Debug("poll deleted", zap.String("poll_id", id.String()))
	return nil
}

// ApplyVote bumps the poll row and the option row in one conditional statement. The poll row
// lock taken by that statement serializes voters on the same poll until commit, so the option
// counters read afterwards are exactly the committed state. Expiration is checked against at and
// again against the database clock once the row lock is held, so a vote that waited on the lock
// past the deadline is rolled back.
func (r *pollRepository) ApplyVote(ctx context.Context, pollID, optionID uuid.UUID, at time.Time) (*domain.Poll, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	queryVote := `
		WITH bumped_poll AS (
			UPDATE polls
			SET total_votes = total_votes + 1, version = version + 1
			WHERE id = $1
			  AND (expires_at IS NULL OR expires_at > $3)
			  AND EXISTS (SELECT 1 FROM poll_options WHERE id = $2 AND poll_id = $1)
			RETURNING id, question, created_at, expires_at, total_votes, version, clock_timestamp() AS locked_at
		), bumped_option AS (
			UPDATE poll_options
			SET vote_count = vote_count + 1
			WHERE id = $2 AND poll_id IN (SELECT id FROM bumped_poll)
			RETURNING id
		)
		SELECT p.id, p.question, p.created_at, p.expires_at, p.total_votes, p.version, p.locked_at
		FROM bumped_poll p
		WHERE EXISTS (SELECT 1 FROM bumped_option)
	`

	var (
		poll     domain.Poll
		lockedAt time.Time
	)
	err = tx.QueryRowContext(ctx, queryVote, pollID, optionID, at).Scan(
		&poll.ID, &poll.Question, &poll.CreatedAt, &poll.ExpiresAt, &poll.TotalVotes, &poll.Version, &lockedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.rejection(ctx, tx, pollID, optionID)
		}
		return nil, fmt.Errorf("failed to apply vote: %w", classify(err))
	}
	if !poll.IsVotable(lockedAt) {
		r.log.Debug("vote reached the poll after expiration",
			zap.String("poll_id", pollID.String()),
			zap.Time("locked_at", lockedAt))
		return nil, domain.ErrPollExpired
	}

	options, err := fetchOptions(ctx, tx, pollID)
	if err != nil {
		return nil, err
	}
	poll.Options = options
	normalizeTimes(&poll)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit vote: %w", classify(err))
	}

	r.log.Debug("vote applied",
		zap.String("poll_id", pollID.String()),
		zap.String("option_id", optionID.String()),
		zap.Int64("version", poll.Version))
	return &poll, nil
}

// rejection explains why the conditional update matched nothing.
func (r *pollRepository) rejection(ctx context.Context, tx *sql.Tx, pollID, optionID uuid.UUID) error {
	query := `
		SELECT EXISTS (SELECT 1 FROM poll_options WHERE id = $2 AND poll_id = p.id)
		FROM polls p
		WHERE p.id = $1
	`
	var optionExists bool
	err := tx.QueryRowContext(ctx, query, pollID, optionID).Scan(&optionExists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrPollNotFound
	case err != nil:
		return fmt.Errorf("failed to classify rejected vote: %w", classify(err))
	case !optionExists:
		return domain.ErrOptionNotFound
	default:
		return domain.ErrPollExpired
	}
}

func (r *pollRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func fetchOptions(ctx context.Context, tx *sql.Tx, pollID uuid.UUID) ([]domain.Option, error) {
	queryOptions := `
		SELECT id, text, vote_count
		FROM poll_options
		WHERE poll_id = $1
		ORDER BY position
	`
	rows, err := tx.QueryContext(ctx, queryOptions, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to get poll options: %w", classify(err))
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.ID, &opt.Text, &opt.Votes); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating options: %w", classify(err))
	}
	return options, nil
}

// scanPolls folds joined poll/option rows, ordered by poll, into polls.
func scanPolls(rows *sql.Rows) ([]*domain.Poll, error) {
	var (
		polls   []*domain.Poll
		current *domain.Poll
	)
	for rows.Next() {
		var (
			poll domain.Poll
			opt  domain.Option
		)
		err := rows.Scan(
			&poll.ID, &poll.Question, &poll.CreatedAt, &poll.ExpiresAt, &poll.TotalVotes, &poll.Version,
			&opt.ID, &opt.Text, &opt.Votes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}

		if current == nil || current.ID != poll.ID {
			normalizeTimes(&poll)
			current = &poll
			polls = append(polls, current)
		}
		current.Options = append(current.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating polls: %w", classify(err))
	}
	return polls, nil
}

func normalizeTimes(poll *domain.Poll) {
	poll.CreatedAt = poll.CreatedAt.UTC()
	if poll.ExpiresAt != nil {
		exp := poll.ExpiresAt.UTC()
		poll.ExpiresAt = &exp
	}
}
