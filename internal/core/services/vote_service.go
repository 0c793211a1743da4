package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

type voteService struct {
	repo        ports.PollRepository
	broadcaster ports.Broadcaster
	clock       ports.Clock
	retry       RetryPolicy
	log         *zap.Logger
}

func NewVoteService(repo ports.PollRepository, broadcaster ports.Broadcaster, clock ports.Clock, retry RetryPolicy, log *zap.Logger) ports.VoteService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &voteService{
		repo:        repo,
		broadcaster: broadcaster,
		clock:       clock,
		retry:       retry,
		log:         log,
	}
}

// Vote gates the request on expiration and option membership, then commits it through the
// repository's conditional update. Write conflicts are retried with fresh state until the
// attempt budget runs out.
func (s *voteService) Vote(ctx context.Context, input ports.VoteInput) (*domain.Poll, error) {
	var (
		committed *domain.Poll
		attempts  int
	)

	apply := func() error {
		attempts++

		poll, err := s.repo.GetByID(ctx, input.PollID)
		if err != nil {
			return backoff.Permanent(err)
		}

		now := s.clock.Now()
		if !poll.IsVotable(now) {
			return backoff.Permanent(domain.ErrPollExpired)
		}
		if _, ok := poll.Option(input.OptionID); !ok {
			return backoff.Permanent(domain.ErrOptionNotFound)
		}

		updated, err := s.repo.ApplyVote(ctx, input.PollID, input.OptionID, now)
		if err != nil {
			if errors.Is(err, domain.ErrWriteConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		committed = updated
		return nil
	}

	notify := func(err error, wait time.Duration) {
		s.log.Debug("vote conflicted, retrying",
			zap.String("poll_id", input.PollID.String()),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(apply, s.newBackOff(ctx), notify); err != nil {
		return nil, s.voteFailed(input, attempts, err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Publish(input.PollID, committed.Clone())
	}

	s.log.Info("vote committed",
		zap.String("poll_id", input.PollID.String()),
		zap.String("option_id", input.OptionID.String()),
		zap.Int64("total_votes", committed.TotalVotes),
		zap.Int("attempts", attempts))
	return committed, nil
}

func (s *voteService) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retry.InitialInterval
	exp.MaxInterval = s.retry.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.retry.MaxAttempts-1)), ctx)
}

func (s *voteService) voteFailed(input ports.VoteInput, attempts int, err error) error {
	fields := []zap.Field{
		zap.String("poll_id", input.PollID.String()),
		zap.String("option_id", input.OptionID.String()),
		zap.Int("attempts", attempts),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, domain.ErrPollNotFound),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrPollExpired):
		s.log.Warn("vote rejected", fields...)
		return err
	case errors.Is(err, domain.ErrWriteConflict):
		s.log.Warn("vote retries exhausted", fields...)
		return fmt.Errorf("%w: gave up after %d attempts", domain.ErrWriteConflict, attempts)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Debug("vote abandoned by caller", fields...)
		return err
	default:
		s.log.Error("failed to vote", fields...)
		return fmt.Errorf("service: failed to vote: %w", err)
	}
}
