package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

type pollService struct {
	repo        ports.PollRepository
	broadcaster ports.Broadcaster
	clock       ports.Clock
	log         *zap.Logger
}

func NewPollService(repo ports.PollRepository, broadcaster ports.Broadcaster, clock ports.Clock, log *zap.Logger) ports.PollService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &pollService{
		repo:        repo,
		broadcaster: broadcaster,
		clock:       clock,
		log:         log,
	}
}

func (s *pollService) Create(ctx context.Context, input ports.CreatePollInput) (*domain.Poll, error) {
	poll, err := domain.NewPoll(input.Question, input.Options, input.ExpiresAt, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, poll); err != nil {
		s.log.Error("failed to save poll", zap.String("poll_id", poll.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("service: failed to create poll: %w", err)
	}

	s.log.Info("poll created",
		zap.String("poll_id", poll.ID.String()),
		zap.Int("options", len(poll.Options)),
		zap.Timep("expires_at", poll.ExpiresAt))
	return poll, nil
}

func (s *pollService) GetPoll(ctx context.Context, id string) (*domain.Poll, error) {
	pollID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrInvalidPollID
	}

	return s.repo.GetByID(ctx, pollID)
}

func (s *pollService) ListPolls(ctx context.Context) ([]*domain.Poll, error) {
	polls, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("failed to list polls", zap.Error(err))
		return nil, fmt.Errorf("service: failed to list polls: %w", err)
	}
	return polls, nil
}

func (s *pollService) DeletePoll(ctx context.Context, id string) error {
	pollID, err := uuid.Parse(id)
	if err != nil {
		return domain.ErrInvalidPollID
	}

	if err := s.repo.Delete(ctx, pollID); err != nil {
		if errors.Is(err, domain.ErrPollNotFound) {
			return err
		}
		s.log.Error("failed to delete poll", zap.String("poll_id", id), zap.Error(err))
		return fmt.Errorf("service: failed to delete poll: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Drop(pollID)
	}
	s.log.Info("poll deleted", zap.String("poll_id", id))
	return nil
}

func (s *pollService) Health(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
