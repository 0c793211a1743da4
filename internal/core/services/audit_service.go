package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const auditConcurrency = 8

type auditService struct {
	repo ports.PollRepository
	log  *zap.Logger
}

func NewAuditService(repo ports.PollRepository, log *zap.Logger) ports.AuditService {
	if log == nil {
		log = zap.NewNop()
	}
	return &auditService{
		repo: repo,
		log:  log,
	}
}

// AuditAll re-reads every poll and reports those whose total differs from the sum of
// their option counters.
func (s *auditService) AuditAll(ctx context.Context) ([]ports.TallyMismatch, error) {
	polls, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch all polls: %w", err)
	}

	var (
		mu         sync.Mutex
		mismatches []ports.TallyMismatch
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(auditConcurrency)

	for _, listed := range polls {
		pollID := listed.ID
		g.Go(func() error {
			poll, err := s.repo.GetByID(gctx, pollID)
			if err != nil {
				if errors.Is(err, domain.ErrPollNotFound) {
					return nil
				}
				return fmt.Errorf("failed to audit poll %s: %w", pollID, err)
			}

			counted := poll.CountedVotes()
			if counted == poll.TotalVotes {
				return nil
			}

			s.log.Warn("tally mismatch",
				zap.String("poll_id", pollID.String()),
				zap.Int64("total_votes", poll.TotalVotes),
				zap.Int64("counted_votes", counted))

			mu.Lock()
			mismatches = append(mismatches, ports.TallyMismatch{
				PollID:       pollID,
				TotalVotes:   poll.TotalVotes,
				CountedVotes: counted,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Info("tally audit finished", zap.Int("polls", len(polls)), zap.Int("mismatches", len(mismatches)))
	return mismatches, nil
}
