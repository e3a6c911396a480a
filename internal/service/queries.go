package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
)

func (c *Coordinator) GetChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	ch, err := c.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, lookupErr("get_challenge", "challenge", id, err)
	}
	return ch, nil
}

// ListChallenges returns challenges in any of statuses, or all of them when none are given.
func (c *Coordinator) ListChallenges(ctx context.Context, statuses ...model.ChallengeStatus) ([]model.Challenge, error) {
	for _, s := range statuses {
		switch s {
		case model.StatusUpcoming, model.StatusActive, model.StatusCompleted, model.StatusCancelled:
		default:
			return nil, apperr.Validation("list_challenges", "unknown status %q", s)
		}
	}
	return c.store.ListChallengesByStatus(ctx, statuses...)
}

func (c *Coordinator) ListParticipants(ctx context.Context, challengeID string, activeOnly bool) ([]model.Participant, error) {
	if _, err := c.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	return c.store.ListParticipants(ctx, challengeID, activeOnly)
}

// GetWeeklyRankings returns the ranking history oldest week first. Rankings are immutable
// once written, so they are served from the cache when one is configured.
func (c *Coordinator) GetWeeklyRankings(ctx context.Context, challengeID string) ([]model.WeeklyRanking, error) {
	if c.cache == nil {
		if _, err := c.GetChallenge(ctx, challengeID); err != nil {
			return nil, err
		}
		return c.store.ListWeeklyRankings(ctx, challengeID)
	}

	rankings, hit, err := c.cache.Get(ctx, challengeID)
	if err != nil {
		c.log.Warn("ranking cache read failed", zap.String("challenge_id", challengeID), zap.Error(err))
	} else if hit {
		return rankings, nil
	}

	if _, err := c.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	// The cache is filled under the challenge lock so an elimination awaiting its
	// ledger outcome is never cached.
	err = c.withChallengeLock(ctx, challengeID, func(ctx context.Context) error {
		var err error
		rankings, err = c.store.ListWeeklyRankings(ctx, challengeID)
		if err != nil {
			return err
		}
		if err := c.cache.Set(ctx, challengeID, rankings); err != nil {
			c.log.Warn("ranking cache write failed", zap.String("challenge_id", challengeID), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rankings, nil
}

func (c *Coordinator) GetWeeklyRanking(ctx context.Context, challengeID string, week int) (*model.WeeklyRanking, error) {
	wr, err := c.store.GetWeeklyRanking(ctx, challengeID, week)
	if err != nil {
		return nil, lookupErr("get_weekly_ranking", "ranking for week", strconv.Itoa(week), err)
	}
	return wr, nil
}

func (c *Coordinator) ListPayouts(ctx context.Context, challengeID string) ([]model.Payout, error) {
	if _, err := c.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	return c.store.ListPayouts(ctx, challengeID)
}

// Journal returns the recorded ledger operations for a challenge. An empty phase lists all.
func (c *Coordinator) Journal(ctx context.Context, challengeID string, phase repo.JournalPhase) ([]repo.JournalEntry, error) {
	if c.journal == nil {
		return nil, nil
	}
	return c.journal.List(ctx, challengeID, phase)
}
