package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/leaderboard"
	"github.com/lijuuu/StakedChallengeService/internal/ledger"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
)

type EliminationResult struct {
	Ranking       *model.WeeklyRanking `json:"ranking"`
	Eliminated    *model.Participant   `json:"eliminated"`
	StatusChanged bool                 `json:"status_changed"`
}

// ProcessElimination runs the next due elimination round of the challenge.
func (c *Coordinator) ProcessElimination(ctx context.Context, challengeID string) (*EliminationResult, error) {
	ch, err := c.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, lookupErr("process_elimination", "challenge", challengeID, err)
	}
	return c.eliminateWeek(ctx, challengeID, ch.CurrentWeek+1)
}

// eliminateWeek ranks the active participants for week, records the ranking and
// eliminates the lowest ranked one. A week that was already recorded is a StateConflict.
func (c *Coordinator) eliminateWeek(ctx context.Context, challengeID string, week int) (*EliminationResult, error) {
	const op = "process_elimination"

	var (
		ch       *model.Challenge
		res      = &EliminationResult{}
		prevWeek int
	)
	err := c.withChallengeLock(ctx, challengeID, func(ctx context.Context) error {
		err := c.store.Tx(ctx, func(s repo.Store) error {
			var err error
			ch, err = s.LockChallenge(ctx, challengeID)
			if err != nil {
				return lookupErr(op, "challenge", challengeID, err)
			}
			if ch.Status != model.StatusActive {
				return apperr.StateConflict(op, "challenge is %s", ch.Status)
			}
			if week != ch.CurrentWeek+1 {
				return apperr.StateConflict(op, "week %d already processed or out of order (current week %d)", week, ch.CurrentWeek)
			}
			if expected := c.ranking.ExpectedWeek(ch.StartTime, c.now()); week > expected {
				return apperr.StateConflict(op, "week %d has not ended yet", week)
			}
			if _, to := c.ranking.Window(ch.StartTime, week); to.After(ch.EndTime) {
				return apperr.StateConflict(op, "week %d ends after the challenge", week)
			}
			if _, err := s.GetWeeklyRanking(ctx, challengeID, week); err == nil {
				return apperr.StateConflict(op, "week %d already ranked", week)
			} else if !errors.Is(err, repo.ErrNotFound) {
				return err
			}

			active, err := s.ListParticipants(ctx, challengeID, true)
			if err != nil {
				return err
			}
			if len(active) < model.MinActiveParticipants {
				return apperr.StateConflict(op, "only %d active participants", len(active))
			}

			result, err := c.ranking.Rank(ctx, ch.StartTime, week, active, s)
			if err != nil {
				return err
			}

			loser := result.Eliminated.Participant
			wr := &model.WeeklyRanking{
				ID:                      uuid.NewString(),
				ChallengeID:             challengeID,
				Week:                    week,
				EliminatedParticipantID: loser.ID,
				CreatedAt:               c.now(),
				Entries:                 result.Entries,
			}
			if err := s.CreateWeeklyRanking(ctx, wr); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return apperr.StateConflict(op, "week %d already ranked", week)
				}
				return err
			}

			at := c.now()
			round := week
			loser.IsActive = false
			loser.EliminatedAt = &at
			loser.EliminationRound = &round
			if err := s.SaveParticipant(ctx, &loser); err != nil {
				return err
			}

			prevWeek = ch.CurrentWeek
			ch.CurrentWeek = week
			if len(active)-1 <= 1 {
				ch.Status = model.StatusCompleted
				res.StatusChanged = true
			}
			if err := s.SaveChallenge(ctx, ch); err != nil {
				return err
			}

			res.Ranking = wr
			res.Eliminated = &loser
			return nil
		})
		if err != nil {
			return err
		}
		// Dropped while still locked whatever the ledger outcome, so no reader can
		// cache a ranking that is later compensated away.
		defer c.invalidateRankings(ctx, challengeID)

		_, err = c.settle(ctx, challengeID, "eliminate",
			func(ctx context.Context) (string, error) {
				tx, err := c.ledger.Eliminate(ctx, ch.LedgerRef, week, res.Eliminated.Address)
				return string(tx), err
			},
			func(ctx context.Context, s repo.Store) error {
				cur, err := s.LockChallenge(ctx, challengeID)
				if err != nil {
					return err
				}
				if err := s.DeleteWeeklyRanking(ctx, challengeID, week); err != nil {
					return err
				}
				p := res.Eliminated
				p.IsActive = true
				p.EliminatedAt = nil
				p.EliminationRound = nil
				if err := s.SaveParticipant(ctx, p); err != nil {
					return err
				}
				cur.CurrentWeek = prevWeek
				if res.StatusChanged {
					cur.Status = model.StatusActive
				}
				return s.SaveChallenge(ctx, cur)
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	c.metrics.Eliminations.Inc()
	c.log.Info("participant eliminated",
		zap.String("challenge_id", challengeID),
		zap.Int("week", week),
		zap.String("participant_id", res.Eliminated.ID))

	events := []model.Event{{
		Type:        model.EventParticipantEliminated,
		ChallengeID: challengeID,
		Payload: model.ParticipantEliminatedPayload{
			ParticipantID:  res.Eliminated.ID,
			UserID:         res.Eliminated.UserID,
			Week:           week,
			TasksCompleted: entryFor(res.Ranking, res.Eliminated.ID).TasksCompleted,
		},
	}}
	if res.StatusChanged {
		events = append(events, statusEvent(ch))
	}
	c.publish(events...)
	return res, nil
}

func entryFor(wr *model.WeeklyRanking, participantID string) model.ParticipantRanking {
	for _, e := range wr.Entries {
		if e.ParticipantID == participantID {
			return e
		}
	}
	return model.ParticipantRanking{}
}

// DistributePool pays the pool of a completed challenge out to its remaining active
// participants by final rank. A challenge is distributed at most once.
func (c *Coordinator) DistributePool(ctx context.Context, challengeID string) ([]model.Payout, error) {
	const op = "distribute_pool"

	var (
		ch      *model.Challenge
		payouts []model.Payout
		plan    *leaderboard.Plan
	)
	err := c.withChallengeLock(ctx, challengeID, func(ctx context.Context) error {
		var winners []model.Participant
		err := c.store.Tx(ctx, func(s repo.Store) error {
			var err error
			ch, err = s.LockChallenge(ctx, challengeID)
			if err != nil {
				return lookupErr(op, "challenge", challengeID, err)
			}
			if ch.Status != model.StatusCompleted {
				return apperr.StateConflict(op, "challenge is %s", ch.Status)
			}
			if ch.Distributed() {
				return apperr.StateConflict(op, "pool already distributed at %s", ch.DistributedAt.Format(time.RFC3339))
			}

			active, err := s.ListParticipants(ctx, challengeID, true)
			if err != nil {
				return err
			}
			winners = leaderboard.SortForDistribution(active)
			plan, err = leaderboard.Distribute(ch.PoolAmount, c.feeBP, winners)
			if errors.Is(err, leaderboard.ErrNoWinners) {
				return apperr.StateConflict(op, "no active participants to pay out")
			}
			if err != nil {
				return apperr.Validation(op, "%v", err)
			}

			at := c.now()
			payouts = make([]model.Payout, 0, len(plan.Shares)+1)
			for i, sh := range plan.Shares {
				rank := sh.Rank
				w := winners[i]
				w.FinalRank = &rank
				if err := s.SaveParticipant(ctx, &w); err != nil {
					return err
				}
				payouts = append(payouts, model.Payout{
					ID:            uuid.NewString(),
					ChallengeID:   challengeID,
					ParticipantID: sh.ParticipantID,
					Address:       sh.Address,
					Kind:          model.PayoutShare,
					Rank:          sh.Rank,
					Amount:        sh.Amount,
					CreatedAt:     at,
				})
			}
			payouts = append(payouts, model.Payout{
				ID:          uuid.NewString(),
				ChallengeID: challengeID,
				Kind:        model.PayoutFee,
				Amount:      plan.PlatformTake(),
				CreatedAt:   at,
			})
			if err := s.CreatePayouts(ctx, payouts); err != nil {
				return err
			}
			ch.DistributedAt = &at
			return s.SaveChallenge(ctx, ch)
		})
		if err != nil {
			return err
		}

		_, err = c.settle(ctx, challengeID, "distribute",
			func(ctx context.Context) (string, error) {
				req := make([]ledger.Payout, 0, len(plan.Shares))
				for _, sh := range plan.Shares {
					req = append(req, ledger.Payout{Address: sh.Address, Amount: sh.Amount})
				}
				tx, err := c.ledger.Distribute(ctx, ch.LedgerRef, req)
				return string(tx), err
			},
			func(ctx context.Context, s repo.Store) error {
				cur, err := s.LockChallenge(ctx, challengeID)
				if err != nil {
					return err
				}
				if err := s.DeletePayouts(ctx, challengeID); err != nil {
					return err
				}
				for i := range winners {
					w := winners[i]
					w.FinalRank = nil
					if err := s.SaveParticipant(ctx, &w); err != nil {
						return err
					}
				}
				cur.DistributedAt = nil
				return s.SaveChallenge(ctx, cur)
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	c.metrics.Distributions.Inc()
	c.log.Info("pool distributed",
		zap.String("challenge_id", challengeID),
		zap.Int64("pool", plan.Pool),
		zap.Int64("platform_take", plan.PlatformTake()),
		zap.Int("winners", len(plan.Shares)))
	c.publish(model.Event{
		Type:        model.EventPoolDistributed,
		ChallengeID: challengeID,
		Payload:     model.PoolDistributedPayload{Fee: plan.PlatformTake(), Payouts: payouts},
	})
	return payouts, nil
}

func (c *Coordinator) invalidateRankings(ctx context.Context, challengeID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, challengeID); err != nil {
		c.log.Warn("failed to invalidate ranking cache", zap.String("challenge_id", challengeID), zap.Error(err))
	}
}
