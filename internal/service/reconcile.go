package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
)

// Divergence is a challenge whose store accounting disagrees with the ledger.
type Divergence struct {
	ChallengeID string `json:"challenge_id"`
	PoolAmount  int64  `json:"pool_amount"`
	StoreStakes int64  `json:"store_stakes"`
	LedgerStake int64  `json:"ledger_stake"`
	Err         error  `json:"-"`
}

func (d Divergence) String() string {
	return fmt.Sprintf("challenge %s: pool_amount=%d participant_stakes=%d ledger_stake=%d",
		d.ChallengeID, d.PoolAmount, d.StoreStakes, d.LedgerStake)
}

// Reconcile compares every deployed challenge's pool_amount with the ledger's aggregate
// stake and the sum of participant stakes. Divergences are journaled and returned, never
// corrected. A failure to audit one challenge does not stop the others.
func (c *Coordinator) Reconcile(ctx context.Context) ([]Divergence, error) {
	challenges, err := c.store.ListChallengesByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}

	var divergences []Divergence
	for i := range challenges {
		if err := ctx.Err(); err != nil {
			return divergences, err
		}
		ch := &challenges[i]
		if ch.LedgerRef == "" {
			continue
		}
		d, err := c.reconcileOne(ctx, ch)
		if err != nil {
			c.log.Warn("reconciliation skipped challenge", zap.String("challenge_id", ch.ID), zap.Error(err))
			continue
		}
		if d != nil {
			divergences = append(divergences, *d)
		}
	}

	c.log.Info("reconciliation finished", zap.Int("challenges", len(challenges)), zap.Int("divergences", len(divergences)))
	return divergences, nil
}

func (c *Coordinator) reconcileOne(ctx context.Context, ch *model.Challenge) (*Divergence, error) {
	// Holding the lock keeps a half-settled operation from showing up as a divergence.
	var d *Divergence
	err := c.withChallengeLock(ctx, ch.ID, func(ctx context.Context) error {
		cur, err := c.store.GetChallenge(ctx, ch.ID)
		if err != nil {
			return err
		}
		stakes, err := c.store.SumStakes(ctx, ch.ID)
		if err != nil {
			return err
		}
		onLedger, err := c.ledger.AggregateStake(ctx, cur.LedgerRef)
		if err != nil {
			return err
		}
		if onLedger == cur.PoolAmount && stakes == cur.PoolAmount {
			return nil
		}

		d = &Divergence{ChallengeID: cur.ID, PoolAmount: cur.PoolAmount, StoreStakes: stakes, LedgerStake: onLedger}
		d.Err = apperr.Consistency("reconcile", "%s", d.String())
		return nil
	})
	if err != nil || d == nil {
		return nil, err
	}

	c.metrics.Divergences.Inc()
	c.log.Error("pool diverged from ledger",
		zap.String("challenge_id", d.ChallengeID),
		zap.Int64("pool_amount", d.PoolAmount),
		zap.Int64("store_stakes", d.StoreStakes),
		zap.Int64("ledger_stake", d.LedgerStake),
		zap.Error(d.Err))
	c.record(ctx, repo.JournalEntry{
		ChallengeID: d.ChallengeID,
		Op:          "reconcile",
		Phase:       repo.PhaseDivergence,
		StoreAmount: d.PoolAmount,
		LedgerAmt:   d.LedgerStake,
		Error:       d.Err.Error(),
		Details:     fmt.Sprintf("participant_stakes=%d", d.StoreStakes),
	})
	return d, nil
}
