package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/leaderboard"
	"github.com/lijuuu/StakedChallengeService/internal/ledger"
	"github.com/lijuuu/StakedChallengeService/internal/locker"
	"github.com/lijuuu/StakedChallengeService/internal/metrics"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
)

const compensationTimeout = 30 * time.Second

// Publisher receives events after their store and ledger writes are both confirmed.
type Publisher interface {
	Publish(event model.Event)
}

// RankingCache is an optional read-through cache for ranking history.
type RankingCache interface {
	Get(ctx context.Context, challengeID string) ([]model.WeeklyRanking, bool, error)
	Set(ctx context.Context, challengeID string, rankings []model.WeeklyRanking) error
	Invalidate(ctx context.Context, challengeID string) error
}

type Deps struct {
	Store         repo.Store
	Ledger        ledger.Client
	Locker        locker.Locker
	Journal       repo.Journal
	Publisher     Publisher
	Ranking       *leaderboard.Engine
	Cache         RankingCache
	PlatformFeeBP int64
	Now           func() time.Time
	Log           *zap.Logger
	Metrics       *metrics.Metrics
}

// Coordinator sequences every state store mutation with its ledger call under a
// per-challenge lock, compensating the store when the ledger call fails.
type Coordinator struct {
	store   repo.Store
	ledger  ledger.Client
	locker  locker.Locker
	journal repo.Journal
	fanout  Publisher
	ranking *leaderboard.Engine
	cache   RankingCache
	feeBP   int64
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewCoordinator(d Deps) *Coordinator {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Coordinator{
		store:   d.Store,
		ledger:  d.Ledger,
		locker:  d.Locker,
		journal: d.Journal,
		fanout:  d.Publisher,
		ranking: d.Ranking,
		cache:   d.Cache,
		feeBP:   d.PlatformFeeBP,
		now:     now,
		log:     log.Named("coordinator"),
		metrics: m,
	}
}

func (c *Coordinator) withChallengeLock(ctx context.Context, challengeID string, fn func(ctx context.Context) error) error {
	unlock, err := c.locker.Lock(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("failed to lock challenge %s: %w", challengeID, err)
	}
	defer unlock()
	return fn(ctx)
}

// settle performs the ledger half of an operation whose store half is already committed.
// On failure it commits compensate in a fresh transaction and reports a LedgerError, or a
// FatalError when the compensation itself fails.
func (c *Coordinator) settle(
	ctx context.Context,
	challengeID, op string,
	call func(ctx context.Context) (string, error),
	compensate func(ctx context.Context, s repo.Store) error,
) (string, error) {
	c.record(ctx, repo.JournalEntry{ChallengeID: challengeID, Op: op, Phase: repo.PhaseIntent})

	ref, err := call(ctx)
	if err == nil {
		c.record(ctx, repo.JournalEntry{ChallengeID: challengeID, Op: op, Phase: repo.PhaseOutcome, Outcome: repo.OutcomeConfirmed, TxRef: ref})
		return ref, nil
	}

	// Compensation runs to completion even when the caller's context is already done.
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	compErr := c.store.Tx(compCtx, func(s repo.Store) error { return compensate(compCtx, s) })
	c.metrics.ObserveCompensation(op, compErr)
	if compErr != nil {
		c.log.Error("compensation failed, store and ledger have diverged",
			zap.String("challenge_id", challengeID),
			zap.String("op", op),
			zap.NamedError("ledger_error", err),
			zap.NamedError("compensation_error", compErr))
		c.record(compCtx, repo.JournalEntry{
			ChallengeID: challengeID, Op: op, Phase: repo.PhaseOutcome,
			Outcome: repo.OutcomeCompensationFailed, Error: compErr.Error(), Details: err.Error(),
		})
		return "", apperr.Fatal(op, err, compErr)
	}

	c.log.Warn("ledger call failed, store write compensated",
		zap.String("challenge_id", challengeID),
		zap.String("op", op),
		zap.String("outcome", ledger.OutcomeOf(err).String()),
		zap.Error(err))
	c.record(compCtx, repo.JournalEntry{
		ChallengeID: challengeID, Op: op, Phase: repo.PhaseOutcome,
		Outcome: repo.OutcomeCompensated, Error: err.Error(), Details: ledger.OutcomeOf(err).String(),
	})
	return "", apperr.Ledger(op, err)
}

func (c *Coordinator) record(ctx context.Context, e repo.JournalEntry) {
	if c.journal == nil {
		return
	}
	e.ID = uuid.NewString()
	e.At = c.now()
	if err := c.journal.Record(ctx, e); err != nil {
		c.log.Warn("failed to write ledger journal", zap.String("op", e.Op), zap.Error(err))
	}
}

func (c *Coordinator) publish(events ...model.Event) {
	if c.fanout == nil {
		return
	}
	for _, e := range events {
		if e.At.IsZero() {
			e.At = c.now()
		}
		c.fanout.Publish(e)
	}
}

func statusEvent(ch *model.Challenge) model.Event {
	return model.Event{
		Type:        model.EventChallengeStatusChanged,
		ChallengeID: ch.ID,
		Payload:     model.ChallengeStatusChangedPayload{ChallengeID: ch.ID, Status: ch.Status},
	}
}

// lookupErr maps repository not-found errors to NotFound and wraps everything else.
func lookupErr(op, what, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound(op, "%s %s not found", what, id)
	}
	return fmt.Errorf("%s: %w", op, err)
}
