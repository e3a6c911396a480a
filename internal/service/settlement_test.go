package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/ledger"
	"github.com/lijuuu/StakedChallengeService/internal/model"
)

// weekOneScores sets up alice, bob and carol (joined in that order) with 3, 1 and 1
// completions in week 1 and moves the clock into week 2.
func weekOneScores(t *testing.T, h *harness) *model.Challenge {
	t.Helper()
	ch := h.create(t, 5, 4)
	h.join(t, ch.ID, "alice", "bob", "carol")
	h.enterWeek(ch, 1)
	h.tasks(t, ch.ID, "alice", 3)
	h.tasks(t, ch.ID, "bob", 1)
	h.tasks(t, ch.ID, "carol", 1)
	h.enterWeek(ch, 2)
	return h.challenge(t, ch.ID)
}

func TestProcessEliminationRanksAndEliminates(t *testing.T) {
	h := newHarness(t)
	ch := weekOneScores(t, h)
	h.events.reset()

	res, err := h.coord.ProcessElimination(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.False(t, res.StatusChanged)

	bob := h.participant(t, ch.ID, "bob")
	assert.Equal(t, bob.ID, res.Eliminated.ID, "earliest joiner among the fewest completions goes")
	assert.False(t, bob.IsActive)
	require.NotNil(t, bob.EliminationRound)
	assert.Equal(t, 1, *bob.EliminationRound)
	assert.NotNil(t, bob.EliminatedAt)

	wr, err := h.coord.GetWeeklyRanking(context.Background(), ch.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, wr.EliminatedParticipantID)
	require.Len(t, wr.Entries, 3)
	alice, carol := h.participant(t, ch.ID, "alice"), h.participant(t, ch.ID, "carol")
	assert.Equal(t, model.ParticipantRanking{ParticipantID: alice.ID, TasksCompleted: 3, TasksMissed: 2, Rank: 1, Points: 30}, stripIDs(wr.Entries[0]))
	assert.Equal(t, model.ParticipantRanking{ParticipantID: carol.ID, TasksCompleted: 1, TasksMissed: 4, Rank: 2, Points: 10}, stripIDs(wr.Entries[1]))
	assert.Equal(t, model.ParticipantRanking{ParticipantID: bob.ID, TasksCompleted: 1, TasksMissed: 4, Rank: 3, Points: 10}, stripIDs(wr.Entries[2]))

	stored := h.challenge(t, ch.ID)
	assert.Equal(t, 1, stored.CurrentWeek)
	assert.Equal(t, model.StatusActive, stored.Status)
	assert.Equal(t, 3*testNet, stored.PoolAmount)

	calls := h.ledger.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, ledger.Call{Op: "eliminate", Ref: ch.LedgerRef, Address: "addr-bob", Week: 1}, last)
	assert.Equal(t, []model.EventType{model.EventParticipantEliminated}, h.events.types())
}

func stripIDs(e model.ParticipantRanking) model.ParticipantRanking {
	e.ID = 0
	e.RankingID = ""
	return e
}

func TestProcessEliminationIsOncePerWeek(t *testing.T) {
	h := newHarness(t)
	ch := weekOneScores(t, h)
	ctx := context.Background()

	_, err := h.coord.ProcessElimination(ctx, ch.ID)
	require.NoError(t, err)

	// Week 2 has not ended yet.
	_, err = h.coord.ProcessElimination(ctx, ch.ID)
	assert.True(t, apperr.IsStateConflict(err), "got %v", err)

	// Replaying week 1 is refused.
	_, err = h.coord.eliminateWeek(ctx, ch.ID, 1)
	assert.True(t, apperr.IsStateConflict(err), "got %v", err)

	rankings, err := h.coord.GetWeeklyRankings(ctx, ch.ID)
	require.NoError(t, err)
	assert.Len(t, rankings, 1)
	assert.Equal(t, 1, countOps(h.ledger.Calls(), "eliminate"))
}

func TestProcessEliminationNotDueBeforeWeekEnds(t *testing.T) {
	h := newHarness(t)
	ch := h.create(t, 5, 4)
	h.join(t, ch.ID, "alice", "bob")
	h.enterWeek(ch, 1)

	_, err := h.coord.ProcessElimination(context.Background(), ch.ID)
	assert.True(t, apperr.IsStateConflict(err))
	assert.Zero(t, countOps(h.ledger.Calls(), "eliminate"))
}

func TestProcessEliminationRequiresActiveChallenge(t *testing.T) {
	h := newHarness(t)
	ch := h.create(t, 5, 4)
	h.join(t, ch.ID, "alice")
	h.enterWeek(ch, 2)

	_, err := h.coord.ProcessElimination(context.Background(), ch.ID)
	assert.True(t, apperr.IsStateConflict(err))

	_, err = h.coord.ProcessElimination(context.Background(), "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestEliminationDownToOneCompletesChallenge(t *testing.T) {
	h := newHarness(t)
	ch := h.create(t, 5, 4)
	h.join(t, ch.ID, "alice", "bob")
	h.enterWeek(ch, 1)
	h.tasks(t, ch.ID, "bob", 2)
	h.enterWeek(ch, 2)
	h.events.reset()

	res, err := h.coord.ProcessElimination(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.True(t, res.StatusChanged)
	assert.Equal(t, h.participant(t, ch.ID, "alice").ID, res.Eliminated.ID)
	assert.Equal(t, model.StatusCompleted, h.challenge(t, ch.ID).Status)
	assert.Equal(t, []model.EventType{model.EventParticipantEliminated, model.EventChallengeStatusChanged}, h.events.types())
}

func TestEliminationCompensatesLedgerFailure(t *testing.T) {
	h := newHarness(t)
	ch := weekOneScores(t, h)
	ctx := context.Background()

	h.ledger.FailNext("eliminate", notAccepted("eliminate"))
	_, err := h.coord.ProcessElimination(ctx, ch.ID)
	assert.True(t, apperr.IsLedger(err))

	stored := h.challenge(t, ch.ID)
	assert.Equal(t, 0, stored.CurrentWeek)
	assert.Equal(t, model.StatusActive, stored.Status)
	bob := h.participant(t, ch.ID, "bob")
	assert.True(t, bob.IsActive)
	assert.Nil(t, bob.EliminationRound)
	_, err = h.coord.GetWeeklyRanking(ctx, ch.ID, 1)
	assert.True(t, apperr.IsNotFound(err))

	res, err := h.coord.ProcessElimination(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, res.Eliminated.ID)
}

func TestWeeklyRankingsCache(t *testing.T) {
	h := newHarness(t)
	ch := weekOneScores(t, h)
	ctx := context.Background()

	empty, err := h.coord.GetWeeklyRankings(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = h.coord.ProcessElimination(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.cache.invalidated)

	first, err := h.coord.GetWeeklyRankings(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	second, err := h.coord.GetWeeklyRankings(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.cache.hits)

	_, err = h.coord.GetWeeklyRankings(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestRankingsReadDuringFailedEliminationAreNotCached(t *testing.T) {
	h := newHarness(t)
	ch := weekOneScores(t, h)
	ctx := context.Background()

	type read struct {
		rankings []model.WeeklyRanking
		err      error
	}
	reads := make(chan read, 1)
	h.hook.beforeEliminate = func() error {
		go func() {
			r, err := h.coord.GetWeeklyRankings(ctx, ch.ID)
			reads <- read{r, err}
		}()
		time.Sleep(20 * time.Millisecond)
		return notAccepted("eliminate")
	}

	_, err := h.coord.ProcessElimination(ctx, ch.ID)
	assert.True(t, apperr.IsLedger(err))
	assert.Equal(t, 1, h.cache.invalidated)

	concurrent := <-reads
	require.NoError(t, concurrent.err)
	assert.Empty(t, concurrent.rankings)

	after, err := h.coord.GetWeeklyRankings(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, after)
	assert.True(t, h.participant(t, ch.ID, "bob").IsActive)

	h.hook.beforeEliminate = nil
	_, err = h.coord.ProcessElimination(ctx, ch.ID)
	require.NoError(t, err)
	rankings, err := h.coord.GetWeeklyRankings(ctx, ch.ID)
	require.NoError(t, err)
	assert.Len(t, rankings, 1)
}

// completedAfterWeekOne leaves alice (3 completions) and carol (1) as winners.
func completedAfterWeekOne(t *testing.T, h *harness) *model.Challenge {
	t.Helper()
	ch := weekOneScores(t, h)
	_, err := h.coord.ProcessElimination(context.Background(), ch.ID)
	require.NoError(t, err)
	h.clock.Set(ch.EndTime)
	_, err = h.coord.CompleteChallenge(context.Background(), ch.ID)
	require.NoError(t, err)
	return h.challenge(t, ch.ID)
}

func TestDistributePool(t *testing.T) {
	h := newHarness(t)
	ch := completedAfterWeekOne(t, h)
	ctx := context.Background()
	h.events.reset()

	payouts, err := h.coord.DistributePool(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 3)

	// pool 285000, fee 14250, 270750 split 2:1.
	alice, carol := h.participant(t, ch.ID, "alice"), h.participant(t, ch.ID, "carol")
	assert.Equal(t, alice.ID, payouts[0].ParticipantID)
	assert.Equal(t, int64(180500), payouts[0].Amount)
	assert.Equal(t, carol.ID, payouts[1].ParticipantID)
	assert.Equal(t, int64(90250), payouts[1].Amount)
	assert.Equal(t, model.PayoutFee, payouts[2].Kind)
	assert.Equal(t, int64(14250), payouts[2].Amount)

	var total int64
	for _, p := range payouts {
		total += p.Amount
	}
	assert.Equal(t, ch.PoolAmount, total)

	require.NotNil(t, alice.FinalRank)
	assert.Equal(t, 1, *alice.FinalRank)
	require.NotNil(t, carol.FinalRank)
	assert.Equal(t, 2, *carol.FinalRank)
	assert.Nil(t, h.participant(t, ch.ID, "bob").FinalRank)

	assert.Equal(t, []ledger.Payout{
		{Address: "addr-alice", Amount: 180500},
		{Address: "addr-carol", Amount: 90250},
	}, h.ledger.Distribution(ch.LedgerRef))
	assert.Equal(t, []model.EventType{model.EventPoolDistributed}, h.events.types())

	stored, err := h.coord.ListPayouts(ctx, ch.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.True(t, h.challenge(t, ch.ID).Distributed())

	_, err = h.coord.DistributePool(ctx, ch.ID)
	assert.True(t, apperr.IsStateConflict(err), "second distribution: %v", err)
	assert.Equal(t, 1, countOps(h.ledger.Calls(), "distribute"))
}

func TestDistributeCompensatesLedgerFailure(t *testing.T) {
	h := newHarness(t)
	ch := completedAfterWeekOne(t, h)
	ctx := context.Background()

	h.ledger.FailNext("distribute", notAccepted("distribute"))
	_, err := h.coord.DistributePool(ctx, ch.ID)
	assert.True(t, apperr.IsLedger(err))

	assert.False(t, h.challenge(t, ch.ID).Distributed())
	assert.Nil(t, h.participant(t, ch.ID, "alice").FinalRank)
	payouts, err := h.coord.ListPayouts(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, payouts)

	_, err = h.coord.DistributePool(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, h.challenge(t, ch.ID).Distributed())
}

func TestDistributeRequiresCompletedChallenge(t *testing.T) {
	h := newHarness(t)
	ch := weekOneScores(t, h)

	_, err := h.coord.DistributePool(context.Background(), ch.ID)
	assert.True(t, apperr.IsStateConflict(err))
	assert.Zero(t, countOps(h.ledger.Calls(), "distribute"))
}

func countOps(calls []ledger.Call, op string) int {
	n := 0
	for _, c := range calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
