package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
)

func TestReconcileConsistentPools(t *testing.T) {
	h := newHarness(t)
	ch := h.create(t, 5, 4)
	h.join(t, ch.ID, "alice", "bob", "carol")
	require.NoError(t, h.coord.LeaveChallenge(context.Background(), ch.ID, "carol"))

	divergences, err := h.coord.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, divergences)
}

func TestReconcileReportsDivergence(t *testing.T) {
	h := newHarness(t)
	ch := h.create(t, 5, 4)
	other := h.create(t, 5, 4)
	h.join(t, ch.ID, "alice", "bob")
	h.join(t, other.ID, "carol")

	h.ledger.SetStake(ch.LedgerRef, "addr-alice", 1)

	divergences, err := h.coord.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, divergences, 1)
	d := divergences[0]
	assert.Equal(t, ch.ID, d.ChallengeID)
	assert.Equal(t, 2*testNet, d.PoolAmount)
	assert.Equal(t, 2*testNet, d.StoreStakes)
	assert.Equal(t, testNet+1, d.LedgerStake)
	assert.True(t, apperr.IsConsistency(d.Err))

	// Nothing is corrected.
	assert.Equal(t, 2*testNet, h.challenge(t, ch.ID).PoolAmount)

	entries, err := h.journal.List(context.Background(), ch.ID, repo.PhaseDivergence)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2*testNet, entries[0].StoreAmount)
	assert.Equal(t, testNet+1, entries[0].LedgerAmt)
}

func TestReconcileSkipsUnreachableLedger(t *testing.T) {
	h := newHarness(t)
	ch := h.create(t, 5, 4)
	h.join(t, ch.ID, "alice")
	h.ledger.FailNext("aggregate_stake", notAccepted("aggregate_stake"))

	divergences, err := h.coord.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, divergences)
}
