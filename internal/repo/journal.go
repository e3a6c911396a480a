package repo

import (
	"context"
	"sort"
	"sync"
	"time"
)

type JournalPhase string

const (
	PhaseIntent     JournalPhase = "intent"
	PhaseOutcome    JournalPhase = "outcome"
	PhaseDivergence JournalPhase = "divergence"
)

const (
	OutcomeConfirmed          = "confirmed"
	OutcomeFailed             = "failed"
	OutcomeCompensated        = "compensated"
	OutcomeCompensationFailed = "compensation_failed"
)

// JournalEntry records one step of a ledger operation or a reconciliation finding.
type JournalEntry struct {
	ID          string       `bson:"_id" json:"id"`
	ChallengeID string       `bson:"challenge_id" json:"challenge_id"`
	Op          string       `bson:"op" json:"op"`
	Phase       JournalPhase `bson:"phase" json:"phase"`
	Outcome     string       `bson:"outcome,omitempty" json:"outcome,omitempty"`
	TxRef       string       `bson:"tx_ref,omitempty" json:"tx_ref,omitempty"`
	Error       string       `bson:"error,omitempty" json:"error,omitempty"`
	StoreAmount int64        `bson:"store_amount,omitempty" json:"store_amount,omitempty"`
	LedgerAmt   int64        `bson:"ledger_amount,omitempty" json:"ledger_amount,omitempty"`
	Details     string       `bson:"details,omitempty" json:"details,omitempty"`
	At          time.Time    `bson:"at" json:"at"`
}

type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
	List(ctx context.Context, challengeID string, phase JournalPhase) ([]JournalEntry, error)
}

// MemoryJournal keeps entries in process. It backs tests and runs without MONGOURL.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Record(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

// List filters by challenge and phase; empty arguments match everything.
func (j *MemoryJournal) List(_ context.Context, challengeID string, phase JournalPhase) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []JournalEntry
	for _, e := range j.entries {
		if challengeID != "" && e.ChallengeID != challengeID {
			continue
		}
		if phase != "" && e.Phase != phase {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].At.Before(out[b].At) })
	return out, nil
}
