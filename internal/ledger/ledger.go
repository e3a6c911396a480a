package ledger

import (
	"context"
	"errors"
	"fmt"
)

// TxRef identifies a ledger transaction.
type TxRef string

type DeployRequest struct {
	ChallengeID     string `json:"challenge_id"`
	CreatorAddress  string `json:"creator_address"`
	StakeAmount     int64  `json:"stake_amount"`
	MaxParticipants int    `json:"max_participants"`
	StartUnix       int64  `json:"start_unix"`
	EndUnix         int64  `json:"end_unix"`
}

type Payout struct {
	Address string `json:"participant_address"`
	Amount  int64  `json:"amount"`
}

// Client is the contract with the authoritative funds ledger. Calls block until the
// outcome is known or ctx expires.
type Client interface {
	Deploy(ctx context.Context, req DeployRequest) (string, error)
	Stake(ctx context.Context, ref, address string, amount int64) (TxRef, error)
	Release(ctx context.Context, ref, address string) (TxRef, error)
	RecordTaskCompletion(ctx context.Context, ref, address, taskID string) (TxRef, error)
	Eliminate(ctx context.Context, ref string, week int, address string) (TxRef, error)
	Distribute(ctx context.Context, ref string, payouts []Payout) (TxRef, error)
	AggregateStake(ctx context.Context, ref string) (int64, error)
}

// Outcome classifies what is known about a failed call.
type Outcome int

const (
	// Rejected means the ledger did not apply the operation.
	Rejected Outcome = iota
	// NotAccepted means the request never reached the ledger and may be resent.
	NotAccepted
	// Unknown means the request may or may not have been applied.
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case NotAccepted:
		return "not_accepted"
	case Unknown:
		return "unknown"
	default:
		return "rejected"
	}
}

type Error struct {
	Op         string
	Outcome    Outcome
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ledger %s (%s, status %d): %v", e.Op, e.Outcome, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ledger %s (%s): %v", e.Op, e.Outcome, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether resending the operation cannot double-apply it.
func Retryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Outcome == NotAccepted
	}
	return false
}

// OutcomeOf returns the outcome recorded on err, treating foreign errors as Unknown.
func OutcomeOf(err error) Outcome {
	var le *Error
	if errors.As(err, &le) {
		return le.Outcome
	}
	return Unknown
}
