package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes failures of challenge operations.
type Kind string

const (
	// KindValidation is malformed input, rejected before any mutation.
	KindValidation Kind = "VALIDATION"

	// KindStateConflict is a failed precondition: wrong status, full, duplicate, already distributed.
	KindStateConflict Kind = "STATE_CONFLICT"

	// KindNotFound is an unknown challenge or participant.
	KindNotFound Kind = "NOT_FOUND"

	// KindLedger is a failed or timed out ledger call. The store write was compensated.
	KindLedger Kind = "LEDGER"

	// KindConsistency is a divergence between the store and the ledger found by reconciliation.
	KindConsistency Kind = "CONSISTENCY"

	// KindFatal is a compensation that could not be applied.
	KindFatal Kind = "FATAL"
)

// Error carries a Kind plus the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func StateConflict(op, format string, args ...any) error {
	return &Error{Kind: KindStateConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Ledger(op string, err error) error {
	return &Error{Kind: KindLedger, Op: op, Message: "ledger call failed", Err: err}
}

func Consistency(op, format string, args ...any) error {
	return &Error{Kind: KindConsistency, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Fatal wraps a compensation failure together with the ledger error that triggered it.
func Fatal(op string, ledgerErr, compErr error) error {
	return &Error{
		Kind:    KindFatal,
		Op:      op,
		Message: fmt.Sprintf("compensation failed after ledger error (%v)", ledgerErr),
		Err:     compErr,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsStateConflict(err error) bool { return KindOf(err) == KindStateConflict }
func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsLedger(err error) bool        { return KindOf(err) == KindLedger }
func IsConsistency(err error) bool   { return KindOf(err) == KindConsistency }
func IsFatal(err error) bool         { return KindOf(err) == KindFatal }
