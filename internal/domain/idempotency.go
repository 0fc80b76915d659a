package domain

import (
	"errors"
	"time"
)

// IdempotencyStatus is the state of one key in the idempotency table.
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord is one row of the idempotency table.
type IdempotencyRecord struct {
	Key         string            `json:"key"`
	Status      IdempotencyStatus `json:"status"`
	Token       string            `json:"-"`
	Result      []byte            `json:"result,omitempty"`
	ClaimedAt   time.Time         `json:"claimed_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// ClaimOutcome says how a claim attempt resolved.
type ClaimOutcome int

const (
	// ClaimWon means the caller inserted the key and owns execution.
	ClaimWon ClaimOutcome = iota
	// ClaimReclaimed means a stale in-progress claim was taken over.
	ClaimReclaimed
	// ClaimHeld means another attempt owns the key; Record holds its state.
	ClaimHeld
)

// ClaimResult is returned by an atomic insert-if-absent-else-fetch.
type ClaimResult struct {
	Outcome ClaimOutcome
	Record  IdempotencyRecord
}

// Owned reports whether the caller may run the rule engine.
func (c ClaimResult) Owned() bool {
	return c.Outcome == ClaimWon || c.Outcome == ClaimReclaimed
}

var (
	// ErrClaimLost is returned when a commit or release token no longer owns the key.
	ErrClaimLost = errors.New("idempotency claim lost")
	// ErrRecordNotFound is returned when a key or audit trail does not exist.
	ErrRecordNotFound = errors.New("record not found")
)
