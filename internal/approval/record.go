// Package approval implements the human sign-off step between a generated
// bundle and ticket creation.
//
// A record moves at most twice: pending to approved or rejected, then from
// approved to approved_and_created or ado_failed. Transitions go through a
// compare-and-swap on the store, so of two concurrent decisions exactly one
// wins.
package approval

import (
	"context"
	"time"

	"baagent/internal/types"
)

// Status is the lifecycle state of an approval record.
type Status string

const (
	StatusPending            Status = "pending"
	StatusApproved           Status = "approved"
	StatusRejected           Status = "rejected"
	StatusApprovedAndCreated Status = "approved_and_created"
	StatusADOFailed          Status = "ado_failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusApprovedAndCreated, StatusADOFailed:
		return true
	}
	return false
}

// ParseDecision maps the decision query value to a status.
func ParseDecision(s string) (Status, error) {
	switch Status(s) {
	case StatusApproved, StatusRejected:
		return Status(s), nil
	}
	return "", ErrInvalidDecision
}

// Record is one bundle awaiting (or past) a decision.
type Record struct {
	ID        string       `json:"id"`
	Status    Status       `json:"status"`
	Bundle    types.Bundle `json:"bundle"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Store persists approval records.
//
// CompareAndSwap must be atomic: it moves id from one status to another and
// reports false, without error, when the record is not in the from status.
// Get and CompareAndSwap return ErrNotFound for unknown ids.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	CompareAndSwap(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
	// Sweep deletes records last updated before the cutoff and returns how many.
	Sweep(ctx context.Context, before time.Time) (int, error)
}
