package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown or expired approval ids.
	ErrNotFound = errors.New("invalid or expired approval id")
	// ErrAlreadyProcessed is returned when a decision arrives for a record
	// that is no longer pending.
	ErrAlreadyProcessed = errors.New("approval already processed")
	// ErrInvalidDecision is returned for decisions other than approved or rejected.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrNotificationFailed marks a record that was created but whose
	// approval request could not be delivered.
	ErrNotificationFailed = errors.New("approval notification failed")
)

// AlreadyProcessedError carries the status the record already holds.
type AlreadyProcessedError struct {
	ID     string
	Status Status
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("approval %s already processed: %s", e.ID, e.Status)
}

func (e *AlreadyProcessedError) Is(target error) bool { return target == ErrAlreadyProcessed }

// NotificationError wraps the notifier's failure for a created record.
type NotificationError struct {
	ID  string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("approval %s created but notification failed: %v", e.ID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func (e *NotificationError) Is(target error) bool { return target == ErrNotificationFailed }
