package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"baagent/internal/backlog"
	"baagent/internal/logging"
	"baagent/internal/tracker"
	"baagent/internal/types"
)

// DefaultRecordTTL is how long an untouched record stays decidable.
const DefaultRecordTTL = 7 * 24 * time.Hour

// Notifier delivers the approval request for a new record.
type Notifier interface {
	NotifyApproval(ctx context.Context, id string, bundle types.Bundle) error
}

// TicketBuilder creates the backlog hierarchy once a record is approved.
type TicketBuilder interface {
	Configured() bool
	Create(ctx context.Context, nodes []*backlog.Node) tracker.Report
}

// Config wires a Machine.
type Config struct {
	Store    Store
	Notifier Notifier
	Builder  TicketBuilder
	// TTL bounds the age of a record's last update; older records are treated
	// as unknown. Zero means DefaultRecordTTL.
	TTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Machine drives approval records through their lifecycle.
type Machine struct {
	store    Store
	notifier Notifier
	builder  TicketBuilder
	ttl      time.Duration
	now      func() time.Time
}

// New creates a Machine. Store is required; a nil Notifier skips delivery and
// a nil Builder behaves as unconfigured.
func New(cfg Config) (*Machine, error) {
	if cfg.Store == nil {
		return nil, errors.New("approval store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRecordTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		builder:  cfg.Builder,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}, nil
}

// Request creates a pending record for bundle and sends the approval request.
// When delivery fails the record still exists and is returned together with a
// *NotificationError.
func (m *Machine) Request(ctx context.Context, bundle types.Bundle) (Record, error) {
	now := m.now()
	rec := Record{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Bundle:    bundle.Normalized(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("failed to store approval: %w", err)
	}

	counts := backlog.Count(rec.Bundle.Backlog)
	logging.Approval("approval %s requested (%d backlog items)", rec.ID, counts.Total())
	logging.Audit(logging.AuditEvent{
		Type:    logging.AuditApprovalRequested,
		Subject: rec.ID,
		Success: true,
		Fields:  map[string]interface{}{"backlog_items": counts.Total()},
	})

	if m.notifier == nil {
		logging.ApprovalWarn("no notifier configured; approval %s must be decided directly", rec.ID)
		return rec, nil
	}
	if err := m.notifier.NotifyApproval(ctx, rec.ID, rec.Bundle); err != nil {
		logging.ApprovalError("approval %s notification failed: %v", rec.ID, err)
		return rec, &NotificationError{ID: rec.ID, Err: err}
	}
	return rec, nil
}

// Decide applies a decision to a pending record and returns the resulting
// status. An approval runs ticket creation before returning.
func (m *Machine) Decide(ctx context.Context, id string, decision Status) (Status, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return "", ErrInvalidDecision
	}

	rec, err := m.get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Status != StatusPending {
		return m.repeated(id, rec.Status)
	}

	won, err := m.store.CompareAndSwap(ctx, id, StatusPending, decision, m.now())
	if err != nil {
		return "", m.storeErr(err)
	}
	if !won {
		current, err := m.get(ctx, id)
		if err != nil {
			return "", err
		}
		return m.repeated(id, current.Status)
	}

	logging.Approval("approval %s %s", id, decision)
	logging.Audit(logging.AuditEvent{Type: logging.AuditApprovalDecided, Subject: id, Success: true, Message: string(decision)})

	if decision == StatusRejected {
		return StatusRejected, nil
	}
	return m.settle(ctx, rec)
}

// settle creates the tickets for an approved record and records the outcome.
func (m *Machine) settle(ctx context.Context, rec Record) (Status, error) {
	final := StatusApprovedAndCreated
	switch {
	case m.builder == nil || !m.builder.Configured():
		logging.ApprovalWarn("approval %s: tracker credentials not configured", rec.ID)
		final = StatusADOFailed
	default:
		report := m.builder.Create(ctx, rec.Bundle.Backlog)
		if !report.OK() {
			for _, f := range report.Failed {
				logging.ApprovalWarn("approval %s: %s", rec.ID, f)
			}
			final = StatusADOFailed
		}
	}

	won, err := m.store.CompareAndSwap(ctx, rec.ID, StatusApproved, final, m.now())
	if err != nil {
		return "", m.storeErr(err)
	}
	if !won {
		// Only the winning decider settles, so this means the record was swept.
		return "", ErrNotFound
	}

	logging.Audit(logging.AuditEvent{
		Type:    logging.AuditApprovalSettled,
		Subject: rec.ID,
		Success: final == StatusApprovedAndCreated,
		Message: string(final),
	})
	return final, nil
}

func (m *Machine) repeated(id string, status Status) (Status, error) {
	logging.Audit(logging.AuditEvent{Type: logging.AuditApprovalRepeated, Subject: id, Message: string(status)})
	return status, &AlreadyProcessedError{ID: id, Status: status}
}

// Status returns the current status of a record.
func (m *Machine) Status(ctx context.Context, id string) (Status, error) {
	rec, err := m.get(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Get returns the full record.
func (m *Machine) Get(ctx context.Context, id string) (Record, error) {
	return m.get(ctx, id)
}

func (m *Machine) get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrNotFound
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return Record{}, m.storeErr(err)
	}
	if m.expired(rec) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Machine) expired(rec Record) bool {
	return m.now().Sub(rec.UpdatedAt) > m.ttl
}

func (m *Machine) storeErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("approval store: %w", err)
}

// Sweep removes expired records once and returns how many were removed.
func (m *Machine) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.Sweep(ctx, m.now().Add(-m.ttl))
	if err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}
	if n > 0 {
		logging.Approval("swept %d expired approvals", n)
		logging.Audit(logging.AuditEvent{
			Type:    logging.AuditApprovalExpired,
			Success: true,
			Fields:  map[string]interface{}{"count": n},
		})
	}
	return n, nil
}

// RunJanitor sweeps expired records every interval until ctx is done.
func (m *Machine) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				logging.ApprovalError("%v", err)
			}
		}
	}
}
