package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"baagent/internal/approval"
	"baagent/internal/types"
)

// ApprovalStore persists approval records so decisions survive restarts.
// It implements approval.Store.
type ApprovalStore struct {
	s *Store
}

// Approvals returns the approval record view of the store.
func (s *Store) Approvals() *ApprovalStore {
	return &ApprovalStore{s: s}
}

var _ approval.Store = (*ApprovalStore)(nil)

func (a *ApprovalStore) Create(ctx context.Context, rec approval.Record) error {
	bundle, err := json.Marshal(rec.Bundle.Normalized())
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	_, err = a.s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, status, bundle, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Status), string(bundle), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

func (a *ApprovalStore) Get(ctx context.Context, id string) (approval.Record, error) {
	var (
		rec              approval.Record
		status, bundle   string
		created, updated string
	)
	err := a.s.db.QueryRowContext(ctx,
		`SELECT id, status, bundle, created_at, updated_at FROM approvals WHERE id = ?`, id,
	).Scan(&rec.ID, &status, &bundle, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return approval.Record{}, approval.ErrNotFound
	}
	if err != nil {
		return approval.Record{}, fmt.Errorf("failed to get approval: %w", err)
	}

	var b types.Bundle
	if err := json.Unmarshal([]byte(bundle), &b); err != nil {
		return approval.Record{}, fmt.Errorf("failed to decode bundle: %w", err)
	}
	rec.Status = approval.Status(status)
	rec.Bundle = b.Normalized()
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

// CompareAndSwap relies on the WHERE clause for atomicity: of two concurrent
// updates from the same status only one matches a row.
func (a *ApprovalStore) CompareAndSwap(ctx context.Context, id string, from, to approval.Status, at time.Time) (bool, error) {
	res, err := a.s.db.ExecContext(ctx,
		`UPDATE approvals SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), formatTime(at), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update approval: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = a.s.db.QueryRowContext(ctx, `SELECT 1 FROM approvals WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, approval.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to get approval: %w", err)
	}
	return false, nil
}

func (a *ApprovalStore) Sweep(ctx context.Context, before time.Time) (int, error) {
	res, err := a.s.db.ExecContext(ctx, `DELETE FROM approvals WHERE updated_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep approvals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
