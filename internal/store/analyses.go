package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"baagent/internal/types"
)

// SaveAnalysis stores a finished run. The full source text is indexed in the
// analyses collection; the row keeps a short preview.
func (s *Store) SaveAnalysis(ctx context.Context, a types.Analysis) error {
	var results []byte
	if a.Results != nil {
		b, err := json.Marshal(a.Results.Normalized())
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		results = b
	}
	if a.Status == "" {
		a.Status = types.AnalysisStatusCompleted
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, title, date, status, original_text, results) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, formatTime(a.Date), a.Status, types.Preview(a.OriginalText), string(results),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	s.indexBestEffort(ctx, CollectionAnalyses, a.ID, a.OriginalText, map[string]interface{}{
		"id":    a.ID,
		"title": a.Title,
		"type":  "analysis",
		"date":  formatTime(a.Date),
	})
	return nil
}

// ListAnalyses returns every analysis, newest first, without results.
func (s *Store) ListAnalyses(ctx context.Context) ([]types.Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, date, status, original_text FROM analyses ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	out := []types.Analysis{}
	for rows.Next() {
		var (
			a        types.Analysis
			date     string
			original sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Title, &date, &a.Status, &original); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		a.Date = parseTime(date)
		a.OriginalText = original.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAnalysis returns one analysis with its bundle.
func (s *Store) GetAnalysis(ctx context.Context, id string) (types.Analysis, error) {
	var (
		a        types.Analysis
		date     string
		original sql.NullString
		results  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, date, status, original_text, results FROM analyses WHERE id = ?`, id,
	).Scan(&a.ID, &a.Title, &date, &a.Status, &original, &results)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Analysis{}, ErrNotFound
	}
	if err != nil {
		return types.Analysis{}, fmt.Errorf("failed to get analysis: %w", err)
	}
	a.Date = parseTime(date)
	a.OriginalText = original.String

	if results.String != "" {
		var b types.Bundle
		if err := json.Unmarshal([]byte(results.String), &b); err != nil {
			return types.Analysis{}, fmt.Errorf("failed to decode results: %w", err)
		}
		b = b.Normalized()
		a.Results = &b
	}
	return a, nil
}
