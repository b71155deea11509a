package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"baagent/internal/types"
)

// SaveDocument stores an uploaded document and indexes its content in the
// documents collection.
func (s *Store) SaveDocument(ctx context.Context, doc types.Document) error {
	if doc.Status == "" {
		doc.Status = types.DocumentStatusUploaded
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, file_type, upload_date, file_path, size, content, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.FileType, formatTime(doc.UploadDate), doc.FilePath, doc.Size, doc.Content, doc.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	s.indexBestEffort(ctx, CollectionDocuments, doc.ID, doc.Content, map[string]interface{}{
		"id":          doc.ID,
		"name":        doc.Name,
		"type":        "document",
		"upload_date": formatTime(doc.UploadDate),
	})
	return nil
}

// ListDocuments returns every document, newest first, without content.
func (s *Store) ListDocuments(ctx context.Context) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, file_type, upload_date, size, status FROM documents ORDER BY upload_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []types.Document{}
	for rows.Next() {
		var (
			d        types.Document
			uploaded string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.FileType, &uploaded, &d.Size, &d.Status); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.UploadDate = parseTime(uploaded)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetDocument returns one document including its extracted text.
func (s *Store) GetDocument(ctx context.Context, id string) (types.Document, error) {
	var (
		d        types.Document
		uploaded string
		content  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, file_type, upload_date, file_path, size, content, status FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.FileType, &uploaded, &d.FilePath, &d.Size, &content, &d.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Document{}, ErrNotFound
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	d.UploadDate = parseTime(uploaded)
	d.Content = content.String
	return d, nil
}
