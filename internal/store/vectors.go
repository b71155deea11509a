package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"baagent/internal/embedding"
	"baagent/internal/logging"
)

// Collections that Search accepts.
const (
	CollectionDocuments = "documents"
	CollectionAnalyses  = "analyses"
)

// ErrUnknownCollection is returned for a collection other than documents or analyses.
var ErrUnknownCollection = errors.New("unknown collection")

// ValidCollection reports whether name is a searchable collection.
func ValidCollection(name string) bool {
	return name == CollectionDocuments || name == CollectionAnalyses
}

// SearchResults holds parallel slices, one entry per hit, best first.
// Distances carry cosine similarity, so higher is closer.
type SearchResults struct {
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
	Distances []float64                `json:"distances"`
	IDs       []string                 `json:"ids"`
}

// Len returns the number of hits.
func (r SearchResults) Len() int { return len(r.IDs) }

func newSearchResults() SearchResults {
	return SearchResults{
		Documents: []string{},
		Metadatas: []map[string]interface{}{},
		Distances: []float64{},
		IDs:       []string{},
	}
}

// Index embeds content and upserts it under (collection, id).
func (s *Store) Index(ctx context.Context, collection, id, content string, metadata map[string]interface{}) error {
	if !ValidCollection(collection) {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	engine := s.embeddingEngine()
	if engine == nil {
		return nil
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "index "+collection)
	vec, err := engine.Embed(ctx, content, embedding.PurposeDocument)
	timer.Stop()
	if err != nil {
		return fmt.Errorf("failed to embed %s/%s: %w", collection, id, err)
	}

	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO embeddings (collection, source_id, content, embedding, metadata, created_at, model)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, source_id) DO UPDATE SET
		   content = excluded.content, embedding = excluded.embedding,
		   metadata = excluded.metadata, model = excluded.model`,
		collection, id, content, string(vecJSON), string(metaJSON), formatTime(time.Now()), engine.Name(),
	)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	logging.StoreDebug("Indexed %s/%s (%d dims)", collection, id, len(vec))
	return nil
}

// indexBestEffort indexes and only logs failures; a record is useful even
// when it is not searchable.
func (s *Store) indexBestEffort(ctx context.Context, collection, id, content string, metadata map[string]interface{}) {
	if err := s.Index(ctx, collection, id, content, metadata); err != nil {
		logging.StoreWarn("Indexing skipped: %v", err)
	}
}

// Search ranks the collection against query. With an embedding engine it
// uses cosine similarity over stored vectors; without one it falls back to a
// case-insensitive substring match over the indexed sources.
func (s *Store) Search(ctx context.Context, query, collection string, n int) (SearchResults, error) {
	if !ValidCollection(collection) {
		return SearchResults{}, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if n <= 0 {
		n = 5
	}
	engine := s.embeddingEngine()
	if engine == nil {
		return s.keywordSearch(ctx, query, collection, n)
	}

	qvec, err := engine.Embed(ctx, query, embedding.PurposeQuery)
	if err != nil {
		return SearchResults{}, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, content, embedding, metadata FROM embeddings WHERE collection = ?`, collection)
	if err != nil {
		return SearchResults{}, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	type entry struct {
		id, content string
		meta        map[string]interface{}
	}
	var (
		entries []entry
		corpus  [][]float32
	)
	for rows.Next() {
		var id, content, vecJSON, metaJSON string
		if err := rows.Scan(&id, &content, &vecJSON, &metaJSON); err != nil {
			return SearchResults{}, fmt.Errorf("failed to scan embedding: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			logging.StoreWarn("Skipping corrupt embedding %s/%s: %v", collection, id, err)
			continue
		}
		meta := map[string]interface{}{}
		_ = json.Unmarshal([]byte(metaJSON), &meta)
		entries = append(entries, entry{id: id, content: content, meta: meta})
		corpus = append(corpus, vec)
	}
	if err := rows.Err(); err != nil {
		return SearchResults{}, err
	}

	results := newSearchResults()
	for _, hit := range embedding.FindTopK(qvec, corpus, n) {
		e := entries[hit.Index]
		results.Documents = append(results.Documents, e.content)
		results.Metadatas = append(results.Metadatas, e.meta)
		results.Distances = append(results.Distances, hit.Similarity)
		results.IDs = append(results.IDs, e.id)
	}
	return results, nil
}

func (s *Store) keywordSearch(ctx context.Context, query, collection string, n int) (SearchResults, error) {
	var stmt string
	switch collection {
	case CollectionDocuments:
		stmt = `SELECT id, COALESCE(content, ''), name FROM documents
		        WHERE instr(lower(COALESCE(content, '') || ' ' || name), lower(?)) > 0
		        ORDER BY upload_date DESC LIMIT ?`
	default:
		stmt = `SELECT id, COALESCE(original_text, ''), title FROM analyses
		        WHERE instr(lower(COALESCE(original_text, '') || ' ' || title), lower(?)) > 0
		        ORDER BY date DESC LIMIT ?`
	}

	rows, err := s.db.QueryContext(ctx, stmt, query, n)
	if err != nil {
		return SearchResults{}, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	results := newSearchResults()
	for rows.Next() {
		var id, content, label string
		if err := rows.Scan(&id, &content, &label); err != nil {
			return SearchResults{}, fmt.Errorf("failed to scan result: %w", err)
		}
		key := "name"
		if collection == CollectionAnalyses {
			key = "title"
		}
		results.Documents = append(results.Documents, content)
		results.Metadatas = append(results.Metadatas, map[string]interface{}{"id": id, key: label})
		results.Distances = append(results.Distances, 1)
		results.IDs = append(results.IDs, id)
	}
	return results, rows.Err()
}
