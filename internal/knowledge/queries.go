package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQueries implements Querier against a pgx connection pool. The pool must
// have pgvector types registered (see app.Setup and testutil.SetupTestDB).
type PgxQueries struct {
	pool *pgxpool.Pool
}

// NewPgxQueries creates a Querier over the given pool.
func NewPgxQueries(pool *pgxpool.Pool) *PgxQueries {
	return &PgxQueries{pool: pool}
}

const upsertDocumentSQL = `
INSERT INTO documents (id, title, content, content_hash, source_timestamp, embedding, indexed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    content = EXCLUDED.content,
    content_hash = EXCLUDED.content_hash,
    source_timestamp = EXCLUDED.source_timestamp,
    embedding = EXCLUDED.embedding,
    indexed_at = EXCLUDED.indexed_at`

// UpsertDocument inserts or replaces one document row. ON CONFLICT makes the
// write atomic per id: a failed statement leaves the previous row untouched.
func (q *PgxQueries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	_, err := q.pool.Exec(ctx, upsertDocumentSQL,
		arg.ID, arg.Title, arg.Content, arg.ContentHash,
		arg.SourceTimestamp, arg.Embedding, arg.IndexedAt)
	if err != nil {
		return fmt.Errorf("exec upsert: %w", err)
	}
	return nil
}

const searchDocumentsSQL = `
SELECT id, title, content, source_timestamp,
       1 - (embedding <=> $1) AS score
FROM documents
ORDER BY embedding <=> $1
LIMIT $2`

// SearchDocuments runs a cosine nearest-neighbor scan. The score is cosine
// similarity (1 minus the pgvector cosine distance), descending.
func (q *PgxQueries) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	rows, err := q.pool.Query(ctx, searchDocumentsSQL, arg.QueryEmbedding, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("query search: %w", err)
	}
	defer rows.Close()

	var results []SearchDocumentsRow
	for rows.Next() {
		var row SearchDocumentsRow
		if err := rows.Scan(&row.ID, &row.Title, &row.Content, &row.SourceTimestamp, &row.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// ContentHashes returns id -> content_hash for every stored document.
func (q *PgxQueries) ContentHashes(ctx context.Context) (map[string]string, error) {
	rows, err := q.pool.Query(ctx, `SELECT id, content_hash FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("query hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan hash row: %w", err)
		}
		hashes[id] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hash rows: %w", err)
	}
	return hashes, nil
}

// DeleteDocument deletes a document by id. Deleting a missing id is a no-op.
func (q *PgxQueries) DeleteDocument(ctx context.Context, id string) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("exec delete: %w", err)
	}
	return nil
}

// CountDocuments counts all stored documents.
func (q *PgxQueries) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	return count, nil
}
