package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the database operations Store needs. The interface is
// defined here, by the consumer, so Store depends on an abstraction rather
// than a concrete pgx pool (similar to http.RoundTripper, sql.Driver).
type Querier interface {
	// UpsertDocument inserts or replaces a document row atomically per id.
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error

	// SearchDocuments performs a nearest-neighbor search, returning rows
	// ordered by descending similarity.
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error)

	// ContentHashes returns the content hash of every stored document keyed by id.
	ContentHashes(ctx context.Context) (map[string]string, error)

	// DeleteDocument deletes a document by id.
	DeleteDocument(ctx context.Context, id string) error

	// CountDocuments counts all stored documents.
	CountDocuments(ctx context.Context) (int64, error)
}

// UpsertDocumentParams carries one document row for an upsert.
type UpsertDocumentParams struct {
	ID              string
	Title           string
	Content         string
	ContentHash     string
	SourceTimestamp pgtype.Timestamptz
	Embedding       *pgvector.Vector
	IndexedAt       pgtype.Timestamptz
}

// SearchDocumentsParams carries one nearest-neighbor query.
type SearchDocumentsParams struct {
	QueryEmbedding *pgvector.Vector
	ResultLimit    int32
}

// SearchDocumentsRow is one row of a nearest-neighbor search result.
type SearchDocumentsRow struct {
	ID              string
	Title           string
	Content         string
	SourceTimestamp pgtype.Timestamptz
	Score           float32
}

// Store is the vector index adapter. It holds at most one record per id (the
// most recent successful upsert) and enforces the fixed vector dimension on
// every write and query.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries Querier
	dim     int
	logger  *slog.Logger
}

// NewStore creates a Store over the given querier. dim is the fixed vector
// dimension chosen at store creation; it never changes for the lifetime of
// the index.
func NewStore(queries Querier, dim int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries: queries,
		dim:     dim,
		logger:  logger,
	}
}

// Dimension returns the fixed vector dimension of the store.
func (s *Store) Dimension() int { return s.dim }

// Upsert writes a Record, replacing any previous record with the same ID.
// The write is atomic per id: on failure the prior record remains intact and
// visible to queries.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if len(rec.Vector) != s.dim {
		return fmt.Errorf("upsert %q: want %d dimensions, got %d: %w",
			rec.ID, s.dim, len(rec.Vector), ErrDimensionMismatch)
	}

	embedding := pgvector.NewVector(rec.Vector)
	err := s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:              rec.ID,
		Title:           rec.Meta.Title,
		Content:         rec.Meta.Content,
		ContentHash:     rec.ContentHash,
		SourceTimestamp: pgtype.Timestamptz{Time: rec.Meta.SourceTimestamp, Valid: !rec.Meta.SourceTimestamp.IsZero()},
		Embedding:       &embedding,
		IndexedAt:       pgtype.Timestamptz{Time: rec.IndexedAt, Valid: !rec.IndexedAt.IsZero()},
	})
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", rec.ID, errors.Join(ErrStore, err))
	}

	s.logger.Debug("upserted document", "id", rec.ID, "content_length", len(rec.Meta.Content))
	return nil
}

// Query returns the k nearest stored records to the given vector, ordered by
// descending similarity score. An empty result is not an error.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query: want %d dimensions, got %d: %w",
			s.dim, len(vector), ErrDimensionMismatch)
	}
	if k < 1 {
		return nil, fmt.Errorf("query: k must be positive, got %d", k)
	}

	queryEmbedding := pgvector.NewVector(vector)
	rows, err := s.queries.SearchDocuments(ctx, SearchDocumentsParams{
		QueryEmbedding: &queryEmbedding,
		ResultLimit:    int32(k), // #nosec G115 -- k validated positive and bounded by callers
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", errors.Join(ErrStore, err))
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		m := Match{
			ID:    row.ID,
			Score: row.Score,
			Meta: Metadata{
				Title:   row.Title,
				Content: row.Content,
			},
		}
		if row.SourceTimestamp.Valid {
			m.Meta.SourceTimestamp = row.SourceTimestamp.Time
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// ContentHashes returns the stored content hash for every document id.
// The ingestion pipeline uses it to skip unchanged documents.
func (s *Store) ContentHashes(ctx context.Context) (map[string]string, error) {
	hashes, err := s.queries.ContentHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("content hashes: %w", errors.Join(ErrStore, err))
	}
	return hashes, nil
}

// Delete removes a document from the store.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.queries.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document %q: %w", id, errors.Join(ErrStore, err))
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

// Count returns the total number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.queries.CountDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", errors.Join(ErrStore, err))
	}
	return count, nil
}
