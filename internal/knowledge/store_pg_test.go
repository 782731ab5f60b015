package knowledge_test

import (
	"context"
	"testing"
	"time"

	"github.com/kurakb/kura/internal/knowledge"
	"github.com/kurakb/kura/internal/testutil"
)

const testDim = 768

// axisVector returns a unit vector pointing along the given axis, padded to
// the schema's fixed width.
func axisVector(axis int) []float32 {
	v := make([]float32, testDim)
	v[axis] = 1
	return v
}

func pgRecord(id string, axis int, ts time.Time) knowledge.Record {
	return knowledge.Record{
		ID:     id,
		Vector: axisVector(axis),
		Meta: knowledge.Metadata{
			Title:           "Title " + id,
			Content:         "content of " + id,
			SourceTimestamp: ts,
		},
		ContentHash: "hash-" + id,
		IndexedAt:   time.Now(),
	}
}

func TestStorePostgres_UpsertAndQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := knowledge.NewStore(knowledge.NewPgxQueries(db.Pool), testDim, nil)

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := store.Upsert(ctx, pgRecord("doc1", 0, now.Add(-time.Hour))); err != nil {
		t.Fatalf("Upsert(doc1) error = %v", err)
	}
	if err := store.Upsert(ctx, pgRecord("doc2", 1, now)); err != nil {
		t.Fatalf("Upsert(doc2) error = %v", err)
	}

	// Nearest neighbors of axis 0 are doc1 (score 1) then doc2 (orthogonal, 0)
	matches, err := store.Query(ctx, axisVector(0), 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Query() = %d matches, want 2", len(matches))
	}
	if matches[0].ID != "doc1" || matches[1].ID != "doc2" {
		t.Errorf("match order = %s, %s; want doc1, doc2", matches[0].ID, matches[1].ID)
	}
	if matches[0].Score < 0.99 {
		t.Errorf("doc1 score = %f, want ~1", matches[0].Score)
	}
	if matches[1].Score > 0.01 {
		t.Errorf("doc2 score = %f, want ~0", matches[1].Score)
	}
	if matches[0].Meta.Title != "Title doc1" || matches[0].Meta.Content != "content of doc1" {
		t.Errorf("doc1 metadata = %+v", matches[0].Meta)
	}
	if !matches[0].Meta.SourceTimestamp.Equal(now.Add(-time.Hour)) {
		t.Errorf("doc1 timestamp = %v, want %v", matches[0].Meta.SourceTimestamp, now.Add(-time.Hour))
	}
}

func TestStorePostgres_UpsertReplaces(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := knowledge.NewStore(knowledge.NewPgxQueries(db.Pool), testDim, nil)

	now := time.Now()
	if err := store.Upsert(ctx, pgRecord("doc1", 0, now)); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	updated := pgRecord("doc1", 1, now)
	updated.Meta.Content = "revised content"
	updated.ContentHash = "hash-revised"
	if err := store.Upsert(ctx, updated); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d after replacing upsert, want 1", count)
	}

	matches, err := store.Query(ctx, axisVector(1), 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Meta.Content != "revised content" {
		t.Errorf("Query() after replace = %+v, want revised content", matches)
	}

	hashes, err := store.ContentHashes(ctx)
	if err != nil {
		t.Fatalf("ContentHashes() error = %v", err)
	}
	if hashes["doc1"] != "hash-revised" {
		t.Errorf("hash = %q, want hash-revised", hashes["doc1"])
	}
}

func TestStorePostgres_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := knowledge.NewStore(knowledge.NewPgxQueries(db.Pool), testDim, nil)

	if err := store.Upsert(ctx, pgRecord("doc1", 0, time.Now())); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Delete(ctx, "doc1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d after delete, want 0", count)
	}
}
