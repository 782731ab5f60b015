package testutil

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kurakb/kura/internal/knowledge"
)

// MemoryStore is an in-memory knowledge store with real cosine scoring. It
// satisfies the store interfaces of both the ingestion pipeline and the
// retrieval engine, and counts Upsert calls for idempotence assertions.
type MemoryStore struct {
	mu          sync.Mutex
	records     map[string]knowledge.Record
	UpsertCalls int
	UpsertErr   error // When set, Upsert fails with this error
	QueryErr    error // When set, Query fails with this error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]knowledge.Record)}
}

// Upsert stores or replaces a record by ID.
func (m *MemoryStore) Upsert(_ context.Context, rec knowledge.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.records[rec.ID] = rec
	return nil
}

// ContentHashes returns id -> content hash for all records.
func (m *MemoryStore) ContentHashes(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hashes := make(map[string]string, len(m.records))
	for id, rec := range m.records {
		hashes[id] = rec.ContentHash
	}
	return hashes, nil
}

// Query returns the k nearest records by cosine similarity, best first.
func (m *MemoryStore) Query(_ context.Context, vector []float32, k int) ([]knowledge.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	matches := make([]knowledge.Match, 0, len(m.records))
	for _, rec := range m.records {
		matches = append(matches, knowledge.Match{
			ID:    rec.ID,
			Score: Cosine(vector, rec.Vector),
			Meta:  rec.Meta,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Get returns the stored record for id, if any.
func (m *MemoryStore) Get(id string) (knowledge.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// or zero vectors score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
