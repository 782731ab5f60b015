// Package retrieve answers nearest-neighbor queries over the knowledge store.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"github.com/kurakb/kura/internal/knowledge"
	"github.com/kurakb/kura/internal/log"
)

// Store is the subset of the knowledge store the engine reads from.
type Store interface {
	Query(ctx context.Context, vector []float32, k int) ([]knowledge.Match, error)
}

// Embedder converts query text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Query is one retrieval request.
type Query struct {
	Text     string
	K        int      // Zero means the configured default
	MinScore *float32 // Nil means the configured default
}

// Engine embeds query text and ranks store matches.
type Engine struct {
	embedder        Embedder
	store           Store
	defaultK        int
	defaultMinScore float32
	logger          log.Logger
}

// New creates an Engine with the given defaults for K and minimum score.
func New(embedder Embedder, store Store, defaultK int, defaultMinScore float32, logger log.Logger) *Engine {
	return &Engine{
		embedder:        embedder,
		store:           store,
		defaultK:        defaultK,
		defaultMinScore: defaultMinScore,
		logger:          logger,
	}
}

// Answer returns up to K matches for the query text, best first. Matches below
// the minimum score are dropped. Ties on score are broken by the fresher
// source timestamp. No matches above the threshold is a valid empty result,
// not an error.
func (e *Engine) Answer(ctx context.Context, q Query) ([]knowledge.Match, error) {
	k := q.K
	if k <= 0 {
		k = e.defaultK
	}
	minScore := e.defaultMinScore
	if q.MinScore != nil {
		minScore = *q.MinScore
	}

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := e.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}

	filtered := make([]knowledge.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= minScore {
			filtered = append(filtered, m)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].Meta.SourceTimestamp.After(filtered[j].Meta.SourceTimestamp)
	})

	e.logger.Debug("query answered",
		"k", k,
		"min_score", minScore,
		"matches", len(filtered))

	return filtered, nil
}
