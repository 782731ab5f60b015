// Package ingest pulls documents from feeds, embeds them, and writes them to
// the knowledge store. One document failing never aborts the batch.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/kurakb/kura/internal/knowledge"
	"github.com/kurakb/kura/internal/log"
	"github.com/kurakb/kura/internal/source"
)

// Store is the subset of the knowledge store the pipeline writes to.
type Store interface {
	Upsert(ctx context.Context, rec knowledge.Record) error
	ContentHashes(ctx context.Context) (map[string]string, error)
}

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Source lists documents changed since a given time.
type Source interface {
	Name() string
	Documents(ctx context.Context, since time.Time) ([]source.Document, error)
}

// Failure records one document that could not be indexed.
type Failure struct {
	ID  string
	Err error
}

// Result summarizes one pipeline run.
type Result struct {
	Processed int       // Documents embedded and upserted
	Skipped   int       // Documents with unchanged content hash
	Failed    []Failure // Documents that failed embedding or storage
	Duration  time.Duration
}

// Pipeline indexes documents from a feed into the store.
type Pipeline struct {
	src      Source
	embedder Embedder
	store    Store
	logger   log.Logger
}

// New creates a Pipeline. All dependencies are required.
func New(src Source, embedder Embedder, store Store, logger log.Logger) *Pipeline {
	return &Pipeline{src: src, embedder: embedder, store: store, logger: logger}
}

// Run fetches documents modified after since and indexes them. Documents whose
// content hash matches the stored one are skipped without an embedding call.
// Each document is embedded and upserted independently; failures are collected
// in the Result rather than aborting the run.
//
// When the feed returns partial results with an error, the partial batch is
// still processed and the feed error is returned alongside the Result.
func (p *Pipeline) Run(ctx context.Context, since time.Time) (*Result, error) {
	start := time.Now()
	result := &Result{}

	p.logger.Info("ingestion run starting",
		"source", p.src.Name(),
		"since", since)

	docs, srcErr := p.src.Documents(ctx, since)
	if srcErr != nil && len(docs) == 0 {
		return result, fmt.Errorf("list documents: %w", srcErr)
	}

	hashes, err := p.store.ContentHashes(ctx)
	if err != nil {
		return result, fmt.Errorf("load content hashes: %w", err)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("ingestion canceled: %w", err)
		}

		if stored, ok := hashes[doc.ID]; ok && stored == doc.ContentHash {
			result.Skipped++
			continue
		}

		if err := p.index(ctx, doc); err != nil {
			p.logger.Warn("document failed, continuing",
				"document_id", doc.ID,
				"error", err)
			result.Failed = append(result.Failed, Failure{ID: doc.ID, Err: err})
			continue
		}
		result.Processed++
	}

	result.Duration = time.Since(start)

	p.logger.Info("ingestion run finished",
		"source", p.src.Name(),
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
		"duration", result.Duration)

	if srcErr != nil {
		return result, fmt.Errorf("partial feed listing: %w", srcErr)
	}
	return result, nil
}

func (p *Pipeline) index(ctx context.Context, doc source.Document) error {
	vec, err := p.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document %q: %w", doc.ID, err)
	}

	rec := knowledge.Record{
		ID:     doc.ID,
		Vector: vec,
		Meta: knowledge.Metadata{
			Title:           doc.Title,
			Content:         doc.Content,
			SourceTimestamp: doc.SourceTimestamp,
		},
		ContentHash: doc.ContentHash,
		IndexedAt:   time.Now(),
	}

	if err := p.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("store document %q: %w", doc.ID, err)
	}
	return nil
}
