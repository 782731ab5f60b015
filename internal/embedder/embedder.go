// Package embedder turns text into fixed-dimension vectors via a Genkit
// embedder, with retry on transient provider failures.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/kurakb/kura/internal/log"
)

// ErrEmbedding marks failures of the embedding provider. Callers can use
// errors.Is to tell embedding failures apart from store failures.
var ErrEmbedding = errors.New("embedding failure")

// Config controls retry and timeout behavior for embedding calls.
type Config struct {
	Dimension      int           // Expected vector width
	RetryAttempts  int           // Retries after the first attempt
	RetryBackoff   time.Duration // Initial backoff interval, doubled per retry
	MaxBackoff     time.Duration // Backoff cap, zero means 10s
	RequestTimeout time.Duration // Per-attempt deadline, zero means no extra deadline
}

// Embedder wraps a Genkit ai.Embedder with dimension validation and
// exponential backoff retry for transient failures.
type Embedder struct {
	embedder ai.Embedder
	cfg      Config
	logger   log.Logger
}

// New creates an Embedder. The logger must not be nil.
func New(e ai.Embedder, cfg Config, logger log.Logger) *Embedder {
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	return &Embedder{embedder: e, cfg: cfg, logger: logger}
}

// Dimension returns the configured vector width.
func (e *Embedder) Dimension() int {
	return e.cfg.Dimension
}

// Embed converts text to a vector. Transient provider errors are retried with
// exponential backoff up to cfg.RetryAttempts times; permanent errors fail
// immediately. The returned error always satisfies errors.Is(err, ErrEmbedding).
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	delay := e.cfg.RetryBackoff
	start := time.Now()

	for attempt := 0; attempt <= e.cfg.RetryAttempts; attempt++ {
		vec, err := e.embedOnce(ctx, text)
		if err == nil {
			if attempt > 0 {
				e.logger.Debug("embedding succeeded after retry",
					"attempts", attempt+1,
					"elapsed", time.Since(start),
				)
			}
			return vec, nil
		}

		lastErr = err

		if !Transient(err) {
			return nil, fmt.Errorf("embed: %w", errors.Join(ErrEmbedding, err))
		}

		if attempt == e.cfg.RetryAttempts {
			break
		}

		e.logger.Debug("retrying embedding after transient error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("embed canceled during retry: %w", errors.Join(ErrEmbedding, ctx.Err()))
		case <-time.After(delay):
			delay = min(delay*2, e.cfg.MaxBackoff)
		}
	}

	return nil, fmt.Errorf("embed after %d retries (elapsed: %v): %w",
		e.cfg.RetryAttempts, time.Since(start), errors.Join(ErrEmbedding, lastErr))
}

func (e *Embedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("no embeddings returned")
	}

	vec := resp.Embeddings[0].Embedding
	if e.cfg.Dimension > 0 && len(vec) != e.cfg.Dimension {
		return nil, fmt.Errorf("unexpected dimension %d, want %d", len(vec), e.cfg.Dimension)
	}
	return vec, nil
}
