// Package source defines the document feed contract for ingestion. A feed
// lists documents changed since a given time; concrete feeds live in
// subpackages (see notion).
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrSource marks failures of an external document feed. Callers can use
// errors.Is to tell feed failures apart from embedding or store failures.
var ErrSource = errors.New("source feed failure")

// Document is one unit of external content as returned by a feed.
type Document struct {
	ID              string    // Stable identifier, unique across all feeds
	Title           string    // Human-readable name
	Content         string    // Plain text body
	SourceTimestamp time.Time // Last modification time at the source
	ContentHash     string    // Hex SHA-256 of Content
}

// Feed lists documents from one external system.
//
// Documents returns every document modified strictly after since. A feed that
// fails partway may return the documents fetched so far alongside a non-nil
// error; callers should process the partial batch before handling the error.
type Feed interface {
	Name() string
	Documents(ctx context.Context, since time.Time) ([]Document, error)
}

// Hash computes the hex SHA-256 digest of content, used for change detection.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Multi fans out over several feeds in order and concatenates their documents.
// A failing feed does not prevent later feeds from being consulted; all feed
// errors are joined into the returned error.
type Multi struct {
	feeds []Feed
}

// NewMulti combines feeds into one. The order determines fetch order.
func NewMulti(feeds ...Feed) *Multi {
	return &Multi{feeds: feeds}
}

// Name identifies the combined feed.
func (m *Multi) Name() string {
	return "multi"
}

// Documents collects documents from every feed modified after since.
func (m *Multi) Documents(ctx context.Context, since time.Time) ([]Document, error) {
	var docs []Document
	var errs []error

	for _, feed := range m.feeds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		batch, err := feed.Documents(ctx, since)
		docs = append(docs, batch...)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.Name(), err))
		}
	}

	if len(errs) > 0 {
		return docs, fmt.Errorf("multi feed: %w", errors.Join(ErrSource, errors.Join(errs...)))
	}
	return docs, nil
}
