package knowledge

import "time"

// Metadata carries the displayable payload stored alongside an embedding.
// It is what retrieval hands back to the chat layer to ground a response.
type Metadata struct {
	Title           string    // Document title
	Content         string    // Document text content
	SourceTimestamp time.Time // When the source last changed the document
}

// Record is an embedding record as written to the store. A later Record with
// the same ID supersedes the previous one entirely; records are never merged.
type Record struct {
	ID          string    // Stable document identifier
	Vector      []float32 // Fixed-length embedding vector
	Meta        Metadata
	ContentHash string    // Hash of the source content, used to skip re-embedding
	IndexedAt   time.Time // When this record was written
}

// Match is a single retrieval result.
// Consumers rely on matches being ordered by descending Score.
type Match struct {
	ID    string
	Score float32 // Cosine similarity in [-1, 1]
	Meta  Metadata
}
