package testutil

import (
	"context"
	"fmt"
	"sync"
)

// StubEmbedder is a deterministic in-memory embedder for tests. Texts embed
// to preset vectors; unknown texts produce an error. Calls are counted so
// tests can assert on retry and skip behavior.
type StubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	errs    map[string]error
	calls   int
}

// NewStubEmbedder creates an embedder returning the given text-to-vector map.
func NewStubEmbedder(vectors map[string][]float32) *StubEmbedder {
	return &StubEmbedder{
		vectors: vectors,
		errs:    make(map[string]error),
	}
}

// FailWith makes Embed return err for the given text.
func (s *StubEmbedder) FailWith(text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[text] = err
}

// Calls reports how many times Embed has been invoked.
func (s *StubEmbedder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Embed returns the preset vector for text.
func (s *StubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if err, ok := s.errs[text]; ok {
		return nil, err
	}
	vec, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}
