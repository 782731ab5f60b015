package embedder

import (
	"context"
	"errors"
	"strings"
)

// Transient reports whether err is worth retrying. Provider SDKs surface
// HTTP-level failures as opaque strings, so classification is substring based.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()

	// Rate limits
	if containsAny(errStr, "rate limit", "quota exceeded", "429", "resource exhausted") {
		return true
	}

	// Server-side failures
	if containsAny(errStr, "500", "502", "503", "504", "unavailable", "internal error") {
		return true
	}

	// Network failures
	if containsAny(errStr, "connection reset", "connection refused", "timeout", "temporary") {
		return true
	}

	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
