package knowledge

import "errors"

var (
	// ErrStore marks a failure of the underlying vector index. Wrapped into
	// every error returned by Store so callers can distinguish store outages
	// from other failures with errors.Is.
	ErrStore = errors.New("knowledge store failure")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// dimension the store was created with. Permanent: retrying the same
	// vector can never succeed.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
