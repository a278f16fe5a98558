package types

import "errors"

// Sentinel errors for common error conditions. Read misses are reported as
// nil results, not errors; these cover the failure paths that do surface.
var (
	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderNotAvailable is returned when an embedding provider is not available.
	ErrProviderNotAvailable = errors.New("provider not available")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrConstraint is returned when a write violates a foreign key or
	// uniqueness constraint.
	ErrConstraint = errors.New("constraint violation")
)
