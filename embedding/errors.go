package embedding

import "errors"

var (
	// ErrEmbedderRequired is returned when a dispatcher is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrLengthMismatch is returned when a provider answers a batch with the
	// wrong number of vectors.
	ErrLengthMismatch = errors.New("embedding count mismatch")
)
