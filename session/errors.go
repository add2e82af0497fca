package session

import "errors"

// Error taxonomy for the engine. Security-relevant failures (invalid id,
// decrypt failure, binding mismatch, timeout) are never surfaced through
// these: they're handled internally by falling back to a fresh session.
// What remains are programmer errors and infrastructure errors.
var (
	// ErrNotStarted indicates an operation was attempted on an Engine before
	// Start succeeded.
	ErrNotStarted = errors.New("session: engine not started")
	// ErrConfig indicates invalid engine configuration, raised eagerly by
	// NewEngine.
	ErrConfig = errors.New("session: invalid config")
	// ErrStoreIO wraps an error returned by the configured Store, surfaced to
	// the caller of Start/Commit/RegenerateId/Destroy so the application can
	// decide how to fail the request.
	ErrStoreIO = errors.New("session: store i/o error")
	// ErrReservedKey indicates Set was called with a key from the internal
	// metadata namespace.
	ErrReservedKey = errors.New("session: key is reserved")
)
