// Package derrors holds the sentinel errors shared across the engine.
// Stores and infrastructure layers return these (optionally wrapped) so
// callers can classify failures with errors.Is.
package derrors

import "errors"

var (
	// ErrNotFound -- the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCatalogUnavailable -- the geofence catalog could not be read.
	// Retryable: the update was not processed and no state was mutated.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrQueueFull -- a per-user update queue is at its depth bound.
	// The update was shed rather than reordered; callers may retry.
	ErrQueueFull = errors.New("queue full")

	// ErrStopped -- the component has shut down and accepts no more work.
	ErrStopped = errors.New("stopped")
)
