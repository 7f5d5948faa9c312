// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store layers.
var (
	// ErrSessionPending indicates a mutation arrived while session hydration
	// is still in flight; the caller should retry shortly.
	ErrSessionPending = errors.New("session pending")

	// ErrAccessDenied indicates a mutation with no active identity.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidProduct indicates an add-to-cart with a malformed product.
	ErrInvalidProduct = errors.New("invalid product")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadSnapshot indicates a durable snapshot that failed to deserialize.
	// Recovered locally: the snapshot is deleted and the store starts empty.
	ErrBadSnapshot = errors.New("bad snapshot")
)
