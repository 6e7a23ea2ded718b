package types

import "errors"

var (
	// ErrDuplicateCorrelationID is returned when a correlationId was
	// already submitted; the original submission stands.
	ErrDuplicateCorrelationID = errors.New("correlationId already exists")

	// ErrInvalidRange is returned for a summary query with a "to" bound
	// but no "from" bound.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrCacheTimeout is returned when no health snapshot appeared
	// within the bounded wait while another instance held the refresh
	// lock.
	ErrCacheTimeout = errors.New("timeout waiting for the health cache")

	// ErrNoProcessor is returned when the selector picks neither
	// processor. The current decision table never does this, but the
	// worker handles it anyway.
	ErrNoProcessor = errors.New("no processor available")
)
