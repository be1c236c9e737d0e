package schedule

import "errors"

var (
	// ErrInvalidTransition is returned for an out-of-order check-in action.
	ErrInvalidTransition = errors.New("invalid check-in transition")
	// ErrMissingEvidence is returned when an arrival is submitted without a photo reference.
	ErrMissingEvidence = errors.New("arrival photo required")
	// ErrNotFound is returned for unknown photographers or schedules, or a schedule the photographer is not booked on.
	ErrNotFound = errors.New("not found")
	// ErrEstimationFailure marks a failed geocode or route lookup. It never leaves the travel-time cache.
	ErrEstimationFailure = errors.New("travel estimation failed")
	// ErrCorruptRecord is returned when a stored check-in record breaks its invariants.
	ErrCorruptRecord = errors.New("check-in record violates invariants")
)
