package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrMissingOrderID is the validation fast-fail for an intent without an
	// order id. It is never retried: the input cannot change between
	// deliveries, so rescheduling would loop forever.
	ErrMissingOrderID = errors.New("job missing orderId")

	// ErrAttemptsExhausted marks an order the scheduler has permanently
	// failed after its final attempt.
	ErrAttemptsExhausted = errors.New("attempts exhausted")

	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
