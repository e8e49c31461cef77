package worker

import "errors"

var (
	// ErrInvalidMessage is returned when a delivery body is not a report request
	ErrInvalidMessage = errors.New("invalid report request message")

	// ErrMaxRedeliveriesExceeded is returned when a request kept failing past its retry limit
	ErrMaxRedeliveriesExceeded = errors.New("max redeliveries exceeded")

	// ErrDeliveriesClosed is returned by Start when the broker closes the delivery channel
	ErrDeliveriesClosed = errors.New("delivery channel closed")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
