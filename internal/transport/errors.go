package transport

import "errors"

// ErrorClass partitions delivery failures by how the caller should react.
//
//   - Transient: the send might succeed later (network, rate limit, 5xx).
//     The reminder stays active; the occurrence is missed.
//   - Permanent: the destination is gone for good (bot blocked, chat
//     deleted). Retrying can never succeed; the reminder should be paused.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

type classifiedError struct {
	class ErrorClass
	err   error
}

func (e *classifiedError) Error() string { return string(e.class) + ": " + e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Transient wraps err as a transient delivery failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassTransient, err: err}
}

// Permanent wraps err as a permanent delivery failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassPermanent, err: err}
}

// ClassOf reports the error class of a delivery failure.
// Unclassified errors are treated as transient: a wrongly-paused reminder
// costs more than one missed occurrence.
func ClassOf(err error) ErrorClass {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return ClassTransient
}
