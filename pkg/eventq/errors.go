package eventq

import (
	"errors"
)

var (
	// ErrEmptyKey is the panic value raised when a KeyFunc returns "".
	ErrEmptyKey = errors.New("eventq: key function returned an empty key")

	// ErrSubscriberPanic wraps a panic recovered from a subscriber.
	ErrSubscriberPanic = errors.New("subscriber panic")
)
