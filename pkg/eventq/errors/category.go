// Package errors provides failure categorization and retry policies for
// queue subscribers.
//
// The package implements a small layered approach:
//   - Categorization: decide whether a failed dispatch may be retried
//   - Retry policy: how many attempts a job gets and how long to wait
//     between them
package errors

import (
	"errors"
	"fmt"
)

// Category represents how a subscriber failure should be handled.
type Category int

const (
	// CategoryTransient indicates another attempt may succeed.
	// Any error that was not explicitly categorized is transient.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retrying is pointless.
	// Examples: malformed payloads, unknown bot, revoked credentials.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %v (category: %s)", e.Context, e.Err, e.Category)
	}
	return fmt.Sprintf("%v (category: %s)", e.Err, e.Category)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient marks err as retryable.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent marks err as not retryable. A subscriber returning a permanent
// error causes the job to be dropped without spending its retry budget.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Categorize determines how an error should be handled.
//
// Unlike a general purpose classifier, unknown errors are transient: a
// subscriber signals failure by returning any error, and the queue's
// contract is to retry it while budget remains.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	return CategoryTransient
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return err != nil && Categorize(err) == CategoryTransient
}

// IsPermanent reports whether the error was marked permanent.
func IsPermanent(err error) bool {
	return err != nil && Categorize(err) == CategoryPermanent
}
