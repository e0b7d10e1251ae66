// Package apperr defines sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrOrphanedHeader means a meal header survived a failed write and
	// could not be removed. It needs operator attention.
	ErrOrphanedHeader = errors.New("orphaned meal header")
)
