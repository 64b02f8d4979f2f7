// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")

	// ErrUnavailable means a remote store is not configured. It is a state,
	// not a failure.
	ErrUnavailable = errors.New("remote store unavailable")
)
