// Package apperr defines the error taxonomy shared across the service.
// Every failure a caller can observe wraps one of these sentinels, so
// transport code can classify with errors.Is without parsing messages.
package apperr

import "errors"

var (
	// Validation failures: bad input shape or range.
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidDate         = errors.New("invalid expense date")
	ErrEmptyCategory       = errors.New("category cannot be empty")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidOutcome      = errors.New("outcome must be approve or reject")
	ErrInvalidRole         = errors.New("unknown role")

	// Authentication failures. ErrInvalidCredentials deliberately covers
	// both unknown email and wrong password so callers cannot enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAuthRequired       = errors.New("authentication required")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrExpiredToken       = errors.New("session expired")

	// Authorization and lifecycle failures.
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("operation not permitted in current state")

	ErrDuplicateEmail = errors.New("email already registered")
)
