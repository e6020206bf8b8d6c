// Package common defines sentinel errors shared across the service layers.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig marks a deployment invariant violation (for example a role
	// row missing from the database), not a client mistake.
	ErrConfig = errors.New("server misconfiguration")

	// Credential errors.
	ErrWrongPassword = errors.New("wrong password")

	// Token errors. The auth service logs the concrete kind and reports
	// only ErrUnauthorized past its boundary.
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("malformed token")

	// Role mutation errors.
	ErrAlreadyAssigned = errors.New("role already assigned")
	ErrNotAssigned     = errors.New("role not assigned")
	ErrLastRole        = errors.New("user must keep at least one role")
)
