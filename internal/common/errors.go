// Package common defines sentinel errors shared by the repositories, services
// and the HTTP layer of the registry mirror. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrInvalidArgument marks caller mistakes: bad limit, cursor or filter value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidRecord marks an upstream record rejected by validation.
	// It is never fatal for a sync run.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUpstream wraps transport and status failures of the upstream feed.
	ErrUpstream = errors.New("upstream error")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
