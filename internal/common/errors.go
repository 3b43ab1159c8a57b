// Package common defines shared constants, sentinel errors and small helpers
// used by both the bridge server and the terminal client. Callers should
// match the errors with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Abuse prevention.
	ErrRateLimited = errors.New("rate limited")
)
