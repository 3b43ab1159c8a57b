package services

import (
	"errors"

	"github.com/dmitrijs2005/authbridge/internal/cryptox"
)

var (
	// OTP verification.
	ErrInvalidCode      = errors.New("invalid or expired code")
	ErrNoSession        = errors.New("verified without a session")
	ErrTooManyAttempts  = errors.New("too many verification attempts")
	ErrProviderRejected = errors.New("identity provider rejected the request")
	ErrMissingToken     = errors.New("token required")

	// PIN flows.
	ErrInvalidPin         = cryptox.ErrInvalidPin
	ErrNoPinRow           = errors.New("no pin configured for user")
	ErrProviderUpdate     = errors.New("provider password update failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
