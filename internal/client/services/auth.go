// Package services contains application services for the authbridge
// terminal client. AuthService drives the sign-in flows: OTP by email or
// phone, PIN setup, PIN unlock, refresh and logout. Every session change
// goes through the runtime's token store, which persists it locally and
// mirrors it into the server's cookies.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authbridge/internal/client/session"
	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/cryptox"
	"github.com/dmitrijs2005/authbridge/internal/identity"
	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/provider"
)

var (
	ErrNotSignedIn   = errors.New("not signed in")
	ErrNoLocalPin    = errors.New("no pin set up on this device")
	ErrInvalidCode   = errors.New("invalid or expired code")
	ErrNoSession     = errors.New("verified without a session")
	ErrSessionGone   = errors.New("session expired, sign in again")
	ErrNoKnownUserID = errors.New("no user has signed in on this device")
)

// Bridge is the bridge server surface the client uses.
type Bridge interface {
	Ping(ctx context.Context) error
	SendEmailOTP(ctx context.Context, email string) error
	SendPhoneOTP(ctx context.Context, phone string) error
	SetupPin(ctx context.Context, pin string) error
	PinSignIn(ctx context.Context, userID, pin string) (*provider.AuthResult, error)
	SessionStatus(ctx context.Context) (bool, error)
	SignOut(ctx context.Context) error
	Me(ctx context.Context) (*provider.User, error)
	Close() error
}

// Identity is the browser-scope provider client.
type Identity interface {
	VerifyOTP(ctx context.Context, typ provider.OTPType, identifier, token string) (*provider.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*provider.AuthResult, error)
}

// LocalStore keeps the device's user id and sealed PIN secret.
type LocalStore interface {
	UserID(ctx context.Context) (string, error)
	LoadPinSecret(ctx context.Context) (*cryptox.LocalPinSecret, error)
	SavePinSecret(ctx context.Context, s *cryptox.LocalPinSecret) error
	Forget(ctx context.Context) error
}

// Status is what the client knows about its sign-in state.
type Status struct {
	Session             *provider.Session
	ServerAuthenticated bool
	ServerReachable     bool
	HasPin              bool
}

// AuthService defines the CLI's authentication operations. All methods
// honour context cancellation.
type AuthService interface {
	Ping(ctx context.Context) error
	SendCode(ctx context.Context, id identity.Identifier) error
	VerifyCode(ctx context.Context, id identity.Identifier, code string) (*provider.User, error)
	SetPIN(ctx context.Context, pin string) error
	Unlock(ctx context.Context, pin string) error
	Status(ctx context.Context) (*Status, error)
	SignedIn(ctx context.Context) bool
	Me(ctx context.Context) (*provider.User, error)
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	Forget(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	bridge   Bridge
	identity Identity
	local    LocalStore
	runtime  *session.Runtime
	logger   logging.Logger
}

func NewAuthService(b Bridge, id Identity, local LocalStore, rt *session.Runtime, logger logging.Logger) AuthService {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &authService{bridge: b, identity: id, local: local, runtime: rt, logger: logger}
}

func (a *authService) tokens() *session.Store {
	return a.runtime.Store()
}

func (a *authService) Ping(ctx context.Context) error {
	return a.bridge.Ping(ctx)
}

// SendCode asks the bridge to send a one-time code to id.
func (a *authService) SendCode(ctx context.Context, id identity.Identifier) error {
	if id.IsEmail() {
		return a.bridge.SendEmailOTP(ctx, id.Value)
	}
	return a.bridge.SendPhoneOTP(ctx, id.Value)
}

// VerifyCode checks code with the provider and signs in on success.
func (a *authService) VerifyCode(ctx context.Context, id identity.Identifier, code string) (*provider.User, error) {
	typ := provider.OTPSMS
	if id.IsEmail() {
		typ = provider.OTPEmail
	}
	res, err := a.identity.VerifyOTP(ctx, typ, id.Value, code)
	if err != nil {
		if apiErr, ok := provider.AsAPIError(err); ok && apiErr.IsClientError() && !apiErr.IsRateLimited() {
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	if res == nil || res.Session == nil {
		return nil, ErrNoSession
	}
	if err := a.tokens().HandleAuthEvent(ctx, session.EventSignedIn, res.Session); err != nil {
		return nil, err
	}
	return res.User, nil
}

// SetPIN registers pin with the server for the signed-in user and then
// seals a fresh local secret with it. The local secret is only written once
// the server has accepted the PIN.
func (a *authService) SetPIN(ctx context.Context, pin string) error {
	if err := cryptox.ValidatePin(pin); err != nil {
		return err
	}
	sess := a.tokens().GetOrCreateClientSession(ctx)
	if sess == nil {
		return ErrNotSignedIn
	}
	// Make sure the server holds the cookies the setup call is checked against.
	a.tokens().SyncSessionCookies(ctx, sess)

	if err := a.bridge.SetupPin(ctx, pin); err != nil {
		return fmt.Errorf("pin setup: %w", err)
	}

	sec, plain, err := cryptox.SealPinSecret(pin)
	if err != nil {
		return err
	}
	common.WipeByteArray(plain)
	return a.local.SavePinSecret(ctx, sec)
}

// Unlock proves the PIN locally against the sealed secret, then asks the
// server for a session with it. A wrong PIN never leaves the device.
func (a *authService) Unlock(ctx context.Context, pin string) error {
	if err := cryptox.ValidatePin(pin); err != nil {
		return err
	}
	sec, err := a.local.LoadPinSecret(ctx)
	if err != nil {
		return err
	}
	if sec == nil {
		return ErrNoLocalPin
	}
	plain, err := cryptox.OpenPinSecret(pin, sec)
	if err != nil {
		return err
	}
	common.WipeByteArray(plain)

	userID, err := a.local.UserID(ctx)
	if err != nil {
		return err
	}
	if userID == "" {
		return ErrNoKnownUserID
	}

	res, err := a.bridge.PinSignIn(ctx, userID, pin)
	if err != nil {
		return fmt.Errorf("pin sign-in: %w", err)
	}
	return a.tokens().HandleAuthEvent(ctx, session.EventSignedIn, res.Session)
}

// Status waits briefly for a local session, then asks the server whether it
// sees one too.
func (a *authService) Status(ctx context.Context) (*Status, error) {
	st := &Status{Session: a.tokens().WaitForSession(ctx)}

	sec, err := a.local.LoadPinSecret(ctx)
	if err != nil {
		return nil, err
	}
	st.HasPin = sec != nil

	ok, err := a.bridge.SessionStatus(ctx)
	if err != nil {
		a.logger.Debug(ctx, "session status unavailable", "error", err)
		return st, nil
	}
	st.ServerReachable = true
	st.ServerAuthenticated = ok
	return st, nil
}

// SignedIn reports whether a live local session exists, without waiting.
func (a *authService) SignedIn(ctx context.Context) bool {
	return a.tokens().GetOrCreateClientSession(ctx) != nil
}

// Me asks the server who the session cookies belong to.
func (a *authService) Me(ctx context.Context) (*provider.User, error) {
	if !a.SignedIn(ctx) {
		return nil, ErrNotSignedIn
	}
	return a.bridge.Me(ctx)
}

// Refresh trades the refresh token for a new session.
func (a *authService) Refresh(ctx context.Context) error {
	cur := a.tokens().Current(ctx)
	if cur == nil || cur.RefreshToken == "" {
		return ErrNotSignedIn
	}
	res, err := a.identity.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		if apiErr, ok := provider.AsAPIError(err); ok && apiErr.IsClientError() && !apiErr.IsRateLimited() {
			_ = a.tokens().HandleAuthEvent(ctx, session.EventSignedOut, nil)
			return ErrSessionGone
		}
		return err
	}
	if res == nil || res.Session == nil {
		return ErrNoSession
	}
	return a.tokens().HandleAuthEvent(ctx, session.EventTokenRefreshed, res.Session)
}

// Logout forgets the local session and, best effort, the server's.
func (a *authService) Logout(ctx context.Context) error {
	if err := a.bridge.SignOut(ctx); err != nil {
		a.logger.Warn(ctx, "server sign-out failed", "error", err)
	}
	return a.tokens().HandleAuthEvent(ctx, session.EventSignedOut, nil)
}

// Forget logs out and wipes the device's user id and PIN secret.
func (a *authService) Forget(ctx context.Context) error {
	if err := a.Logout(ctx); err != nil {
		return err
	}
	return a.local.Forget(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.bridge.Close()
}
