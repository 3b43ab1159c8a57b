package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/cryptox"
	"github.com/dmitrijs2005/authbridge/internal/dbx"
	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/ratelimit"
	"github.com/dmitrijs2005/authbridge/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ValidatePin accepts 4 to 8 ASCII digits.
func ValidatePin(pin string) error {
	return cryptox.ValidatePin(pin)
}

// UserAdmin is the admin-scope slice of the provider client.
type UserAdmin interface {
	AdminGetUser(ctx context.Context, userID string) (*provider.User, error)
	AdminUpdatePassword(ctx context.Context, userID, password string) error
}

// PasswordSignIn is the browser-scope password grant.
type PasswordSignIn interface {
	SignInWithPassword(ctx context.Context, identifier, password string) (*provider.AuthResult, error)
}

// DefaultPinAttemptPolicy bounds sign-in attempts per user and per client
// address, whatever their outcome.
var DefaultPinAttemptPolicy = ratelimit.Policy{Max: 10, Window: 15 * time.Minute}

// PinOptions configures sign-in throttling. A nil Limiter or Lockout gets a
// private in-memory one.
type PinOptions struct {
	Limiter ratelimit.Limiter
	Policy  ratelimit.Policy
	Lockout *ratelimit.Lockout
}

// PinService turns a PIN into the provider password of a user. Setup,
// Resync and SignIn all go through derive, so every path computes the
// same password for the same inputs.
type PinService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	pepper string
	admin  UserAdmin
	auth   PasswordSignIn
	logger logging.Logger

	limiter ratelimit.Limiter
	policy  ratelimit.Policy
	lockout *ratelimit.Lockout
}

// NewPinService fails when pepper is empty: without it no password can be
// derived, and the server must not start.
func NewPinService(db *sql.DB, rm repomanager.RepositoryManager, pepper string, admin UserAdmin, auth PasswordSignIn, logger logging.Logger, opts PinOptions) (*PinService, error) {
	if pepper == "" {
		return nil, cryptox.ErrNoPepper
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	if opts.Policy == (ratelimit.Policy{}) {
		opts.Policy = DefaultPinAttemptPolicy
	}
	if opts.Limiter == nil || opts.Lockout == nil {
		mem := ratelimit.NewMemoryLimiter(nil)
		if opts.Limiter == nil {
			opts.Limiter = mem
		}
		if opts.Lockout == nil {
			opts.Lockout = ratelimit.NewLockout(mem, 0, 0)
		}
	}
	return &PinService{
		db:      db,
		rm:      rm,
		pepper:  pepper,
		admin:   admin,
		auth:    auth,
		logger:  logger,
		limiter: opts.Limiter,
		policy:  opts.Policy,
		lockout: opts.Lockout,
	}, nil
}

func (s *PinService) derive(pin, userID, salt string) (string, error) {
	return cryptox.DeriveProviderPassword(pin, userID, salt, s.pepper)
}

func validateUserID(userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("%w: user id", common.ErrorValidation)
	}
	return nil
}

// loadSalt returns the user's stored salt, ErrNoPinRow or cryptox.ErrNoSalt.
func (s *PinService) loadSalt(ctx context.Context, userID string) (string, error) {
	row, err := s.rm.Pins(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", ErrNoPinRow
		}
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if !row.HasSalt() {
		return "", cryptox.ErrNoSalt
	}
	return row.Salt.String, nil
}

// Resync recomputes the user's provider password from pin and the stored
// salt and pushes it to the provider. It is the operator path for a user
// whose PIN changed out of band.
func (s *PinService) Resync(ctx context.Context, userID, pin string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := ValidatePin(pin); err != nil {
		return err
	}

	salt, err := s.loadSalt(ctx, userID)
	if err != nil {
		return err
	}
	password, err := s.derive(pin, userID, salt)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if err := s.admin.AdminUpdatePassword(ctx, userID, password); err != nil {
		s.logger.Error(ctx, "pin resync: provider update failed", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %v", ErrProviderUpdate, err)
	}
	s.logger.Info(ctx, "pin resynced", "user_id", userID)
	return nil
}

// Setup stores a fresh salt for the user and sets the derived password at
// the provider. The salt row commits only if the provider accepted the
// password, so the two never disagree.
func (s *PinService) Setup(ctx context.Context, userID, pin string) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}

	salt := cryptox.NewSalt()
	password, err := s.derive(pin, userID, salt)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.rm.Pins(tx).Upsert(ctx, userID, salt); err != nil {
			return fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
		if err := s.admin.AdminUpdatePassword(ctx, userID, password); err != nil {
			return fmt.Errorf("%w: %v", ErrProviderUpdate, err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "pin setup failed", "user_id", userID, "error", err)
		if errors.Is(err, ErrProviderUpdate) {
			return err
		}
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	s.logger.Info(ctx, "pin set up", "user_id", userID)
	return nil
}

// SignIn derives the user's provider password from pin and signs in with
// it. A wrong PIN surfaces as ErrInvalidCredentials. Attempts are limited
// per client address and per user, and a user whose wrong PINs reach the
// lockout threshold is refused with common.ErrRateLimited until the lockout
// window ends.
func (s *PinService) SignIn(ctx context.Context, userID, pin, clientIP string) (*provider.AuthResult, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := ValidatePin(pin); err != nil {
		return nil, err
	}
	if err := s.admit(ctx, userID, clientIP); err != nil {
		return nil, err
	}

	res, err := s.signIn(ctx, userID, pin)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		locked, lerr := s.lockout.Fail(ctx, pinKey(userID))
		if lerr != nil {
			s.logger.Error(ctx, "pin lockout unavailable", "error", lerr)
		} else if locked {
			s.logger.Warn(ctx, "pin sign-in locked", "user_id", userID)
		}
	case err == nil:
		if lerr := s.lockout.Reset(ctx, pinKey(userID)); lerr != nil {
			s.logger.Error(ctx, "pin lockout unavailable", "error", lerr)
		}
	}
	return res, err
}

func pinKey(userID string) string { return "pin:" + userID }

// admit refuses locked users and spends one attempt from the address and
// user buckets, address first.
func (s *PinService) admit(ctx context.Context, userID, clientIP string) error {
	locked, err := s.lockout.Locked(ctx, pinKey(userID))
	if err != nil {
		return fmt.Errorf("%w: lockout: %v", common.ErrorInternal, err)
	}
	if locked {
		s.logger.Warn(ctx, "pin sign-in refused: locked", "user_id", userID)
		return common.ErrRateLimited
	}

	var ipKey string
	if clientIP != "" {
		ipKey = "pin-ip:" + clientIP
	}
	ok, err := s.policy.Allow(ctx, s.limiter, ipKey, pinKey(userID))
	if err != nil {
		return fmt.Errorf("%w: rate limiter: %v", common.ErrorInternal, err)
	}
	if !ok {
		s.logger.Warn(ctx, "pin sign-in rate limited", "user_id", userID)
		return common.ErrRateLimited
	}
	return nil
}

func (s *PinService) signIn(ctx context.Context, userID, pin string) (*provider.AuthResult, error) {
	salt, err := s.loadSalt(ctx, userID)
	if err != nil {
		return nil, err
	}
	password, err := s.derive(pin, userID, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	user, err := s.admin.AdminGetUser(ctx, userID)
	if err != nil {
		if apiErr, ok := provider.AsAPIError(err); ok && apiErr.Status == 404 {
			return nil, ErrNoPinRow
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	identifier := signInIdentifier(user)
	if identifier == "" {
		return nil, fmt.Errorf("%w: user has neither email nor phone", common.ErrorInternal)
	}

	res, err := s.auth.SignInWithPassword(ctx, identifier, password)
	if err != nil {
		if apiErr, ok := provider.AsAPIError(err); ok && apiErr.IsInvalidCode() {
			s.logger.Info(ctx, "pin sign-in rejected", "user_id", userID)
			return nil, ErrInvalidCredentials
		}
		if apiErr, ok := provider.AsAPIError(err); ok && apiErr.IsRateLimited() {
			return nil, common.ErrRateLimited
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if res == nil || res.Session == nil {
		return nil, ErrNoSession
	}
	return res, nil
}

// signInIdentifier prefers email. The provider stores phones without the
// leading "+".
func signInIdentifier(u *provider.User) string {
	if u == nil {
		return ""
	}
	if u.Email != "" {
		return u.Email
	}
	if u.Phone != "" {
		if strings.HasPrefix(u.Phone, "+") {
			return u.Phone
		}
		return "+" + u.Phone
	}
	return ""
}
