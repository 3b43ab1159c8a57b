package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
)

// TokenClient is the provider surface used to keep sessions alive.
type TokenClient interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*provider.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*provider.AuthResult, error)
	SignOut(ctx context.Context, accessToken string) error
}

// SessionService validates tokens the client pushes and talks to the
// provider for exchange, refresh and sign-out. It never writes cookies;
// callers commit the returned sessions themselves.
type SessionService struct {
	tokens   TokenClient
	verifier sessions.TokenVerifier
	logger   logging.Logger
}

func NewSessionService(tokens TokenClient, verifier sessions.TokenVerifier, logger logging.Logger) *SessionService {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &SessionService{tokens: tokens, verifier: verifier, logger: logger}
}

// Sync accepts a token pair from the client runtime after checking that the
// access token is genuine.
func (s *SessionService) Sync(ctx context.Context, accessToken, refreshToken string) (*provider.Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	p, err := s.verifier.Verify(ctx, accessToken)
	if err != nil {
		if errors.Is(err, sessions.ErrUnauthenticated) {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
		}
		return nil, err
	}

	sess := &provider.Session{
		AccessToken:  accessToken,
		RefreshToken: strings.TrimSpace(refreshToken),
		UserID:       p.UserID,
	}
	if claims, err := provider.ParseClaims(accessToken); err == nil && claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.UTC()
	}
	return sess, nil
}

// Exchange completes a PKCE code exchange.
func (s *SessionService) Exchange(ctx context.Context, code, verifier string) (*provider.AuthResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingToken
	}
	res, err := s.tokens.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, s.tokenError(ctx, "code exchange failed", err)
	}
	if res.Session == nil {
		return nil, ErrNoSession
	}
	return res, nil
}

// Refresh trades a refresh token for a new session.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*provider.AuthResult, error) {
	if refreshToken == "" {
		return nil, sessions.ErrUnauthenticated
	}
	res, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		err = s.tokenError(ctx, "refresh failed", err)
		if errors.Is(err, ErrInvalidCode) {
			return nil, sessions.ErrUnauthenticated
		}
		return nil, err
	}
	if res.Session == nil {
		return nil, sessions.ErrUnauthenticated
	}
	return res, nil
}

// SignOut revokes the session at the provider. Failures are logged and
// dropped: the caller clears cookies either way.
func (s *SessionService) SignOut(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	if err := s.tokens.SignOut(ctx, accessToken); err != nil {
		s.logger.Warn(ctx, "provider sign-out failed", "error", err)
	}
}

func (s *SessionService) tokenError(ctx context.Context, msg string, err error) error {
	if apiErr, ok := provider.AsAPIError(err); ok {
		if apiErr.IsRateLimited() {
			return common.ErrRateLimited
		}
		if apiErr.IsInvalidCode() {
			s.logger.Info(ctx, msg, "status", apiErr.Status, "code", apiErr.Code)
			return ErrInvalidCode
		}
	}
	s.logger.Error(ctx, msg, "error", err)
	return fmt.Errorf("%w: %v", common.ErrorInternal, err)
}
