// Package services contains the bridge server's business logic: the OTP
// verification flow, PIN-derived provider passwords, and session upkeep.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/identity"
	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/ratelimit"
	"github.com/google/uuid"
)

// ChallengeState is a step of the OTP flow:
//
//	Idle -> Sent -> Verifying -> Authenticated
//	                          -> Failed -> Verifying (while attempts remain)
//
// Sent -> Sent (resend) happens only when the rate limiter permits it.
type ChallengeState int

const (
	StateIdle ChallengeState = iota
	StateSent
	StateVerifying
	StateAuthenticated
	StateFailed
)

func (s ChallengeState) String() string {
	return [...]string{"idle", "sent", "verifying", "authenticated", "failed"}[s]
}

const (
	DefaultMaxAttempts  = 5
	DefaultChallengeTTL = time.Hour
)

// Challenge tracks one identifier's outstanding code. The code itself lives
// only at the provider.
type Challenge struct {
	ID                string
	Identifier        identity.Identifier
	IssuedAt          time.Time
	AttemptsRemaining int
	State             ChallengeState
}

// OTPProvider is the slice of the provider client the flow needs.
type OTPProvider interface {
	SendEmailOTP(ctx context.Context, email, redirectTo string) error
	SendPhoneOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, typ provider.OTPType, identifier, token string) (*provider.AuthResult, error)
}

type OTPOptions struct {
	Policy       ratelimit.Policy
	MaxAttempts  int
	ChallengeTTL time.Duration
	Now          func() time.Time
}

// OTPService runs send and verify for both channels.
type OTPService struct {
	provider OTPProvider
	limiter  ratelimit.Limiter
	policy   ratelimit.Policy
	logger   logging.Logger

	maxAttempts int
	ttl         time.Duration
	now         func() time.Time

	mu         sync.Mutex
	challenges map[string]*Challenge
}

func NewOTPService(p OTPProvider, l ratelimit.Limiter, logger logging.Logger, opts OTPOptions) *OTPService {
	if opts.Policy == (ratelimit.Policy{}) {
		opts.Policy = ratelimit.DefaultPolicy()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = DefaultChallengeTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &OTPService{
		provider:    p,
		limiter:     l,
		policy:      opts.Policy,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		ttl:         opts.ChallengeTTL,
		now:         opts.Now,
		challenges:  make(map[string]*Challenge),
	}
}

// SendEmail validates the address, checks the limiter for both the address
// and the caller's IP, and asks the provider to mail a code. Validation
// failures return identity errors before anything leaves the process.
func (s *OTPService) SendEmail(ctx context.Context, email, redirectTo, clientIP string) (*Challenge, error) {
	id, err := identity.ParseEmail(email)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, id, clientIP, func() error {
		return s.provider.SendEmailOTP(ctx, id.Value, redirectTo)
	})
}

// SendPhone canonicalizes the number first; only the canonical form is ever
// sent to.
func (s *OTPService) SendPhone(ctx context.Context, phone, clientIP string) (*Challenge, error) {
	id, err := identity.ParsePhone(phone)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, id, clientIP, func() error {
		return s.provider.SendPhoneOTP(ctx, id.Value)
	})
}

func (s *OTPService) send(ctx context.Context, id identity.Identifier, clientIP string, call func() error) (*Challenge, error) {
	var ipKey string
	if clientIP != "" {
		ipKey = "ip:" + clientIP
	}
	ok, err := s.policy.Allow(ctx, s.limiter, ipKey, id.Key())
	if err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", common.ErrorInternal, err)
	}
	if !ok {
		s.logger.Warn(ctx, "otp send rate limited", "channel", string(id.Channel))
		return nil, common.ErrRateLimited
	}

	if err := call(); err != nil {
		return nil, s.providerError(ctx, "otp send failed", id, err)
	}

	c := &Challenge{
		ID:                uuid.NewString(),
		Identifier:        id,
		IssuedAt:          s.now(),
		AttemptsRemaining: s.maxAttempts,
		State:             StateSent,
	}
	s.mu.Lock()
	s.challenges[id.Key()] = c
	s.mu.Unlock()

	s.logger.Info(ctx, "otp sent", "channel", string(id.Channel), "challenge_id", c.ID)
	cp := *c
	return &cp, nil
}

// VerifyEmail exchanges an emailed code for a session.
func (s *OTPService) VerifyEmail(ctx context.Context, email, token string) (*provider.AuthResult, error) {
	id, err := identity.ParseEmail(email)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, id, provider.OTPEmail, token)
}

// VerifyPhone exchanges a texted code for a session.
func (s *OTPService) VerifyPhone(ctx context.Context, phone, token string) (*provider.AuthResult, error) {
	id, err := identity.ParsePhone(phone)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, id, provider.OTPSMS, token)
}

// verify succeeds only if the provider returns a session. Codes are single
// use: once a challenge is authenticated, further verifies fail until a new
// code is sent. A challenge unknown locally (restart, other instance) is
// still checked with the provider, which stays authoritative.
func (s *OTPService) verify(ctx context.Context, id identity.Identifier, typ provider.OTPType, token string) (*provider.AuthResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	key := id.Key()
	s.mu.Lock()
	c, ok := s.challenges[key]
	if ok && s.now().Sub(c.IssuedAt) >= s.ttl {
		delete(s.challenges, key)
		ok = false
	}
	if ok {
		switch {
		case c.State == StateAuthenticated:
			s.mu.Unlock()
			return nil, ErrInvalidCode
		case c.State == StateVerifying:
			s.mu.Unlock()
			return nil, ErrInvalidCode
		case c.AttemptsRemaining <= 0:
			s.mu.Unlock()
			return nil, ErrTooManyAttempts
		}
		c.State = StateVerifying
	}
	s.mu.Unlock()

	res, err := s.provider.VerifyOTP(ctx, typ, id.Value, token)
	if err == nil && (res == nil || res.Session == nil) {
		err = ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		outErr := s.verifyError(ctx, id, err)
		if ok {
			if errors.Is(outErr, ErrInvalidCode) || errors.Is(outErr, ErrNoSession) {
				c.AttemptsRemaining--
				c.State = StateFailed
			} else {
				c.State = StateSent
			}
		}
		return nil, outErr
	}

	if ok {
		c.State = StateAuthenticated
	} else {
		s.challenges[key] = &Challenge{
			ID:         uuid.NewString(),
			Identifier: id,
			IssuedAt:   s.now(),
			State:      StateAuthenticated,
		}
	}
	s.logger.Info(ctx, "otp verified", "channel", string(id.Channel), "user_id", res.Session.UserID)
	return res, nil
}

func (s *OTPService) verifyError(ctx context.Context, id identity.Identifier, err error) error {
	if errors.Is(err, ErrNoSession) {
		s.logger.Warn(ctx, "otp verified without session", "channel", string(id.Channel))
		return ErrNoSession
	}
	if apiErr, ok := provider.AsAPIError(err); ok {
		switch {
		case apiErr.IsRateLimited():
			return common.ErrRateLimited
		case apiErr.IsInvalidCode():
			s.logger.Info(ctx, "otp rejected", "channel", string(id.Channel), "code", apiErr.Code)
			return ErrInvalidCode
		}
	}
	s.logger.Error(ctx, "otp verify failed", "channel", string(id.Channel), "error", err)
	return fmt.Errorf("%w: %v", common.ErrorInternal, err)
}

func (s *OTPService) providerError(ctx context.Context, msg string, id identity.Identifier, err error) error {
	if apiErr, ok := provider.AsAPIError(err); ok {
		switch {
		case apiErr.IsRateLimited():
			return common.ErrRateLimited
		case apiErr.IsClientError():
			s.logger.Warn(ctx, msg, "channel", string(id.Channel), "status", apiErr.Status, "code", apiErr.Code)
			return fmt.Errorf("%w: %s", ErrProviderRejected, apiErr.Message)
		}
	}
	s.logger.Error(ctx, msg, "channel", string(id.Channel), "error", err)
	return fmt.Errorf("%w: %v", common.ErrorInternal, err)
}

// Challenge returns a copy of the identifier's current challenge.
func (s *OTPService) Challenge(id identity.Identifier) (Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id.Key()]
	if !ok {
		return Challenge{Identifier: id, State: StateIdle}, false
	}
	return *c, true
}

// Sweep forgets challenges older than the challenge TTL.
func (s *OTPService) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.challenges {
		if now.Sub(c.IssuedAt) >= s.ttl {
			delete(s.challenges, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *OTPService) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
