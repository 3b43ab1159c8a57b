package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/netip"

	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/netx"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/services"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
)

// OTPFlow is the OTP send/verify surface.
type OTPFlow interface {
	SendEmail(ctx context.Context, email, redirectTo, clientIP string) (*services.Challenge, error)
	SendPhone(ctx context.Context, phone, clientIP string) (*services.Challenge, error)
	VerifyEmail(ctx context.Context, email, token string) (*provider.AuthResult, error)
	VerifyPhone(ctx context.Context, phone, token string) (*provider.AuthResult, error)
}

// PinFlow is the PIN setup, resync and sign-in surface.
type PinFlow interface {
	Setup(ctx context.Context, userID, pin string) error
	Resync(ctx context.Context, userID, pin string) error
	SignIn(ctx context.Context, userID, pin, clientIP string) (*provider.AuthResult, error)
}

// SessionFlow keeps server-side sessions in step with the provider.
type SessionFlow interface {
	Sync(ctx context.Context, accessToken, refreshToken string) (*provider.Session, error)
	Exchange(ctx context.Context, code, verifier string) (*provider.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*provider.AuthResult, error)
	SignOut(ctx context.Context, accessToken string)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	OTP      OTPFlow
	Pins     PinFlow
	Sessions SessionFlow
	Guard    *sessions.Guard
	Cookies  sessions.CookiePolicy

	// AdminSecret gates /api/admin. Empty disables the admin routes.
	AdminSecret string

	// TrustedProxies may set X-Forwarded-For and X-Real-Ip. Headers from
	// any other peer are ignored.
	TrustedProxies []netip.Prefix

	Health []HealthCheck
	Logger logging.Logger
}

// Handler holds the endpoint implementations.
type Handler struct {
	otp         OTPFlow
	pins        PinFlow
	sessions    SessionFlow
	guard       *sessions.Guard
	cookies     sessions.CookiePolicy
	adminSecret []byte
	proxies     []netip.Prefix
	health      []HealthCheck
	logger      logging.Logger
}

func NewHandler(o Options) *Handler {
	if o.Logger == nil {
		o.Logger = logging.Nop{}
	}
	if o.Guard == nil {
		o.Guard = sessions.NewGuard(nopVerifier{}, "", o.Logger)
	}
	return &Handler{
		otp:         o.OTP,
		pins:        o.Pins,
		sessions:    o.Sessions,
		guard:       o.Guard,
		cookies:     o.Cookies,
		adminSecret: []byte(o.AdminSecret),
		proxies:     o.TrustedProxies,
		health:      o.Health,
		logger:      o.Logger.With("module", "api"),
	}
}

// jar starts a fresh cookie set for one response.
func (h *Handler) jar() *sessions.CookieJar {
	return sessions.NewCookieJar(h.cookies)
}

// isAdmin compares the admin header in constant time. An unset secret
// admits nobody.
func (h *Handler) isAdmin(r *http.Request) bool {
	if len(h.adminSecret) == 0 {
		return false
	}
	got := []byte(r.Header.Get(adminSecretHeader))
	return subtle.ConstantTimeCompare(got, h.adminSecret) == 1
}

type nopVerifier struct{}

func (nopVerifier) Verify(context.Context, string) (*sessions.Principal, error) {
	return nil, sessions.ErrUnauthenticated
}

func (h *Handler) clientIP(r *http.Request) string {
	return netx.ClientIP(r, h.proxies)
}
