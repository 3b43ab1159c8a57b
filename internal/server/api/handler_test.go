package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/cryptox"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/ratelimit"
	"github.com/dmitrijs2005/authbridge/internal/server/services"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodCode = "123456"

type fakeOTPProvider struct{}

func (fakeOTPProvider) SendEmailOTP(context.Context, string, string) error { return nil }
func (fakeOTPProvider) SendPhoneOTP(context.Context, string) error         { return nil }

func (fakeOTPProvider) VerifyOTP(_ context.Context, _ provider.OTPType, identifier, token string) (*provider.AuthResult, error) {
	if token != goodCode {
		return nil, &provider.APIError{Status: http.StatusForbidden, Code: "otp_expired", Message: "Token has expired or is invalid"}
	}
	return &provider.AuthResult{
		Session: &provider.Session{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: time.Now().Add(time.Hour), UserID: "u-1"},
		User:    &provider.User{ID: "u-1", Email: identifier},
	}, nil
}

type fakePins struct {
	err      error
	panics   bool
	calls    int
	userID   string
	clientIP string
}

func (f *fakePins) Setup(_ context.Context, userID, _ string) error {
	f.calls++
	f.userID = userID
	return f.err
}

func (f *fakePins) Resync(_ context.Context, userID, _ string) error {
	if f.panics {
		panic("boom")
	}
	f.calls++
	f.userID = userID
	return f.err
}

func (f *fakePins) SignIn(_ context.Context, userID, _, clientIP string) (*provider.AuthResult, error) {
	f.calls++
	f.clientIP = clientIP
	if f.err != nil {
		return nil, f.err
	}
	return &provider.AuthResult{
		Session: &provider.Session{AccessToken: "pin-at", RefreshToken: "pin-rt", UserID: userID},
		User:    &provider.User{ID: userID},
	}, nil
}

type fakeSessions struct {
	signedOut string
	refresh   error
}

func (f *fakeSessions) Sync(_ context.Context, at, rt string) (*provider.Session, error) {
	switch at {
	case "":
		return nil, services.ErrMissingToken
	case "forged":
		return nil, fmt.Errorf("%w: bad signature", common.ErrInvalidToken)
	case "provider-down":
		return nil, errors.New("get user: 503")
	}
	return &provider.Session{AccessToken: at, RefreshToken: rt, UserID: "u-1"}, nil
}

func (f *fakeSessions) Exchange(_ context.Context, code, _ string) (*provider.AuthResult, error) {
	if code != "good" {
		return nil, services.ErrInvalidCode
	}
	return &provider.AuthResult{Session: &provider.Session{AccessToken: "x-at", UserID: "u-1"}}, nil
}

func (f *fakeSessions) Refresh(_ context.Context, rt string) (*provider.AuthResult, error) {
	if f.refresh != nil {
		return nil, f.refresh
	}
	if rt == "" {
		return nil, sessions.ErrUnauthenticated
	}
	return &provider.AuthResult{Session: &provider.Session{AccessToken: "new-at", RefreshToken: "new-rt", UserID: "u-1"}}, nil
}

func (f *fakeSessions) SignOut(_ context.Context, at string) { f.signedOut = at }

type fakeVerifier struct{ err error }

func (f fakeVerifier) Verify(_ context.Context, token string) (*sessions.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	if token != "good-token" {
		return nil, sessions.ErrUnauthenticated
	}
	return &sessions.Principal{UserID: "11111111-1111-1111-1111-111111111111", Email: "user@example.com", AccessToken: token}, nil
}

type env struct {
	router   http.Handler
	pins     *fakePins
	sessions *fakeSessions
}

func newEnv(t *testing.T, v sessions.TokenVerifier) *env {
	t.Helper()
	if v == nil {
		v = fakeVerifier{}
	}
	otp := services.NewOTPService(fakeOTPProvider{}, ratelimit.NewMemoryLimiter(nil), nil, services.OTPOptions{})
	e := &env{pins: &fakePins{}, sessions: &fakeSessions{}}
	h := NewHandler(Options{
		OTP:         otp,
		Pins:        e.pins,
		Sessions:    e.sessions,
		Guard:       sessions.NewGuard(v, "", nil),
		Cookies:     sessions.DefaultCookiePolicy(),
		AdminSecret: "s3cret",

		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})
	e.router = NewRouter(h)
	return e
}

func (e *env) do(method, path, body string, mod ...func(*http.Request)) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mod {
		m(r)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func cookieMap(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func TestEmailOTP_SendThenWrongCode(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/otp/email/send", `{"email":"user@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true}, decode(t, rec))

	rec = e.do(http.MethodPost, "/api/otp/email/verify", `{"email":"user@example.com","token":"000000"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"ok": false, "error": "invalid_code"}, decode(t, rec))
	assert.Empty(t, rec.Result().Cookies())
}

func TestEmailOTP_VerifySetsCookies(t *testing.T) {
	e := newEnv(t, nil)

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/otp/email/send", `{"email":"User@Example.com"}`).Code)

	rec := e.do(http.MethodPost, "/api/otp/email/verify", `{"email":"user@example.com","token":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])

	cookies := cookieMap(rec)
	require.Contains(t, cookies, sessions.AccessCookie)
	require.Contains(t, cookies, sessions.RefreshCookie)
	assert.Equal(t, "at-1", cookies[sessions.AccessCookie].Value)
	assert.True(t, cookies[sessions.AccessCookie].HttpOnly)

	// A consumed code cannot be replayed.
	rec = e.do(http.MethodPost, "/api/otp/email/verify", `{"email":"user@example.com","token":"123456"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmailOTP_SendValidation(t *testing.T) {
	e := newEnv(t, nil)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing", `{}`, "EMAIL_REQUIRED"},
		{"blank", `{"email":"   "}`, "EMAIL_REQUIRED"},
		{"malformed", `{"email":"not-an-email"}`, "INVALID_EMAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/api/otp/email/send", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.code, body["error"])
		})
	}

	rec := e.do(http.MethodPost, "/api/otp/email/send", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmailOTP_VerifyBadRequest(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/otp/email/verify", `{"email":"nope","token":"123456"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode(t, rec)["error"])

	rec = e.do(http.MethodPost, "/api/otp/email/verify", `{"email":"user@example.com"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode(t, rec)["error"])
}

func TestEmailOTP_RateLimited(t *testing.T) {
	e := newEnv(t, nil)

	for i := 0; i < ratelimit.DefaultMax; i++ {
		rec := e.do(http.MethodPost, "/api/otp/email/send", `{"email":"user@example.com"}`)
		require.Equal(t, http.StatusOK, rec.Code, "send %d", i)
	}
	rec := e.do(http.MethodPost, "/api/otp/email/send", `{"email":"user@example.com"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode(t, rec)["error"])
}

func TestPhoneOTP(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/otp/phone/send", `{"phone":"12345"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PHONE", decode(t, rec)["error"])

	rec = e.do(http.MethodPost, "/api/otp/phone/send", `{"phone":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PHONE_REQUIRED", decode(t, rec)["error"])

	rec = e.do(http.MethodPost, "/api/otp/phone/send", `{"phone":"981-234-5678"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/api/otp/phone/verify", `{"phone":"+9779812345678","token":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, cookieMap(rec), sessions.AccessCookie)
}

func TestResyncPin_AdminSecret(t *testing.T) {
	e := newEnv(t, nil)
	body := `{"userId":"11111111-1111-1111-1111-111111111111","pin":"1234"}`

	rec := e.do(http.MethodPost, "/api/admin/resync-pin", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodPost, "/api/admin/resync-pin", body, func(r *http.Request) {
		r.Header.Set(common.AdminSecretHeaderName, "wrong")
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, e.pins.calls)

	rec = e.do(http.MethodPost, "/api/admin/resync-pin", body, func(r *http.Request) {
		r.Header.Set(common.AdminSecretHeaderName, "s3cret")
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", e.pins.userID)
}

func TestResyncPin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no row", services.ErrNoPinRow, http.StatusNotFound, "no_pin_row"},
		{"no salt", cryptox.ErrNoSalt, http.StatusConflict, "no_salt"},
		{"bad pin", services.ErrInvalidPin, http.StatusBadRequest, "invalid_pin"},
		{"provider", fmt.Errorf("%w: boom", services.ErrProviderUpdate), http.StatusInternalServerError, "provider_update_failed"},
		{"infra", errors.New("db down"), http.StatusInternalServerError, "server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.pins.err = tt.err
			rec := e.do(http.MethodPost, "/api/admin/resync-pin", `{"userId":"u","pin":"1234"}`, func(r *http.Request) {
				r.Header.Set(common.AdminSecretHeaderName, "s3cret")
			})
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec)["error"])
		})
	}
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	h := NewHandler(Options{Pins: &fakePins{}})
	r := httptest.NewRequest(http.MethodPost, "/api/admin/resync-pin", strings.NewReader(`{}`))
	r.Header.Set(common.AdminSecretHeaderName, "")
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionStatus(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodGet, "/api/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"authenticated": false}, decode(t, rec))

	rec = e.do(http.MethodGet, "/api/auth/session", "", withCookie(sessions.AccessCookie, "good-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["authenticated"])

	broken := newEnv(t, fakeVerifier{err: errors.New("provider unreachable")})
	rec = broken.do(http.MethodGet, "/api/auth/session", "", withCookie(sessions.AccessCookie, "good-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])
}

func TestSyncSession(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/auth/sync", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_token", decode(t, rec)["error"])

	rec = e.do(http.MethodPost, "/api/auth/sync", `{"access_token":"forged"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_token", decode(t, rec)["error"])
	assert.Empty(t, rec.Result().Cookies())

	rec = e.do(http.MethodPost, "/api/auth/sync", `{"access_token":"provider-down"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "server_error", decode(t, rec)["error"])
	assert.Empty(t, rec.Result().Cookies())

	rec = e.do(http.MethodPost, "/api/auth/sync", `{"access_token":"at","refresh_token":"rt"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := cookieMap(rec)
	assert.Equal(t, "at", cookies[sessions.AccessCookie].Value)
	assert.Equal(t, "rt", cookies[sessions.RefreshCookie].Value)
	assert.Equal(t, -1, cookies[sessions.LegacyCookie].MaxAge)
}

func TestExchangeCode(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/auth/exchange", `{"code":"bad"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_code", decode(t, rec)["error"])

	rec = e.do(http.MethodPost, "/api/auth/exchange", `{"code":"good","code_verifier":"v"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.NotNil(t, body["session"])
	assert.Equal(t, "x-at", cookieMap(rec)[sessions.AccessCookie].Value)
}

func TestRefreshSession(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/auth/refresh", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no_session", decode(t, rec)["error"])

	rec = e.do(http.MethodPost, "/api/auth/refresh", "", withCookie(sessions.RefreshCookie, "rt"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new-at", cookieMap(rec)[sessions.AccessCookie].Value)
}

func TestSignOut(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/auth/signout", "", withCookie(sessions.AccessCookie, "at"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "at", e.sessions.signedOut)

	cookies := cookieMap(rec)
	for _, name := range []string{sessions.AccessCookie, sessions.RefreshCookie, sessions.LegacyCookie} {
		require.Contains(t, cookies, name)
		assert.Equal(t, -1, cookies[name].MaxAge)
	}
}

func TestPinSetupRequiresSession(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/pin/setup", `{"pin":"1234"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, e.pins.calls)

	rec = e.do(http.MethodPost, "/api/pin/setup", `{"pin":"1234"}`, withCookie(sessions.AccessCookie, "good-token"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", e.pins.userID)
}

func TestPinSignIn(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/pin/signin", `{"userId":"u-9","pin":"1234"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pin-at", cookieMap(rec)[sessions.AccessCookie].Value)

	e.pins.err = services.ErrInvalidCredentials
	rec = e.do(http.MethodPost, "/api/pin/signin", `{"userId":"u-9","pin":"1234"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_credentials", decode(t, rec)["error"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestPinSignIn_RateLimited(t *testing.T) {
	e := newEnv(t, nil)
	e.pins.err = common.ErrRateLimited

	rec := e.do(http.MethodPost, "/api/pin/signin", `{"userId":"u-9","pin":"1234"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode(t, rec)["error"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestPinSignIn_ClientAddress(t *testing.T) {
	e := newEnv(t, nil)
	body := `{"userId":"u-9","pin":"1234"}`

	rec := e.do(http.MethodPost, "/api/pin/signin", body, func(r *http.Request) {
		r.RemoteAddr = "198.51.100.20:4000"
		r.Header.Set("X-Forwarded-For", "203.0.113.1")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "198.51.100.20", e.pins.clientIP, "headers from an untrusted peer are ignored")

	rec = e.do(http.MethodPost, "/api/pin/signin", body, func(r *http.Request) {
		r.RemoteAddr = "10.1.1.1:4000"
		r.Header.Set("X-Forwarded-For", "203.0.113.1")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "203.0.113.1", e.pins.clientIP)
}

func TestGuardedRoutes(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodGet, "/account", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Faccount", rec.Header().Get("Location"))

	rec = e.do(http.MethodGet, "/account", "", withCookie(sessions.AccessCookie, "good-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user@example.com")

	rec = e.do(http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodGet, "/api/me", "", withCookie(sessions.AccessCookie, "good-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user@example.com", decode(t, rec)["email"])
}

func TestMiddleware(t *testing.T) {
	e := newEnv(t, nil)
	e.pins.panics = true

	rec := e.do(http.MethodPost, "/api/admin/resync-pin", `{"userId":"u","pin":"1234"}`, func(r *http.Request) {
		r.Header.Set(common.AdminSecretHeaderName, "s3cret")
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "server_error", decode(t, rec)["error"])
	assert.NotEmpty(t, rec.Header().Get(common.RequestIDHeaderName))

	rec = e.do(http.MethodGet, "/healthz", "", func(r *http.Request) {
		r.Header.Set(common.RequestIDHeaderName, "6f1c1a3e-1d2b-4c7e-9a55-0e0b7f3b1c2d")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "6f1c1a3e-1d2b-4c7e-9a55-0e0b7f3b1c2d", rec.Header().Get(common.RequestIDHeaderName))

	rec = e.do(http.MethodGet, "/api/otp/email/send", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
