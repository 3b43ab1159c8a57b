package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/netx"
	"github.com/dmitrijs2005/authbridge/internal/provider"
)

// HTTPClient talks to one bridge server.
type HTTPClient struct {
	base *url.URL
	hc   *http.Client
}

// New returns a client for baseURL with its own cookie jar.
func New(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		base: u,
		hc:   &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

func (c *HTTPClient) url(path string) string {
	return c.base.String() + path
}

// Cookies returns the cookies the jar would send to the server.
func (c *HTTPClient) Cookies() []*http.Cookie {
	return c.hc.Jar.Cookies(c.base)
}

func (c *HTTPClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	err := netx.DoJSON(ctx, c.hc, method, c.url(path), in, out)
	if err == nil {
		return nil
	}

	var se *netx.StatusError
	if errors.As(err, &se) {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(se.Body, &body)
		return &APIError{Status: se.Status, Code: body.Error, Message: body.Message}
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

type okBody struct {
	OK bool `json:"ok"`
}

type sessionBody struct {
	OK      bool              `json:"ok"`
	Session *provider.Session `json:"session"`
	User    *provider.User    `json:"user"`
}

// Ping checks the server's health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// SyncSession hands the current tokens to the server, which answers with
// HttpOnly session cookies.
func (c *HTTPClient) SyncSession(ctx context.Context, accessToken, refreshToken string) error {
	in := map[string]string{"access_token": accessToken, "refresh_token": refreshToken}
	return c.do(ctx, http.MethodPost, "/api/auth/sync", in, &okBody{})
}

// SessionStatus reports whether the server sees a valid session in the
// jar's cookies.
func (c *HTTPClient) SessionStatus(ctx context.Context) (bool, error) {
	var out struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, &out); err != nil {
		return false, err
	}
	return out.Authenticated, nil
}

func (c *HTTPClient) SendEmailOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/otp/email/send", map[string]string{"email": email}, &okBody{})
}

func (c *HTTPClient) SendPhoneOTP(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, "/api/otp/phone/send", map[string]string{"phone": phone}, &okBody{})
}

// SetupPin sets the signed-in user's PIN on the server.
func (c *HTTPClient) SetupPin(ctx context.Context, pin string) error {
	return c.do(ctx, http.MethodPost, "/api/pin/setup", map[string]string{"pin": pin}, nil)
}

// PinSignIn signs userID in with pin; the server also sets its cookies.
func (c *HTTPClient) PinSignIn(ctx context.Context, userID, pin string) (*provider.AuthResult, error) {
	var out sessionBody
	if err := c.do(ctx, http.MethodPost, "/api/pin/signin", map[string]string{"userId": userID, "pin": pin}, &out); err != nil {
		return nil, err
	}
	if out.Session == nil {
		return nil, &APIError{Status: http.StatusOK, Code: "no_session"}
	}
	return &provider.AuthResult{Session: out.Session, User: out.User}, nil
}

// SignOut clears the server cookies and revokes the session upstream.
func (c *HTTPClient) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signout", nil, &okBody{})
}

func (c *HTTPClient) Me(ctx context.Context) (*provider.User, error) {
	var out struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
		Phone  string `json:"phone"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &out); err != nil {
		return nil, err
	}
	return &provider.User{ID: out.UserID, Email: out.Email, Phone: out.Phone}, nil
}
