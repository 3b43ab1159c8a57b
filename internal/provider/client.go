package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxBodyBytes = 1 << 20

// Client talks to the provider with the key of its scope.
type Client struct {
	scope  Scope
	base   string
	apiKey string
	hc     *http.Client
	now    func() time.Time
}

func (c *Client) Scope() Scope { return c.scope }

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// SendEmailOTP asks the provider to mail a one-time code (and magic link)
// to email, creating the user if needed.
func (c *Client) SendEmailOTP(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	body := map[string]any{"email": email, "create_user": true}
	return c.do(ctx, http.MethodPost, "/otp", q, "", body, nil)
}

// SendPhoneOTP asks the provider to text a one-time code to phone, which
// must already be canonical.
func (c *Client) SendPhoneOTP(ctx context.Context, phone string) error {
	body := map[string]any{"phone": phone, "create_user": true, "channel": "sms"}
	return c.do(ctx, http.MethodPost, "/otp", nil, "", body, nil)
}

// VerifyOTP exchanges a code for a session. Codes are single use: a second
// verification of the same code is rejected by the provider.
func (c *Client) VerifyOTP(ctx context.Context, typ OTPType, identifier, token string) (*AuthResult, error) {
	body := map[string]any{"type": string(typ), "token": token}
	switch typ {
	case OTPEmail:
		body["email"] = identifier
	case OTPSMS:
		body["phone"] = identifier
	default:
		return nil, fmt.Errorf("unsupported otp type %q", typ)
	}
	return c.token(ctx, "/verify", nil, body)
}

// ExchangeCode completes a PKCE flow.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*AuthResult, error) {
	q := url.Values{"grant_type": {"pkce"}}
	return c.token(ctx, "/token", q, map[string]any{"auth_code": code, "code_verifier": verifier})
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	q := url.Values{"grant_type": {"refresh_token"}}
	return c.token(ctx, "/token", q, map[string]any{"refresh_token": refreshToken})
}

// SignInWithPassword signs in with an email or phone identifier. Identifiers
// starting with "+" are treated as phone numbers.
func (c *Client) SignInWithPassword(ctx context.Context, identifier, password string) (*AuthResult, error) {
	q := url.Values{"grant_type": {"password"}}
	body := map[string]any{"password": password}
	if len(identifier) > 0 && identifier[0] == '+' {
		body["phone"] = identifier
	} else {
		body["email"] = identifier
	}
	return c.token(ctx, "/token", q, body)
}

// GetUser resolves the user behind accessToken. The provider checks the
// token's signature and revocation state.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u userResponse
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &u); err != nil {
		return nil, err
	}
	if user := u.toUser(); user != nil {
		return user, nil
	}
	return nil, &APIError{Status: http.StatusUnauthorized, Code: "user_not_found", Message: "no user for token"}
}

// SignOut revokes the refresh tokens of the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

func (c *Client) AdminGetUser(ctx context.Context, userID string) (*User, error) {
	if c.scope != ScopeAdmin {
		return nil, ErrScopeNotAllowed
	}
	var u userResponse
	if err := c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(userID), nil, "", nil, &u); err != nil {
		return nil, err
	}
	return u.toUser(), nil
}

// AdminUpdatePassword replaces the user's provider password.
func (c *Client) AdminUpdatePassword(ctx context.Context, userID, password string) error {
	if c.scope != ScopeAdmin {
		return ErrScopeNotAllowed
	}
	body := map[string]any{"password": password}
	return c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(userID), nil, "", body, nil)
}

func (c *Client) token(ctx context.Context, path string, q url.Values, body any) (*AuthResult, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, path, q, "", body, &resp); err != nil {
		return nil, err
	}
	return resp.toResult(c.clock()), nil
}

// do performs one JSON request. bearer overrides the scope key in the
// Authorization header; the apikey header always carries the scope key.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, bearer string, in, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("provider %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
