// Package sessions mirrors the client's provider session into HttpOnly
// cookies and reads it back for server-side checks.
package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/provider"
)

const (
	AccessCookie  = "sb-access-token"
	RefreshCookie = "sb-refresh-token"
	// LegacyCookie holds {access_token, refresh_token} as JSON. It is only
	// read, and expired whenever the discrete cookies are written.
	LegacyCookie = "supabase-auth-token"
)

// Source records which cookie layout produced a token pair.
type Source int

const (
	SourceNone Source = iota
	SourceDiscrete
	SourceLegacy
)

func (s Source) String() string {
	switch s {
	case SourceDiscrete:
		return "discrete"
	case SourceLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// Tokens is the pair found on a request.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Source       Source
}

func (t Tokens) Present() bool { return t.AccessToken != "" }

// ReadTokens looks for a session in precedence order: the discrete cookies,
// then the legacy JSON cookie. Discrete cookies win whenever an access token
// is present in them, even if the legacy cookie carries different tokens.
func ReadTokens(r *http.Request) Tokens {
	if access := cookieValue(r, AccessCookie); access != "" {
		return Tokens{
			AccessToken:  access,
			RefreshToken: cookieValue(r, RefreshCookie),
			Source:       SourceDiscrete,
		}
	}
	if raw := rawCookieValue(r, LegacyCookie); raw != "" {
		if access, refresh, ok := parseLegacy(raw); ok {
			return Tokens{AccessToken: access, RefreshToken: refresh, Source: SourceLegacy}
		}
	}
	return Tokens{}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// rawCookieValue scans the Cookie headers directly. Older clients wrote the
// legacy cookie as bare JSON, which net/http refuses to parse as a cookie
// value because of the quotes.
func rawCookieValue(r *http.Request, name string) string {
	if v := cookieValue(r, name); v != "" {
		return v
	}
	for _, line := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(line, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if ok && k == name {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// parseLegacy accepts the object form and the older array form
// ["access", "refresh", ...], either raw or URL-encoded.
func parseLegacy(raw string) (access, refresh string, ok bool) {
	if un, err := url.QueryUnescape(raw); err == nil {
		raw = un
	}

	var obj struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj.AccessToken != "" {
		return obj.AccessToken, obj.RefreshToken, true
	}

	var arr []*string
	if err := json.Unmarshal([]byte(raw), &arr); err == nil && len(arr) > 0 && arr[0] != nil && *arr[0] != "" {
		if len(arr) > 1 && arr[1] != nil {
			refresh = *arr[1]
		}
		return *arr[0], refresh, true
	}
	return "", "", false
}

// CookiePolicy controls the attributes of written cookies.
type CookiePolicy struct {
	Secure bool
	Domain string
	// AccessMaxAge applies when the session carries no expiry.
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

func DefaultCookiePolicy() CookiePolicy {
	return CookiePolicy{
		Secure:        true,
		AccessMaxAge:  time.Hour,
		RefreshMaxAge: 30 * 24 * time.Hour,
	}
}

var (
	ErrAlreadyCommitted = errors.New("cookie jar already committed")
	ErrNoAccessToken    = errors.New("session has no access token")
)

// CookieJar collects every cookie an auth operation produces and writes
// them onto exactly one response with Commit. Handlers build the jar, call
// the provider, and only commit once the whole operation succeeded, so a
// client never sees a half-established session.
type CookieJar struct {
	policy    CookiePolicy
	now       func() time.Time
	cookies   []*http.Cookie
	committed bool
}

func NewCookieJar(policy CookiePolicy) *CookieJar {
	return &CookieJar{policy: policy, now: time.Now}
}

// SetSession queues the discrete cookies for s and expires the legacy one.
// An empty refresh token leaves the existing refresh cookie alone.
func (j *CookieJar) SetSession(s *provider.Session) error {
	if s == nil || s.AccessToken == "" {
		return ErrNoAccessToken
	}

	accessAge := j.policy.AccessMaxAge
	if !s.ExpiresAt.IsZero() {
		if d := s.ExpiresAt.Sub(j.now()); d > 0 {
			accessAge = d
		}
	}

	j.add(AccessCookie, s.AccessToken, accessAge)
	if s.RefreshToken != "" {
		j.add(RefreshCookie, s.RefreshToken, j.policy.RefreshMaxAge)
	}
	j.expire(LegacyCookie)
	return nil
}

// Clear queues expiry of every session cookie, legacy included.
func (j *CookieJar) Clear() {
	j.expire(AccessCookie)
	j.expire(RefreshCookie)
	j.expire(LegacyCookie)
}

// Cookies returns the queued cookies.
func (j *CookieJar) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, len(j.cookies))
	copy(out, j.cookies)
	return out
}

// Commit adds all queued cookies to w's headers. It must run before the
// status line is written and only once per jar.
func (j *CookieJar) Commit(w http.ResponseWriter) error {
	if j.committed {
		return ErrAlreadyCommitted
	}
	j.committed = true
	for _, c := range j.cookies {
		http.SetCookie(w, c)
	}
	return nil
}

func (j *CookieJar) add(name, value string, maxAge time.Duration) {
	j.cookies = append(j.cookies, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.policy.Domain,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   j.policy.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j *CookieJar) expire(name string) {
	j.cookies = append(j.cookies, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   j.policy.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.policy.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
