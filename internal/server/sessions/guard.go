package sessions

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/netx"
)

const DefaultLoginPath = "/login"

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by Guard.Page or
// Guard.API.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard is the single access-control check for protected routes. It runs on
// every request; nothing about a decision is cached.
type Guard struct {
	verifier  TokenVerifier
	loginPath string
	logger    logging.Logger
}

func NewGuard(v TokenVerifier, loginPath string, logger logging.Logger) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Guard{verifier: v, loginPath: loginPath, logger: logger}
}

// RequireUser returns the principal of r's session, ErrUnauthenticated when
// there is none, or an infrastructure error.
func (g *Guard) RequireUser(ctx context.Context, r *http.Request) (*Principal, error) {
	t := ReadTokens(r)
	if !t.Present() {
		return nil, ErrUnauthenticated
	}
	return g.verifier.Verify(ctx, t.AccessToken)
}

// Page protects document routes: no session means a 303 to the login page
// with the original path in next.
func (g *Guard) Page(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.RequireUser(r.Context(), r)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				http.Redirect(w, r, g.LoginURL(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			g.logger.Error(r.Context(), "session check failed", "error", err)
			http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// API protects JSON routes: no session means 401.
func (g *Guard) API(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.RequireUser(r.Context(), r)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				netx.WriteJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthenticated"})
				return
			}
			g.logger.Error(r.Context(), "session check failed", "error", err)
			netx.WriteJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "server_error"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// LoginURL is the login entry point carrying next.
func (g *Guard) LoginURL(next string) string {
	next = SafeNext(next)
	if next == "" {
		return g.loginPath
	}
	return g.loginPath + "?" + url.Values{"next": {next}}.Encode()
}

// SafeNext keeps next only if it is a same-site absolute path, so the login
// redirect cannot be turned into an open redirect.
func SafeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || next[0] != '/' {
		return ""
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") || strings.ContainsAny(next, "\r\n") {
		return ""
	}
	return next
}
