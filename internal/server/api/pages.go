package api

import (
	"fmt"
	"html"
	"net/http"

	"github.com/dmitrijs2005/authbridge/internal/netx"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
)

type meResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Me describes the signed-in user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := sessions.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated)
		return
	}
	netx.WriteJSON(w, http.StatusOK, meResponse{UserID: p.UserID, Email: p.Email, Phone: p.Phone})
}

// AccountPage is a minimal protected page.
func (h *Handler) AccountPage(w http.ResponseWriter, r *http.Request) {
	p, _ := sessions.PrincipalFromContext(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	name := p.Email
	if name == "" {
		name = p.Phone
	}
	if name == "" {
		name = p.UserID
	}
	fmt.Fprintf(w, "Signed in as %s\n", name)
}

// LoginPage is a stand-in for the real login form.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	next := sessions.SafeNext(r.URL.Query().Get("next"))
	fmt.Fprintf(w, "<!doctype html><title>Sign in</title><p>Sign in to continue.</p><input type=hidden name=next value=\"%s\">\n",
		html.EscapeString(next))
}

// Health runs the configured checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.health {
		if err := check(r.Context()); err != nil {
			h.log(r.Context()).Warn(r.Context(), "health check failed", "error", err)
			writeErrorMessage(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	netx.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}
