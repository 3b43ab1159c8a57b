package api

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/netx"
	"github.com/dmitrijs2005/authbridge/internal/provider"
	"github.com/dmitrijs2005/authbridge/internal/server/services"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
)

type okResponse struct {
	OK bool `json:"ok"`
}

type userResponse struct {
	OK   bool           `json:"ok"`
	User *provider.User `json:"user,omitempty"`
}

type sessionResponse struct {
	OK      bool              `json:"ok"`
	Session *provider.Session `json:"session"`
	User    *provider.User    `json:"user,omitempty"`
}

type syncRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type exchangeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

// commitSession writes the session cookies and then the JSON body. Cookies
// must go first: once the body starts, headers are fixed.
func (h *Handler) commitSession(w http.ResponseWriter, r *http.Request, s *provider.Session, status int, body any) {
	jar := h.jar()
	if err := jar.SetSession(s); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := jar.Commit(w); err != nil {
		h.fail(w, r, err)
		return
	}
	netx.WriteJSON(w, status, body)
}

// SyncSession mirrors the client runtime's session into HttpOnly cookies.
func (h *Handler) SyncSession(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeMissingToken)
		return
	}

	sess, err := h.sessions.Sync(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingToken):
			writeError(w, http.StatusBadRequest, codeMissingToken)
		case errors.Is(err, common.ErrInvalidToken):
			writeError(w, http.StatusBadRequest, codeInvalidToken)
		default:
			h.fail(w, r, err)
		}
		return
	}
	h.commitSession(w, r, sess, http.StatusOK, okResponse{OK: true})
}

// ExchangeCode completes a PKCE redirect and sets the resulting session.
func (h *Handler) ExchangeCode(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	res, err := h.sessions.Exchange(r.Context(), req.Code, req.CodeVerifier)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.commitSession(w, r, res.Session, http.StatusOK, sessionResponse{OK: true, Session: res.Session, User: res.User})
}

type sessionStatus struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
}

// SessionStatus answers whether the caller's cookies carry a valid session.
// It never fails: any error reads as not authenticated.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.guard.RequireUser(r.Context(), r)
	if err != nil {
		if !errors.Is(err, sessions.ErrUnauthenticated) {
			h.log(r.Context()).Warn(r.Context(), "session status check failed", "error", err)
		}
		netx.WriteJSON(w, http.StatusOK, sessionStatus{})
		return
	}
	netx.WriteJSON(w, http.StatusOK, sessionStatus{Authenticated: true, UserID: p.UserID})
}

// RefreshSession trades the refresh cookie for a new session.
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	t := sessions.ReadTokens(r)
	res, err := h.sessions.Refresh(r.Context(), t.RefreshToken)
	if err != nil {
		if errors.Is(err, sessions.ErrUnauthenticated) {
			jar := h.jar()
			jar.Clear()
			_ = jar.Commit(w)
			writeError(w, http.StatusUnauthorized, codeNoSession)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.commitSession(w, r, res.Session, http.StatusOK, sessionResponse{OK: true, Session: res.Session, User: res.User})
}

// SignOut clears the session cookies and, best effort, revokes the session
// at the provider.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	t := sessions.ReadTokens(r)
	h.sessions.SignOut(r.Context(), t.AccessToken)

	jar := h.jar()
	jar.Clear()
	if err := jar.Commit(w); err != nil {
		h.log(r.Context()).Warn(r.Context(), "clear cookies failed", "error", err)
	}
	netx.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}
