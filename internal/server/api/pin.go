package api

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authbridge/internal/netx"
	"github.com/dmitrijs2005/authbridge/internal/server/services"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
)

type resyncRequest struct {
	UserID string `json:"userId"`
	Pin    string `json:"pin"`
}

type pinRequest struct {
	Pin string `json:"pin"`
}

// ResyncPin is the operator path that re-pushes a user's PIN-derived
// provider password.
func (h *Handler) ResyncPin(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, codeForbidden)
		return
	}
	var req resyncRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	if err := h.pins.Resync(r.Context(), req.UserID, req.Pin); err != nil {
		if errors.Is(err, services.ErrProviderUpdate) {
			// Admin callers get the provider's text.
			writeErrorMessage(w, http.StatusInternalServerError, codeProviderUpdate, err.Error())
			return
		}
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PinSetup sets a PIN for the signed-in user.
func (h *Handler) PinSetup(w http.ResponseWriter, r *http.Request) {
	p, ok := sessions.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated)
		return
	}
	var req pinRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	if err := h.pins.Setup(r.Context(), p.UserID, req.Pin); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PinSignIn signs a returning user in with their PIN. The session is also
// returned in the body so a non-browser client can adopt it.
func (h *Handler) PinSignIn(w http.ResponseWriter, r *http.Request) {
	var req resyncRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	res, err := h.pins.SignIn(r.Context(), req.UserID, req.Pin, h.clientIP(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.commitSession(w, r, res.Session, http.StatusOK, sessionResponse{OK: true, Session: res.Session, User: res.User})
}
