package api

import (
	"net/http"

	"github.com/dmitrijs2005/authbridge/internal/netx"
	"github.com/dmitrijs2005/authbridge/internal/provider"
)

type emailSendRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo"`
}

type phoneSendRequest struct {
	Phone string `json:"phone"`
}

type emailVerifyRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type phoneVerifyRequest struct {
	Phone string `json:"phone"`
	Token string `json:"token"`
}

// sendFailed answers a send error. Validation codes carry a readable
// message for the form.
func (h *Handler) sendFailed(w http.ResponseWriter, r *http.Request, err error) {
	if status, code, ok := identifierError(err); ok {
		writeErrorMessage(w, status, code, err.Error())
		return
	}
	h.fail(w, r, err)
}

// SendEmailOTP asks the provider to mail a one-time code.
func (h *Handler) SendEmailOTP(w http.ResponseWriter, r *http.Request) {
	var req emailSendRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	if _, err := h.otp.SendEmail(r.Context(), req.Email, req.RedirectTo, h.clientIP(r)); err != nil {
		h.sendFailed(w, r, err)
		return
	}
	netx.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}

// SendPhoneOTP asks the provider to text a one-time code.
func (h *Handler) SendPhoneOTP(w http.ResponseWriter, r *http.Request) {
	var req phoneSendRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	if _, err := h.otp.SendPhone(r.Context(), req.Phone, h.clientIP(r)); err != nil {
		h.sendFailed(w, r, err)
		return
	}
	netx.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}

// VerifyEmailOTP checks an emailed code and sets the session cookies.
func (h *Handler) VerifyEmailOTP(w http.ResponseWriter, r *http.Request) {
	var req emailVerifyRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	res, err := h.otp.VerifyEmail(r.Context(), req.Email, req.Token)
	h.verified(w, r, res, err)
}

// VerifyPhoneOTP checks a texted code and sets the session cookies.
func (h *Handler) VerifyPhoneOTP(w http.ResponseWriter, r *http.Request) {
	var req phoneVerifyRequest
	if err := netx.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}
	res, err := h.otp.VerifyPhone(r.Context(), req.Phone, req.Token)
	h.verified(w, r, res, err)
}

func (h *Handler) verified(w http.ResponseWriter, r *http.Request, res *provider.AuthResult, err error) {
	if err != nil {
		if _, _, ok := identifierError(err); ok {
			writeError(w, http.StatusBadRequest, codeBadRequest)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.commitSession(w, r, res.Session, http.StatusOK, userResponse{OK: true, User: res.User})
}
