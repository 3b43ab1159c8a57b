package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/cryptox"
	"github.com/dmitrijs2005/authbridge/internal/identity"
	"github.com/dmitrijs2005/authbridge/internal/netx"
	"github.com/dmitrijs2005/authbridge/internal/server/services"
	"github.com/dmitrijs2005/authbridge/internal/server/sessions"
)

const adminSecretHeader = common.AdminSecretHeaderName

// Stable error codes returned in {"ok":false,"error":...}.
const (
	codeBadRequest         = "bad_request"
	codeInvalidCode        = "invalid_code"
	codeInvalidToken       = "invalid_token"
	codeMissingToken       = "missing_token"
	codeNoSession          = "no_session"
	codeRateLimited        = "rate_limited"
	codeTooManyAttempts    = "too_many_attempts"
	codeProviderError      = "provider_error"
	codeServerError        = "server_error"
	codeForbidden          = "forbidden"
	codeInvalidPin         = "invalid_pin"
	codeInvalidCredentials = "invalid_credentials"
	codeNoPinRow           = "no_pin_row"
	codeNoSalt             = "no_salt"
	codeProviderUpdate     = "provider_update_failed"
	codeUnauthenticated    = "unauthenticated"
)

type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	netx.WriteJSON(w, status, errorResponse{Error: code})
}

func writeErrorMessage(w http.ResponseWriter, status int, code, msg string) {
	netx.WriteJSON(w, status, errorResponse{Error: code, Message: msg})
}

// identifierError maps identifier validation to the send endpoints' codes.
func identifierError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, identity.ErrEmailRequired):
		return http.StatusBadRequest, "EMAIL_REQUIRED", true
	case errors.Is(err, identity.ErrInvalidEmail):
		return http.StatusBadRequest, "INVALID_EMAIL", true
	case errors.Is(err, identity.ErrPhoneRequired):
		return http.StatusBadRequest, "PHONE_REQUIRED", true
	case errors.Is(err, identity.ErrInvalidPhone):
		return http.StatusBadRequest, "INVALID_PHONE", true
	}
	return 0, "", false
}

// mapError converts a service error to a status and a stable code. Anything
// unrecognised is a 500 and gets logged with its detail.
func (h *Handler) mapError(ctx context.Context, err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, services.ErrTooManyAttempts):
		return http.StatusTooManyRequests, codeTooManyAttempts
	case errors.Is(err, services.ErrInvalidCode):
		return http.StatusBadRequest, codeInvalidCode
	case errors.Is(err, services.ErrNoSession):
		return http.StatusBadRequest, codeNoSession
	case errors.Is(err, services.ErrMissingToken):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, services.ErrProviderRejected):
		return http.StatusBadRequest, codeProviderError
	case errors.Is(err, services.ErrInvalidPin):
		return http.StatusBadRequest, codeInvalidPin
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusBadRequest, codeInvalidCredentials
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, services.ErrNoPinRow):
		return http.StatusNotFound, codeNoPinRow
	case errors.Is(err, cryptox.ErrNoSalt):
		return http.StatusConflict, codeNoSalt
	case errors.Is(err, sessions.ErrUnauthenticated):
		return http.StatusUnauthorized, codeNoSession
	}
	if status, code, ok := identifierError(err); ok {
		return status, code
	}
	h.log(ctx).Error(ctx, "request failed", "error", err)
	return http.StatusInternalServerError, codeServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := h.mapError(r.Context(), err)
	writeError(w, status, code)
}
