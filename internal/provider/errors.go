package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider: %d: %s", e.Status, e.Message)
}

var invalidCodeErrors = map[string]struct{}{
	"otp_expired":          {},
	"otp_disabled":         {},
	"invalid_credentials":  {},
	"bad_code_verifier":    {},
	"flow_state_expired":   {},
	"flow_state_not_found": {},
	"invalid_grant":        {},
	"validation_failed":    {},
}

var rateLimitErrors = map[string]struct{}{
	"over_request_rate_limit":    {},
	"over_email_send_rate_limit": {},
	"over_sms_send_rate_limit":   {},
}

// IsInvalidCode reports whether the provider rejected the submitted code
// or credential itself: a wrong, expired or already consumed code.
func (e *APIError) IsInvalidCode() bool {
	if _, ok := invalidCodeErrors[e.Code]; ok {
		return true
	}
	return e.Status >= 400 && e.Status < 500 && !e.IsRateLimited() && e.Status != http.StatusUnauthorized && e.Status != http.StatusForbidden
}

func (e *APIError) IsRateLimited() bool {
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	_, ok := rateLimitErrors[e.Code]
	return ok
}

// IsClientError reports a 4xx answer.
func (e *APIError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// AsAPIError unwraps err into an *APIError if it carries one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// errorBody covers both the current and the legacy GoTrue error shapes.
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func decodeAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var b errorBody
	if err := json.Unmarshal(body, &b); err != nil {
		e.Message = http.StatusText(status)
		return e
	}

	e.Code = b.ErrorCode
	if e.Code == "" {
		e.Code = b.Error
	}
	for _, m := range []string{b.Msg, b.Message, b.ErrorDescription, b.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
