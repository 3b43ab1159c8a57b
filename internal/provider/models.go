package provider

import "time"

// Session is an access/refresh token pair issued by the provider.
// RefreshToken may be empty.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

// Expired reports whether the access token is past its expiry at now. A zero
// ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AuthResult is what a verify or token call produced. Session is nil when
// the provider answered without establishing one.
type AuthResult struct {
	Session *Session
	User    *User
}

// OTPType is the verification type GoTrue expects for a code.
type OTPType string

const (
	OTPEmail OTPType = "email"
	OTPSMS   OTPType = "sms"
)

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (u *userResponse) toUser() *User {
	if u == nil || u.ID == "" {
		return nil
	}
	return &User{ID: u.ID, Email: u.Email, Phone: u.Phone}
}

// toResult converts a token response. The expiry comes from expires_at,
// then expires_in, then the access token's exp claim.
func (t *tokenResponse) toResult(now time.Time) *AuthResult {
	res := &AuthResult{User: t.User.toUser()}
	if t.AccessToken == "" {
		return res
	}

	s := &Session{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}

	if res.User != nil {
		s.UserID = res.User.ID
	}
	if claims, err := ParseClaims(t.AccessToken); err == nil {
		if s.UserID == "" {
			s.UserID = claims.Subject
		}
		if s.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.UTC()
		}
	}
	res.Session = s
	return res
}
