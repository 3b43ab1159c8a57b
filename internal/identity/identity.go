// Package identity validates and canonicalizes the identifiers an OTP can be
// sent to. Nothing downstream ever sees a non-canonical identifier.
package identity

import (
	"errors"
	"regexp"
	"strings"
)

// Channel is the OTP delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

var (
	ErrEmailRequired = errors.New("email required")
	ErrInvalidEmail  = errors.New("invalid email")
	ErrPhoneRequired = errors.New("phone required")
	ErrInvalidPhone  = errors.New("invalid phone: expected a Nepali mobile number (98XXXXXXXX, 97XXXXXXXX or 96XXXXXXXX)")
)

// Identifier is either an email address or a canonical +977 phone number.
type Identifier struct {
	Channel Channel
	Value   string
}

// Key is the identifier's abuse-prevention key, e.g. "email:a@b.c".
func (i Identifier) Key() string {
	return string(i.Channel) + ":" + i.Value
}

func (i Identifier) IsEmail() bool { return i.Channel == ChannelEmail }

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ParseEmail trims and lower-cases s and checks its shape.
func ParseEmail(s string) (Identifier, error) {
	email := strings.ToLower(strings.TrimSpace(s))
	if email == "" {
		return Identifier{}, ErrEmailRequired
	}
	if !emailRe.MatchString(email) {
		return Identifier{}, ErrInvalidEmail
	}
	return Identifier{Channel: ChannelEmail, Value: email}, nil
}

// ParsePhone canonicalizes s with NormalizeNepalPhone.
func ParsePhone(s string) (Identifier, error) {
	phone, err := NormalizeNepalPhone(s)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Channel: ChannelSMS, Value: phone}, nil
}
