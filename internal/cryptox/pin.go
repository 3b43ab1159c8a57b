package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PinIterations is the PBKDF2-SHA256 work factor for both PIN derivations.
	PinIterations = 100_000

	providerKeyLen = 32
	derivationTag  = "authbridge/provider-password/v1"
)

var (
	// ErrNoSalt means the PIN row exists but carries no salt.
	ErrNoSalt = errors.New("no salt")
	// ErrInvalidSalt means the stored salt is neither base64 nor \x-hex.
	ErrInvalidSalt = errors.New("invalid salt encoding")
	// ErrNoPepper is a server misconfiguration; config validation rejects it
	// at startup so request paths should never see it.
	ErrNoPepper = errors.New("pin pepper not configured")
)

// DeriveProviderPassword computes the password the identity provider knows
// for a PIN user. It is pure: the same (pin, userID, saltB64, pepper) always
// yields the same string, and changing any input changes the output.
//
// Construction: an HMAC-SHA256 keyed by the pepper over a length-prefixed
// encoding of pin and userID is stretched with PBKDF2-SHA256 over the
// decoded salt. The 32-byte result is returned as unpadded base64url
// (43 characters), which satisfies provider password rules.
func DeriveProviderPassword(pin, userID, saltB64, pepper string) (string, error) {
	if pepper == "" {
		return "", ErrNoPepper
	}
	salt, err := DecodeSalt(saltB64)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(derivationTag))
	writeField(mac, pin)
	writeField(mac, userID)
	keyed := mac.Sum(nil)

	key := pbkdf2.Key(keyed, salt, PinIterations, providerKeyLen, sha256.New)
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// writeField length-prefixes s so ("12","3") and ("1","23") differ.
func writeField(w io.Writer, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	_, _ = w.Write(n[:])
	_, _ = w.Write([]byte(s))
}

// NormalizeSalt converts a stored salt into standard padded base64.
//
// Salts reach us in two historical shapes: base64 (possibly base64url, with
// or without padding) and Postgres bytea hex output, which is the literal
// two characters `\x` followed by hex digits.
func NormalizeSalt(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrNoSalt
	}
	if strings.HasPrefix(s, `\x`) {
		b, err := hex.DecodeString(s[2:])
		if err != nil || len(b) == 0 {
			return "", fmt.Errorf("%w: bad hex", ErrInvalidSalt)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	}

	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	s = strings.TrimRight(s, "=")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s, nil
}

// DecodeSalt normalizes raw and returns the salt bytes.
func DecodeSalt(raw string) ([]byte, error) {
	norm, err := NormalizeSalt(raw)
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(norm)
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("%w: bad base64", ErrInvalidSalt)
	}
	return b, nil
}

// NewSalt returns a fresh random salt in the canonical stored form.
func NewSalt() string {
	return base64.StdEncoding.EncodeToString(randomBytes(16))
}

const (
	MinPinLength = 4
	MaxPinLength = 8
)

// ErrInvalidPin rejects anything but 4 to 8 ASCII digits.
var ErrInvalidPin = errors.New("pin must be 4 to 8 digits")

// ValidatePin accepts 4 to 8 ASCII digits.
func ValidatePin(pin string) error {
	if len(pin) < MinPinLength || len(pin) > MaxPinLength {
		return ErrInvalidPin
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPin
		}
	}
	return nil
}
