package cryptox

import (
	"crypto/sha256"
	"errors"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	localSecretLen = 32
	localSaltLen   = 16
	localKeyLen    = 32
)

// ErrWrongPin is returned when a LocalPinSecret does not open with the PIN.
var ErrWrongPin = errors.New("wrong pin")

// ErrCorruptSecret is returned for structurally invalid secrets.
var ErrCorruptSecret = errors.New("corrupt pin secret")

// LocalPinSecret is a random 32-byte secret sealed under a key derived from
// the user's PIN. It lives only on the client. The JSON form (base64 fields)
// is what the client store persists.
type LocalPinSecret struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Salt       []byte `json:"salt"`
}

// SealPinSecret generates a new random secret and seals it under pin. The
// plaintext secret is returned so callers can wipe it when done.
func SealPinSecret(pin string) (*LocalPinSecret, []byte, error) {
	secret := randomBytes(localSecretLen)
	salt := randomBytes(localSaltLen)

	key := localKey(pin, salt)
	defer common.WipeByteArray(key)

	ct, iv, err := seal(key, secret)
	if err != nil {
		return nil, nil, err
	}
	return &LocalPinSecret{Ciphertext: ct, IV: iv, Salt: salt}, secret, nil
}

// OpenPinSecret recovers the secret; a wrong PIN yields ErrWrongPin.
func OpenPinSecret(pin string, s *LocalPinSecret) ([]byte, error) {
	if s == nil || len(s.Salt) == 0 || len(s.IV) == 0 || len(s.Ciphertext) == 0 {
		return nil, ErrCorruptSecret
	}
	key := localKey(pin, s.Salt)
	defer common.WipeByteArray(key)

	secret, err := open(key, s.IV, s.Ciphertext)
	if err != nil {
		return nil, ErrWrongPin
	}
	if len(secret) != localSecretLen {
		return nil, ErrCorruptSecret
	}
	return secret, nil
}

func localKey(pin string, salt []byte) []byte {
	return pbkdf2.Key([]byte(pin), salt, PinIterations, localKeyLen, sha256.New)
}

func randomBytes(n int) []byte {
	return common.GenerateRandByteArray(n)
}
