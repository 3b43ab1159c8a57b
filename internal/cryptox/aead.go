// Package cryptox holds the key-derivation and sealing primitives behind PIN
// handling:
//
//   - DeriveProviderPassword turns a numeric PIN into the deterministic
//     password presented to the identity provider. It needs server-held
//     inputs (salt, pepper) and is only ever run by the bridge server.
//   - SealPinSecret / OpenPinSecret protect the client-side LocalPinSecret,
//     which only proves PIN knowledge locally and is never sent anywhere.
//
// The two derivations share nothing but the hash function; the local secret
// is never an input to the provider password.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/dmitrijs2005/authbridge/internal/common"
)

// seal encrypts plaintext with AES-GCM under key using a fresh random nonce.
// key must be 16, 24 or 32 bytes long.
func seal(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// open reverses seal. Authentication failures surface as the cipher's error.
func open(key, nonce, ciphertext []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
