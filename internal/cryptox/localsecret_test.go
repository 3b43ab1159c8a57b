package cryptox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenPinSecret_RoundTrip(t *testing.T) {
	sealed, secret, err := SealPinSecret("2468")
	require.NoError(t, err)
	require.Len(t, secret, 32)
	assert.Len(t, sealed.IV, 12)
	assert.Len(t, sealed.Salt, 16)
	assert.NotContains(t, string(sealed.Ciphertext), string(secret))

	got, err := OpenPinSecret("2468", sealed)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestOpenPinSecret_WrongPin(t *testing.T) {
	sealed, _, err := SealPinSecret("2468")
	require.NoError(t, err)

	_, err = OpenPinSecret("8642", sealed)
	assert.ErrorIs(t, err, ErrWrongPin)
}

func TestOpenPinSecret_Tampered(t *testing.T) {
	sealed, _, err := SealPinSecret("2468")
	require.NoError(t, err)
	sealed.Ciphertext[0] ^= 0xff

	_, err = OpenPinSecret("2468", sealed)
	assert.ErrorIs(t, err, ErrWrongPin)
}

func TestOpenPinSecret_Corrupt(t *testing.T) {
	_, err := OpenPinSecret("2468", nil)
	assert.ErrorIs(t, err, ErrCorruptSecret)

	_, err = OpenPinSecret("2468", &LocalPinSecret{Salt: []byte{1}})
	assert.ErrorIs(t, err, ErrCorruptSecret)
}

func TestLocalPinSecret_JSON(t *testing.T) {
	sealed, secret, err := SealPinSecret("1357")
	require.NoError(t, err)

	b, err := json.Marshal(sealed)
	require.NoError(t, err)

	var back LocalPinSecret
	require.NoError(t, json.Unmarshal(b, &back))
	got, err := OpenPinSecret("1357", &back)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestSealPinSecret_FreshEachTime(t *testing.T) {
	a, _, err := SealPinSecret("1111")
	require.NoError(t, err)
	b, _, err := SealPinSecret("1111")
	require.NoError(t, err)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.IV, b.IV)
}
