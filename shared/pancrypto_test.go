package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *PANCodec {
	t.Helper()
	key, err := GeneratePANKey()
	require.NoError(t, err)
	codec, err := NewPANCodec(key)
	require.NoError(t, err)
	return codec
}

func TestPANCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Encrypt("ABCDE1234F")
	require.NoError(t, err)
	assert.NotEqual(t, "ABCDE1234F", token)

	plain, err := codec.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "ABCDE1234F", plain)
}

func TestPANCodecRandomizedTokens(t *testing.T) {
	codec := newTestCodec(t)

	// Fernet uses a random IV, so the same PAN never produces the same
	// token twice. Matching must go through decryption.
	a, err := codec.Encrypt("ABCDE1234F")
	require.NoError(t, err)
	b, err := codec.Encrypt("ABCDE1234F")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPANCodecTamperedToken(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Encrypt("ABCDE1234F")
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = codec.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestPANCodecWrongKey(t *testing.T) {
	codec := newTestCodec(t)
	other := newTestCodec(t)

	token, err := codec.Encrypt("ABCDE1234F")
	require.NoError(t, err)

	_, err = other.Decrypt(token)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestNewPANCodecRejectsBadKey(t *testing.T) {
	_, err := NewPANCodec("")
	assert.Error(t, err)

	_, err = NewPANCodec("not-a-key")
	assert.Error(t, err)
}
