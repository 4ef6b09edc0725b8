package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
)

// ErrDecryptFailed is returned when a stored PAN token fails verification.
// Callers scanning candidate records treat it as "not a match" rather than
// an abort condition.
var ErrDecryptFailed = errors.New("pan token verification failed")

// PANCodec encrypts PAN cards at rest with fernet (AES-CBC + HMAC, random
// IV). Random IVs mean equal plaintexts produce distinct tokens, so stored
// PANs cannot be indexed or compared without decryption.
type PANCodec struct {
	keys []*fernet.Key
}

// NewPANCodec builds a codec from a base64url fernet key. Multiple
// comma-separated keys are accepted to allow key rotation; the first key
// encrypts, all keys verify.
func NewPANCodec(encodedKeys string) (*PANCodec, error) {
	keys, err := fernet.DecodeKeys(strings.Split(encodedKeys, ",")...)
	if err != nil {
		return nil, fmt.Errorf("invalid PAN encryption key: %w", err)
	}
	return &PANCodec{keys: keys}, nil
}

// Encrypt returns the fernet token for a plaintext PAN.
func (c *PANCodec) Encrypt(pan string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(pan), c.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to encrypt PAN: %w", err)
	}
	return string(tok), nil
}

// Decrypt verifies and decrypts a stored token. Tokens never expire; a PAN
// recorded years ago must still decrypt.
func (c *PANCodec) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, c.keys)
	if msg == nil {
		return "", ErrDecryptFailed
	}
	return string(msg), nil
}

// GeneratePANKey returns a fresh encoded fernet key for operator setup.
func GeneratePANKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", err
	}
	return k.Encode(), nil
}
