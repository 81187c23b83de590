package keycustody

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-master-secret-0123456789abcdef"

func TestNewRejectsShortSecret(t *testing.T) {
	_, err := New("short")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMasterSecret))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	blob, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEmpty(t, blob)

	decrypted, err := c.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	blob1, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	blob2, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	assert.NotEqual(t, blob1, blob2)
}

func TestEncryptRejectsEmptyPlaintext(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	_, err = c.Encrypt(nil)
	assert.Error(t, err)
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	blob, err := c.Encrypt([]byte("sensitive key material"))
	require.NoError(t, err)

	raw, goerr := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, goerr)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = c.Decrypt(tampered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecryptionFailed))
}

func TestDecryptRejectsMalformedBlob(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)

	_, err = c.Decrypt("not-base64!!!")
	assert.True(t, errors.Is(err, ErrMalformedBlob))

	short := base64.StdEncoding.EncodeToString([]byte("tiny"))
	_, err = c.Decrypt(short)
	assert.True(t, errors.Is(err, ErrMalformedBlob))
}

func TestDecryptWrongSecretFails(t *testing.T) {
	c1, err := New(testSecret)
	require.NoError(t, err)
	c2, err := New(strings.Repeat("x", 40))
	require.NoError(t, err)

	blob, err := c1.Encrypt([]byte("key material"))
	require.NoError(t, err)

	_, err = c2.Decrypt(blob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecryptionFailed))
}
