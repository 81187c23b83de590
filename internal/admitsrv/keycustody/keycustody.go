// Package keycustody envelope-encrypts private key material before it is
// persisted. The stored blob is useless without the master secret, which lives
// only in configuration. Decryption failure is always a hard failure; the
// package never returns partial plaintext.
package keycustody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/admitd/admitd/internal/common/apperrors"
)

const (
	keySize   = 32
	nonceSize = 12

	// MinSecretLen is the minimum acceptable master secret length. Anything
	// shorter cannot fill the AES-256 key without padding.
	MinSecretLen = keySize
)

// Custodian performs envelope encryption with a key derived from the master
// secret.
type Custodian struct {
	key []byte
}

// zero overwrites the given byte slice with zeros.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// masterKey derives the AES-256 key from the configured secret by truncating
// it to 32 bytes. Secrets shorter than 32 bytes are rejected by New, so the
// zero padding of the copy never applies in practice.
func masterKey(secret string) []byte {
	key := make([]byte, keySize)
	copy(key, secret)
	return key
}

// New creates a Custodian. The secret must be at least MinSecretLen bytes;
// configuration validates this before startup, and it is enforced again here
// so a Custodian can never exist with a weak key.
func New(secret string) (*Custodian, apperrors.Error) {
	if len(secret) < MinSecretLen {
		return nil, ErrInvalidMasterSecret.Msg("master secret is too short")
	}
	return &Custodian{key: masterKey(secret)}, nil
}

// Encrypt seals the plaintext with AES-256-GCM under a fresh random 96-bit
// nonce. The blob layout is nonce||ciphertext, base64-encoded as a whole.
func (c *Custodian) Encrypt(plaintext []byte) (string, apperrors.Error) {
	if len(plaintext) == 0 {
		return "", ErrEncryptionFailed.Msg("empty plaintext")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", ErrEncryptionFailed.Err(err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrEncryptionFailed.Err(err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed.MsgErr("failed to generate nonce", err)
	}

	blob := aesgcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. A truncated blob, a corrupted
// ciphertext, or a GCM tag mismatch all fail hard.
func (c *Custodian) Decrypt(blob string) ([]byte, apperrors.Error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, ErrMalformedBlob.Err(err)
	}
	// nonce plus at least the GCM tag
	if len(raw) < nonceSize+16 {
		return nil, ErrMalformedBlob.Msg("blob is too short")
	}

	nonce := raw[:nonceSize]
	ciphertext := raw[nonceSize:]

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, ErrDecryptionFailed.Err(err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptionFailed.Err(err)
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed.Err(err)
	}

	return plaintext, nil
}
