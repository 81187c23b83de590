// Package eventkey provisions and operates per-event RSA signing keys. Every
// event gets its own key pair at provisioning time; a compromised event key
// can forge credentials only for that one event. Private keys exist in
// plaintext only inside this package, for the duration of a signing call.
package eventkey

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/keycustody"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// SigningAlgorithm is the only algorithm event keys support. Verification
// rejects everything else.
const SigningAlgorithm = "RS256"

// Manager owns the event key lifecycle.
type Manager struct {
	store       db.EventKeyStore
	custodian   *keycustody.Custodian
	keySizeBits int
}

func NewManager(store db.EventKeyStore, custodian *keycustody.Custodian, keySizeBits int) *Manager {
	return &Manager{
		store:       store,
		custodian:   custodian,
		keySizeBits: keySizeBits,
	}
}

// ProvisionKeyPair generates a fresh RSA key pair for the event and stores it
// with the private key under custody. Provisioning is idempotent-hostile on
// purpose: an event that already has an active pair gets an error, never a
// silent replacement.
func (m *Manager) ProvisionKeyPair(ctx context.Context, eventID uuid.UUID) (*models.EventKeyPair, apperrors.Error) {
	priv, err := rsa.GenerateKey(rand.Reader, m.keySizeBits)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("rsa key generation failed")
		return nil, ErrKeyGenerationFailed.Err(err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, ErrKeyGenerationFailed.Err(err)
	}
	blob, cerr := m.custodian.Encrypt(privDER)
	if cerr != nil {
		return nil, ErrKeyGenerationFailed.Err(cerr)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, ErrKeyGenerationFailed.Err(err)
	}

	key := &models.EventKeyPair{
		KeyID:               uuid.New(),
		EventID:             eventID,
		PublicKey:           pubDER,
		PrivateKeyEncrypted: blob,
		Algorithm:           SigningAlgorithm,
		KeySizeBits:         m.keySizeBits,
		Status:              admitcommon.KeyStatusActive,
		GeneratedAt:         time.Now().UTC(),
	}
	if dberr := m.store.CreateEventKeyPair(ctx, key); dberr != nil {
		if errors.Is(dberr, dberror.ErrAlreadyExists) {
			return nil, ErrKeyAlreadyProvisioned
		}
		return nil, dberr
	}

	log.Ctx(ctx).Info().
		Str("event_id", eventID.String()).
		Str("key_id", key.KeyID.String()).
		Int("key_size_bits", m.keySizeBits).
		Msg("provisioned event key pair")
	return key, nil
}

// activeKey loads the active key pair for an event, retrying transient store
// failures. A missing key is a terminal answer and is not retried.
func (m *Manager) activeKey(ctx context.Context, eventID uuid.UUID) (*models.EventKeyPair, apperrors.Error) {
	key, err := retry.DoWithData(
		func() (*models.EventKeyPair, error) {
			key, dberr := m.store.GetActiveEventKeyPair(ctx, eventID)
			if dberr != nil {
				return nil, dberr
			}
			return key, nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, dberror.ErrNotFound)
		}),
	)
	if err != nil {
		if errors.Is(err, dberror.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		var apperr apperrors.Error
		if errors.As(err, &apperr) {
			return nil, apperr
		}
		return nil, ErrEventKey.Err(err)
	}
	return key, nil
}

// ActiveKeyID returns the id of the event's active key pair.
func (m *Manager) ActiveKeyID(ctx context.Context, eventID uuid.UUID) (uuid.UUID, apperrors.Error) {
	key, apperr := m.activeKey(ctx, eventID)
	if apperr != nil {
		return uuid.Nil, apperr
	}
	return key.KeyID, nil
}

// Sign signs the given input with the event's active private key and returns
// the base64url signature along with the key id used. Signing refuses any key
// that is not Active.
func (m *Manager) Sign(ctx context.Context, eventID uuid.UUID, signingInput string) (string, uuid.UUID, apperrors.Error) {
	key, apperr := m.activeKey(ctx, eventID)
	if apperr != nil {
		return "", uuid.Nil, apperr
	}
	if !key.IsActive() {
		return "", uuid.Nil, ErrKeyNotFound.Msg("event key is not active")
	}

	privDER, cerr := m.custodian.Decrypt(key.PrivateKeyEncrypted)
	if cerr != nil {
		log.Ctx(ctx).Error().Err(cerr).Str("key_id", key.KeyID.String()).Msg("failed to open key custody blob")
		return "", uuid.Nil, ErrSigningFailed.Err(cerr)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(privDER)
	if err != nil {
		return "", uuid.Nil, ErrSigningFailed.Err(err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return "", uuid.Nil, ErrSigningFailed.Msg("stored key is not an RSA key")
	}

	sig, err := jwt.SigningMethodRS256.Sign(signingInput, priv)
	if err != nil {
		return "", uuid.Nil, ErrSigningFailed.Err(err)
	}
	return base64.RawURLEncoding.EncodeToString(sig), key.KeyID, nil
}

// Verify checks a base64url signature over the signing input against the
// event's active public key. Any failure along the way, missing key, bad
// encoding, or signature mismatch, yields ErrSignatureInvalid.
func (m *Manager) Verify(ctx context.Context, eventID uuid.UUID, signingInput, signature string) apperrors.Error {
	key, apperr := m.activeKey(ctx, eventID)
	if apperr != nil {
		if errors.Is(apperr, ErrKeyNotFound) {
			return ErrSignatureInvalid.Msg("no verification key for event")
		}
		return apperr
	}

	pub, perr := ParsePublicKey(key.PublicKey)
	if perr != nil {
		return ErrSignatureInvalid.Err(perr)
	}
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return ErrSignatureInvalid.Err(err)
	}
	if err := jwt.SigningMethodRS256.Verify(signingInput, sig, pub); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

// PublicKeyBase64 returns the event's active public key as standard-base64
// DER SubjectPublicKeyInfo bytes, the interchange format handed to offline
// verifiers.
func (m *Manager) PublicKeyBase64(ctx context.Context, eventID uuid.UUID) (string, uuid.UUID, apperrors.Error) {
	key, apperr := m.activeKey(ctx, eventID)
	if apperr != nil {
		return "", uuid.Nil, apperr
	}
	return base64.StdEncoding.EncodeToString(key.PublicKey), key.KeyID, nil
}

// PublicKeyPEM returns the event's active public key as a PEM block for
// distribution to offline verifiers.
func (m *Manager) PublicKeyPEM(ctx context.Context, eventID uuid.UUID) (string, uuid.UUID, apperrors.Error) {
	key, apperr := m.activeKey(ctx, eventID)
	if apperr != nil {
		return "", uuid.Nil, apperr
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: key.PublicKey}
	return string(pem.EncodeToMemory(block)), key.KeyID, nil
}

// ParsePublicKey parses DER-encoded SubjectPublicKeyInfo bytes into an RSA
// public key.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}
	return pub, nil
}
