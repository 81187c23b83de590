// Package keymanager owns the service-level ed25519 key used to sign
// organizer identity tokens. The key is created lazily on first use and kept
// in the store with its private half under custody. Production deployments
// that need HSM-backed keys would replace this with a KMS integration.
package keymanager

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/db"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/keycustody"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// SigningKey is the decrypted service key pair held in memory.
type SigningKey struct {
	KeyID      uuid.UUID
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// KeyManager hands out the active service signing key.
type KeyManager interface {
	GetActiveKey(ctx context.Context) (*SigningKey, apperrors.Error)
}

type keyManager struct {
	store     db.SigningKeyStore
	custodian *keycustody.Custodian
	activeKey *SigningKey
	mu        sync.Mutex
}

func New(store db.SigningKeyStore, custodian *keycustody.Custodian) KeyManager {
	return &keyManager{store: store, custodian: custodian}
}

// GetActiveKey returns the cached key, retrieving or creating it on first use.
func (km *keyManager) GetActiveKey(ctx context.Context) (*SigningKey, apperrors.Error) {
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.activeKey != nil {
		return km.activeKey, nil
	}
	return km.retrieveOrCreateKey(ctx)
}

func (km *keyManager) retrieveOrCreateKey(ctx context.Context) (*SigningKey, apperrors.Error) {
	var key *models.SigningKey
	err := retry.Do(func() error {
		var err error
		key, err = km.store.GetActiveSigningKey(ctx)
		if err != nil {
			if errors.Is(err, dberror.ErrNotFound) {
				key = nil
				return nil
			}
			return err
		}
		return nil
	}, retry.Attempts(3), retry.Delay(1*time.Second), retry.DelayType(retry.BackOffDelay))
	if err != nil {
		return nil, apperrors.New("unable to retrieve signing key").Err(err)
	}

	if key == nil {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("unable to generate signing key")
			return nil, apperrors.New("unable to generate signing key").Err(err)
		}

		blob, cerr := km.custodian.Encrypt(priv)
		if cerr != nil {
			log.Ctx(ctx).Error().Err(cerr).Msg("unable to encrypt signing key")
			return nil, apperrors.New("unable to encrypt signing key").Err(cerr)
		}

		key = &models.SigningKey{
			PublicKey:  pub,
			PrivateKey: blob,
			IsActive:   true,
		}
		err = retry.Do(func() error {
			return km.store.CreateSigningKey(ctx, key)
		}, retry.Attempts(3), retry.Delay(1*time.Second), retry.DelayType(retry.BackOffDelay))
		if err != nil {
			return nil, apperrors.New("unable to create signing key").Err(err)
		}

		km.activeKey = &SigningKey{
			KeyID:      key.KeyID,
			PrivateKey: priv,
			PublicKey:  pub,
		}
		return km.activeKey, nil
	}

	priv, cerr := km.custodian.Decrypt(key.PrivateKey)
	if cerr != nil {
		log.Ctx(ctx).Error().Err(cerr).Msg("unable to decrypt signing key")
		return nil, apperrors.New("unable to decrypt signing key").Err(cerr)
	}
	km.activeKey = &SigningKey{
		KeyID:      key.KeyID,
		PrivateKey: ed25519.PrivateKey(priv),
		PublicKey:  ed25519.PublicKey(key.PublicKey),
	}
	return km.activeKey, nil
}
