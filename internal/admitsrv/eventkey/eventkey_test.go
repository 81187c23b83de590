package eventkey

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitd/admitd/internal/admitsrv/db/memstore"
	"github.com/admitd/admitd/internal/admitsrv/keycustody"
	"github.com/admitd/admitd/internal/common/uuid"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	custodian, err := keycustody.New("unit-test-master-secret-0123456789abcdef")
	require.Nil(t, err)
	return NewManager(memstore.New(), custodian, 2048)
}

func TestProvisionKeyPair(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	eventID := uuid.New()

	key, err := mgr.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, err)
	assert.Equal(t, eventID, key.EventID)
	assert.Equal(t, "RS256", key.Algorithm)
	assert.Equal(t, 2048, key.KeySizeBits)
	assert.NotEmpty(t, key.PublicKey)

	// The stored private key is a custody blob, never DER.
	_, perr := ParsePublicKey([]byte(key.PrivateKeyEncrypted))
	assert.Error(t, perr)

	_, err = mgr.ProvisionKeyPair(ctx, eventID)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrKeyAlreadyProvisioned))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	eventID := uuid.New()

	_, err := mgr.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, err)

	input := "eyJhbGciOiJSUzI1NiJ9.eyJ0aWNrZXRfaWQiOiJ4In0"
	sig, keyID, err := mgr.Sign(ctx, eventID, input)
	require.Nil(t, err)
	assert.NotEqual(t, uuid.Nil, keyID)
	require.Nil(t, mgr.Verify(ctx, eventID, input, sig))
}

func TestVerifyRejectsCrossEventSignature(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	eventA := uuid.New()
	eventB := uuid.New()

	_, err := mgr.ProvisionKeyPair(ctx, eventA)
	require.Nil(t, err)
	_, err = mgr.ProvisionKeyPair(ctx, eventB)
	require.Nil(t, err)

	input := "header.payload"
	sig, _, err := mgr.Sign(ctx, eventA, input)
	require.Nil(t, err)

	verr := mgr.Verify(ctx, eventB, input, sig)
	require.NotNil(t, verr)
	assert.True(t, errors.Is(verr, ErrSignatureInvalid))
}

func TestVerifyRejectsTamperedInput(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	eventID := uuid.New()

	_, err := mgr.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, err)

	sig, _, err := mgr.Sign(ctx, eventID, "header.payload")
	require.Nil(t, err)

	verr := mgr.Verify(ctx, eventID, "header.tampered", sig)
	require.NotNil(t, verr)
	assert.True(t, errors.Is(verr, ErrSignatureInvalid))

	verr = mgr.Verify(ctx, eventID, "header.payload", "not-base64url!!!")
	require.NotNil(t, verr)
	assert.True(t, errors.Is(verr, ErrSignatureInvalid))
}

func TestSignWithoutKey(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)

	_, _, err := mgr.Sign(ctx, uuid.New(), "header.payload")
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestPublicKeyPEM(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	eventID := uuid.New()

	provisioned, err := mgr.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, err)

	pemStr, keyID, err := mgr.PublicKeyPEM(ctx, eventID)
	require.Nil(t, err)
	assert.Equal(t, provisioned.KeyID, keyID)
	assert.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))

	_, _, err = mgr.PublicKeyPEM(ctx, uuid.New())
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}
