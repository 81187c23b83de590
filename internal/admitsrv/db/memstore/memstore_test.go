package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common/uuid"
)

func newEventKeyPair(eventID uuid.UUID) *models.EventKeyPair {
	return &models.EventKeyPair{
		KeyID:               uuid.New(),
		EventID:             eventID,
		PublicKey:           []byte("der-bytes"),
		PrivateKeyEncrypted: "custody-blob",
		Algorithm:           "RS256",
		KeySizeBits:         2048,
		Status:              admitcommon.KeyStatusActive,
		GeneratedAt:         time.Now().UTC(),
	}
}

func TestEventKeyPairSingleActive(t *testing.T) {
	ctx := context.Background()
	store := New()
	eventID := uuid.New()

	key := newEventKeyPair(eventID)
	require.NoError(t, store.CreateEventKeyPair(ctx, key))

	dup := newEventKeyPair(eventID)
	err := store.CreateEventKeyPair(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberror.ErrAlreadyExists))

	got, goerr := store.GetActiveEventKeyPair(ctx, eventID)
	require.NoError(t, goerr)
	assert.Equal(t, key.KeyID, got.KeyID)

	_, goerr = store.GetActiveEventKeyPair(ctx, uuid.New())
	require.Error(t, goerr)
	assert.True(t, errors.Is(goerr, dberror.ErrNotFound))
}

func TestConsumeRegistrationTokenOnce(t *testing.T) {
	ctx := context.Background()
	store := New()
	token := &models.RegistrationToken{
		Token:     "AAAAAAAA-BBBBBBBB",
		EventID:   uuid.New(),
		ExpiresAt: time.Now().Add(15 * time.Minute),
		CreatedBy: "operator",
	}
	require.NoError(t, store.CreateRegistrationToken(ctx, token))

	winner := uuid.New()
	require.NoError(t, store.ConsumeRegistrationToken(ctx, token.Token, winner))

	err := store.ConsumeRegistrationToken(ctx, token.Token, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberror.ErrStaleState))

	got, goerr := store.GetRegistrationToken(ctx, token.Token)
	require.NoError(t, goerr)
	assert.True(t, got.Used)
	assert.Equal(t, winner, got.UsedByScannerID)
}

func TestConsumeRegistrationTokenConcurrent(t *testing.T) {
	ctx := context.Background()
	store := New()
	token := &models.RegistrationToken{
		Token:     "CCCCCCCC-DDDDDDDD",
		EventID:   uuid.New(),
		ExpiresAt: time.Now().Add(15 * time.Minute),
		CreatedBy: "operator",
	}
	require.NoError(t, store.CreateRegistrationToken(ctx, token))

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.ConsumeRegistrationToken(ctx, token.Token, uuid.New()); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestDeleteExpiredRegistrationTokens(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Now().UTC()

	expired := &models.RegistrationToken{
		Token:     "EXPIRED1-EXPIRED1",
		EventID:   uuid.New(),
		ExpiresAt: now.Add(-time.Hour),
		CreatedBy: "operator",
	}
	live := &models.RegistrationToken{
		Token:     "LIVE1111-LIVE1111",
		EventID:   uuid.New(),
		ExpiresAt: now.Add(time.Hour),
		CreatedBy: "operator",
	}
	require.NoError(t, store.CreateRegistrationToken(ctx, expired))
	require.NoError(t, store.CreateRegistrationToken(ctx, live))

	n, err := store.DeleteExpiredRegistrationTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, goerr := store.GetRegistrationToken(ctx, expired.Token)
	assert.True(t, errors.Is(goerr, dberror.ErrNotFound))
	_, goerr = store.GetRegistrationToken(ctx, live.Token)
	assert.Nil(t, goerr)
}

func newScanner(eventID uuid.UUID, fingerprint string) *models.Scanner {
	return &models.Scanner{
		ScannerID:         uuid.New(),
		Name:              "Gate A",
		EventID:           eventID,
		DeviceFingerprint: fingerprint,
		Credential:        "header.payload.sig",
		CredentialExpiry:  time.Now().Add(24 * time.Hour),
		Status:            admitcommon.ScannerStatusActive,
		CreatedBy:         "operator",
	}
}

func TestScannerActiveDeviceUniqueness(t *testing.T) {
	ctx := context.Background()
	store := New()
	eventID := uuid.New()

	first := newScanner(eventID, "device-1")
	require.NoError(t, store.CreateScanner(ctx, first))

	second := newScanner(eventID, "device-1")
	err := store.CreateScanner(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberror.ErrAlreadyExists))

	// Closing the first record frees the device slot.
	require.NoError(t, store.UpdateScannerStatus(ctx, first.ScannerID, admitcommon.ScannerStatusClosed, ""))
	require.NoError(t, store.CreateScanner(ctx, second))

	// Same device on a different event never conflicts.
	other := newScanner(uuid.New(), "device-1")
	require.NoError(t, store.CreateScanner(ctx, other))
}

func TestUpdateScannerStatusRejectsExpired(t *testing.T) {
	ctx := context.Background()
	store := New()
	scanner := newScanner(uuid.New(), "device-2")
	require.NoError(t, store.CreateScanner(ctx, scanner))

	err := store.UpdateScannerStatus(ctx, scanner.ScannerID, admitcommon.ScannerStatusExpired, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberror.ErrInvalidInput))
}

func TestRecordScan(t *testing.T) {
	ctx := context.Background()
	store := New()
	scanner := newScanner(uuid.New(), "device-3")
	require.NoError(t, store.CreateScanner(ctx, scanner))

	at := time.Now().UTC()
	require.NoError(t, store.RecordScan(ctx, scanner.ScannerID, at))
	require.NoError(t, store.RecordScan(ctx, scanner.ScannerID, at.Add(time.Second)))

	got, err := store.GetScanner(ctx, scanner.ScannerID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ScanCount)
	require.NotNil(t, got.LastScanAt)
	assert.Equal(t, at.Add(time.Second), *got.LastScanAt)
}

func TestCommitCheckInExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := New()
	ticketID := uuid.New()
	at := time.Now().UTC()

	committed, record, err := store.CommitCheckIn(ctx, ticketID, "2026-03-14", "Gate A", "Main Entrance", at)
	require.NoError(t, err)
	assert.True(t, committed)
	require.NotNil(t, record)
	assert.Equal(t, "Gate A", record.CheckedInBy)

	committed, existing, err := store.CommitCheckIn(ctx, ticketID, "2026-03-14", "Gate B", "Side Entrance", at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, committed)
	require.NotNil(t, existing)
	assert.Equal(t, "Gate A", existing.CheckedInBy)
	require.NotNil(t, existing.CheckedInAt)
	assert.Equal(t, at, *existing.CheckedInAt)

	// A different day for the same ticket is an independent slot.
	committed, _, err = store.CommitCheckIn(ctx, ticketID, "2026-03-15", "Gate B", "Side Entrance", at)
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestCommitCheckInConcurrent(t *testing.T) {
	ctx := context.Background()
	store := New()
	ticketID := uuid.New()

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			committed, _, err := store.CommitCheckIn(ctx, ticketID, "2026-03-14", "Gate A", "", time.Now().UTC())
			if err == nil && committed {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestListScannersByDeviceOrder(t *testing.T) {
	ctx := context.Background()
	store := New()
	eventID := uuid.New()

	older := newScanner(eventID, "device-4")
	older.Status = admitcommon.ScannerStatusClosed
	require.NoError(t, store.CreateScanner(ctx, older))
	time.Sleep(2 * time.Millisecond)
	newer := newScanner(eventID, "device-4")
	require.NoError(t, store.CreateScanner(ctx, newer))

	list, err := store.ListScannersByDevice(ctx, eventID, "device-4")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ScannerID, list[0].ScannerID)
}
