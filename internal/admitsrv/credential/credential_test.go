package credential

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/memstore"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/eventkey"
	"github.com/admitd/admitd/internal/admitsrv/keycustody"
	"github.com/admitd/admitd/internal/common/uuid"
)

func newService(t *testing.T) (*Service, *eventkey.Manager) {
	t.Helper()
	custodian, err := keycustody.New("unit-test-master-secret-0123456789abcdef")
	require.Nil(t, err)
	keys := eventkey.NewManager(memstore.New(), custodian, 2048)
	return New(keys), keys
}

func newEvent(eventID uuid.UUID) *models.Event {
	return &models.Event{
		EventID:     eventID,
		Title:       "Go Conference 2026",
		StartTime:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
		OrganizerID: "default-operator",
	}
}

func newTicket(eventID uuid.UUID) *models.Ticket {
	return &models.Ticket{
		TicketID:       uuid.New(),
		EventID:        eventID,
		TicketTypeID:   uuid.New(),
		TicketTypeName: "General Admission",
		AttendeeName:   "Priya Sharma",
		AttendeeEmail:  "priya.sharma@example.com",
		AttendeePhone:  "+1-555-867-5309",
		AttendanceMode: admitcommon.AttendanceInPerson,
		BookingRef:     "BK-2026-0042",
	}
}

func TestTicketCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, keys := newService(t)
	eventID := uuid.New()
	_, kerr := keys.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, kerr)

	ticket := newTicket(eventID)
	token, err := svc.IssueTicketCredential(ctx, newEvent(eventID), ticket, time.Now(), time.Now().Add(time.Hour))
	require.Nil(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := svc.Verify(ctx, token, admitcommon.TicketTokenUse, time.Now())
	require.Nil(t, err)
	assert.Equal(t, ticket.TicketID, claims.TicketID)
	assert.Equal(t, eventID, claims.EventID)
	assert.Equal(t, "General Admission", claims.TicketType)
	assert.Equal(t, "Priya Sharma", claims.AttendeeName)
	assert.Equal(t, "Go Conference 2026", claims.EventTitle)
	assert.Equal(t, "BK-2026-0042", claims.BookingRef)
	assert.Equal(t, admitcommon.TicketTokenUse, claims.Use)
}

func TestCredentialCarriesMaskedContactOnly(t *testing.T) {
	ctx := context.Background()
	svc, keys := newService(t)
	eventID := uuid.New()
	_, kerr := keys.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, kerr)

	token, err := svc.IssueTicketCredential(ctx, newEvent(eventID), newTicket(eventID), time.Now(), time.Now().Add(time.Hour))
	require.Nil(t, err)

	assert.NotContains(t, token, "priya.sharma@example.com")

	claims, err := svc.Verify(ctx, token, admitcommon.TicketTokenUse, time.Now())
	require.Nil(t, err)
	assert.Equal(t, "p***@example.com", claims.AttendeeEmail)
	assert.Equal(t, "***5309", claims.AttendeePhone)
}

func TestScannerCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, keys := newService(t)
	eventID := uuid.New()
	_, kerr := keys.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, kerr)

	scannerID := uuid.New()
	token, err := svc.IssueScannerCredential(ctx, scannerID, eventID, "Gate A", time.Now().Add(24*time.Hour))
	require.Nil(t, err)

	claims, err := svc.Verify(ctx, token, admitcommon.ScannerTokenUse, time.Now())
	require.Nil(t, err)
	assert.Equal(t, scannerID, claims.ScannerID)
	assert.Equal(t, "Gate A", claims.ScannerName)

	// A scanner credential never passes as a ticket credential.
	_, err = svc.Verify(ctx, token, admitcommon.TicketTokenUse, time.Now())
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrWrongCredentialUse))
}

func TestVerifyRejectsTampering(t *testing.T) {
	ctx := context.Background()
	svc, keys := newService(t)
	eventID := uuid.New()
	_, kerr := keys.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, kerr)

	token, err := svc.IssueTicketCredential(ctx, newEvent(eventID), newTicket(eventID), time.Now(), time.Now().Add(time.Hour))
	require.Nil(t, err)

	// Flip one bit in the payload segment.
	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	payload[10] ^= 0x01
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = svc.Verify(ctx, tampered, admitcommon.TicketTokenUse, time.Now())
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrBadSignature) || errors.Is(err, ErrMalformedCredential))
}

func TestVerifyRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for _, token := range []string{
		"",
		"one-segment",
		"two.segments",
		"a.b.c.d",
		"!!!.###.$$$",
	} {
		_, err := svc.Verify(ctx, token, admitcommon.TicketTokenUse, time.Now())
		require.NotNil(t, err, "token %q", token)
		assert.True(t, errors.Is(err, ErrMalformedCredential), "token %q", token)
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	svc, keys := newService(t)
	eventID := uuid.New()
	_, kerr := keys.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, kerr)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := svc.IssueTicketCredential(ctx, newEvent(eventID), newTicket(eventID), time.Now(), exp)
	require.Nil(t, err)

	// Exactly at expiry the credential is still valid.
	_, err = svc.Verify(ctx, token, admitcommon.TicketTokenUse, exp)
	assert.Nil(t, err)

	// One second past expiry it is not.
	_, err = svc.Verify(ctx, token, admitcommon.TicketTokenUse, exp.Add(time.Second))
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrCredentialExpired))
}

func TestDecodeUnsafe(t *testing.T) {
	ctx := context.Background()
	svc, keys := newService(t)
	eventID := uuid.New()
	_, kerr := keys.ProvisionKeyPair(ctx, eventID)
	require.Nil(t, kerr)

	token, err := svc.IssueTicketCredential(ctx, newEvent(eventID), newTicket(eventID), time.Now(), time.Now().Add(time.Hour))
	require.Nil(t, err)

	gotEvent, use, ok := DecodeUnsafe(token)
	require.True(t, ok)
	assert.Equal(t, eventID, gotEvent)
	assert.Equal(t, admitcommon.TicketTokenUse, use)

	_, _, ok = DecodeUnsafe("not.a.token")
	assert.False(t, ok)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "", MaskEmail(""))
	assert.Equal(t, "p***@example.com", MaskEmail("priya.sharma@example.com"))
	assert.Equal(t, "a***@b.co", MaskEmail("a@b.co"))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "", MaskPhone(""))
	assert.Equal(t, "***5309", MaskPhone("+1-555-867-5309"))
	assert.Equal(t, "***123", MaskPhone("123"))
}
