package checkin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/credential"
	"github.com/admitd/admitd/internal/admitsrv/db/memstore"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/eventbus"
	"github.com/admitd/admitd/internal/admitsrv/eventkey"
	"github.com/admitd/admitd/internal/admitsrv/keycustody"
	"github.com/admitd/admitd/internal/admitsrv/scanner"
	"github.com/admitd/admitd/internal/common/uuid"
)

const operator = "default-operator"

type fixture struct {
	engine    *Engine
	authority *scanner.Authority
	creds     *credential.Service
	keys      *eventkey.Manager
	store     *memstore.Store
	bus       *eventbus.Bus
	event     *models.Event
	ticket    *models.Ticket
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	custodian, err := keycustody.New("unit-test-master-secret-0123456789abcdef")
	require.Nil(t, err)
	keys := eventkey.NewManager(store, custodian, 2048)
	creds := credential.New(keys)
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)

	// Single-day event spanning the current UTC day, so issued tokens are
	// fresh and the check-in day is deterministic.
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	event := &models.Event{
		EventID:     uuid.New(),
		Title:       "Go Conference 2026",
		StartTime:   dayStart.Add(time.Minute),
		EndTime:     dayStart.Add(24*time.Hour - time.Minute),
		OrganizerID: operator,
	}
	store.PutEvent(event)
	_, kerr := keys.ProvisionKeyPair(ctx, event.EventID)
	require.Nil(t, kerr)

	ticket := &models.Ticket{
		TicketID:       uuid.New(),
		EventID:        event.EventID,
		TicketTypeID:   uuid.New(),
		TicketTypeName: "General Admission",
		AttendeeName:   "Priya Sharma",
		AttendeeEmail:  "priya.sharma@example.com",
		AttendanceMode: admitcommon.AttendanceInPerson,
		BookingRef:     "BK-2026-0042",
	}
	store.PutTicket(ticket)

	authority := scanner.NewAuthority(store, store, store, keys, creds, 15*time.Minute, 365*24*time.Hour)
	engine := NewEngine(store, store, store, creds, bus)
	return &fixture{
		engine:    engine,
		authority: authority,
		creds:     creds,
		keys:      keys,
		store:     store,
		bus:       bus,
		event:     event,
		ticket:    ticket,
	}
}

const fingerprint = "device-fingerprint-0001"

func (f *fixture) registerScanner(t *testing.T) *models.Scanner {
	t.Helper()
	ctx := context.Background()
	token, err := f.authority.IssueRegistrationToken(ctx, operator, f.event.EventID, "")
	require.Nil(t, err)
	result, err := f.authority.Register(ctx, &scanner.RegisterRequest{
		Token:             token.Token,
		Name:              "Gate A",
		DeviceFingerprint: fingerprint,
	})
	require.Nil(t, err)
	return result.Scanner
}

func (f *fixture) ticketToken(t *testing.T) string {
	t.Helper()
	token, err := f.creds.IssueTicketCredential(context.Background(), f.event, f.ticket, f.event.StartTime, f.event.EndTime)
	require.Nil(t, err)
	return token
}

func TestEndToEndValidThenDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sc := f.registerScanner(t)
	token := f.ticketToken(t)

	req := &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: fingerprint,
		Token:             token,
		Location:          "Main Entrance",
	}
	result, err := f.engine.ValidateAndCheckIn(ctx, req)
	require.Nil(t, err)
	assert.Equal(t, OutcomeValid, result.Outcome)
	assert.Equal(t, f.ticket.TicketID, result.TicketID)
	assert.Equal(t, "Priya Sharma", result.AttendeeName)
	require.NotNil(t, result.CheckedInAt)
	firstAt := *result.CheckedInAt

	// The identical call again is a duplicate surfacing the original metadata.
	dup, err := f.engine.ValidateAndCheckIn(ctx, req)
	require.Nil(t, err)
	assert.Equal(t, OutcomeDuplicate, dup.Outcome)
	require.NotNil(t, dup.CheckedInAt)
	assert.Equal(t, firstAt, *dup.CheckedInAt)
	assert.Equal(t, "Gate A", dup.CheckedInBy)
	assert.Equal(t, "Main Entrance", dup.Location)

	// A freshly reissued token for the same ticket instance is still a
	// duplicate.
	fresh := f.ticketToken(t)
	dup2, err := f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: fingerprint,
		Token:             fresh,
	})
	require.Nil(t, err)
	assert.Equal(t, OutcomeDuplicate, dup2.Outcome)

	// The scan counter moved once per attempt that reached the scanner.
	got, gerr := f.store.GetScanner(ctx, sc.ScannerID)
	require.Nil(t, gerr)
	assert.Equal(t, int64(1), got.ScanCount)
}

func TestScannerAuthorityOutcomes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sc := f.registerScanner(t)
	token := f.ticketToken(t)

	// Unknown scanner.
	result, err := f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         uuid.New(),
		DeviceFingerprint: fingerprint,
		Token:             token,
	})
	require.Nil(t, err)
	assert.Equal(t, OutcomeScannerInvalid, result.Outcome)

	// Fingerprint mismatch is ScannerInvalid regardless of ticket validity.
	result, err = f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: "some-other-device",
		Token:             token,
	})
	require.Nil(t, err)
	assert.Equal(t, OutcomeScannerInvalid, result.Outcome)

	// A closed scanner has no authority.
	require.Nil(t, f.authority.Close(ctx, operator, sc.ScannerID))
	result, err = f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: fingerprint,
		Token:             token,
	})
	require.Nil(t, err)
	assert.Equal(t, OutcomeScannerInvalid, result.Outcome)
}

func TestInvalidSignatureOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sc := f.registerScanner(t)
	token := f.ticketToken(t)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	result, err := f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: fingerprint,
		Token:             tampered,
	})
	require.Nil(t, err)
	assert.Equal(t, OutcomeInvalidSignature, result.Outcome)
}

func TestExpiredOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sc := f.registerScanner(t)

	token, cerr := f.creds.IssueTicketCredential(ctx, f.event, f.ticket,
		f.event.StartTime, time.Now().UTC().Add(-2*time.Second))
	require.Nil(t, cerr)

	result, err := f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: fingerprint,
		Token:             token,
	})
	require.Nil(t, err)
	assert.Equal(t, OutcomeExpired, result.Outcome)
}

func TestNotFoundOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sc := f.registerScanner(t)

	// Well-signed token referencing a ticket that no longer exists.
	ghost := &models.Ticket{
		TicketID:       uuid.New(),
		EventID:        f.event.EventID,
		TicketTypeID:   uuid.New(),
		TicketTypeName: "General Admission",
		AttendeeName:   "Ghost",
		BookingRef:     "BK-GONE",
	}
	token, cerr := f.creds.IssueTicketCredential(ctx, f.event, ghost, f.event.StartTime, f.event.EndTime)
	require.Nil(t, cerr)

	result, err := f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: fingerprint,
		Token:             token,
	})
	require.Nil(t, err)
	assert.Equal(t, OutcomeNotFound, result.Outcome)
}

func TestCheckInPublishesNotification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sc := f.registerScanner(t)

	ch, unsubscribe := f.bus.Subscribe(eventbus.TopicCheckIn(f.event.EventID), 4)
	defer unsubscribe()

	_, err := f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: fingerprint,
		Token:             f.ticketToken(t),
	})
	require.Nil(t, err)

	select {
	case got := <-ch:
		notification, ok := got.Data.(Notification)
		require.True(t, ok)
		assert.Equal(t, OutcomeValid, notification.Outcome)
		assert.Equal(t, f.ticket.TicketID, notification.TicketID)
		assert.Equal(t, "Gate A", notification.ScannerName)
	case <-time.After(time.Second):
		t.Fatal("no notification published")
	}
}

func TestSingleDayEventUsesStartDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sc := f.registerScanner(t)

	result, err := f.engine.ValidateAndCheckIn(ctx, &Request{
		ScannerID:         sc.ScannerID,
		DeviceFingerprint: fingerprint,
		Token:             f.ticketToken(t),
	})
	require.Nil(t, err)
	assert.Equal(t, OutcomeValid, result.Outcome)
	assert.Equal(t, f.event.StartTime.UTC().Format("2006-01-02"), result.EventDay)
}
