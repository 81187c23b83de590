package apis

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/auth"
	"github.com/admitd/admitd/internal/admitsrv/auth/keymanager"
	"github.com/admitd/admitd/internal/admitsrv/checkin"
	"github.com/admitd/admitd/internal/admitsrv/config"
	"github.com/admitd/admitd/internal/admitsrv/credential"
	"github.com/admitd/admitd/internal/admitsrv/db/memstore"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/eventbus"
	"github.com/admitd/admitd/internal/admitsrv/eventkey"
	"github.com/admitd/admitd/internal/admitsrv/keycustody"
	"github.com/admitd/admitd/internal/admitsrv/scanner"
	"github.com/admitd/admitd/internal/common/uuid"
)

type testServer struct {
	router  *chi.Mux
	store   *memstore.Store
	event   *models.Event
	ticket  *models.Ticket
	eventID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	config.TestInit()

	store := memstore.New()
	custodian, err := keycustody.New(config.Config().Auth.KeyEncryptionPasswd)
	require.Nil(t, err)

	keys := eventkey.NewManager(store, custodian, config.Config().Trust.RSAKeySizeBits)
	creds := credential.New(keys)
	authority := scanner.NewAuthority(store, store, store, keys, creds, 15*time.Minute, 365*24*time.Hour)
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)
	engine := checkin.NewEngine(store, store, store, creds, bus)
	authMgr := auth.NewManager(keymanager.New(store, custodian))

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	event := &models.Event{
		EventID:     uuid.New(),
		Title:       "GopherFest",
		StartTime:   dayStart.Add(time.Minute),
		EndTime:     dayStart.Add(24*time.Hour - time.Minute),
		OrganizerID: config.Config().Auth.DefaultOperatorID,
		Venue:       "Pier 48",
	}
	store.PutEvent(event)

	ticket := &models.Ticket{
		TicketID:       uuid.New(),
		EventID:        event.EventID,
		TicketTypeID:   uuid.New(),
		TicketTypeName: "General Admission",
		AttendeeName:   "Pat Doe",
		AttendeeEmail:  "pat@example.com",
		AttendeePhone:  "+15558675309",
		AttendanceMode: admitcommon.AttendanceInPerson,
		BookingRef:     "BK-1001",
	}
	store.PutTicket(ticket)

	api := New(authMgr, keys, creds, authority, engine, store)
	router := chi.NewRouter()
	api.Router(router)

	return &testServer{
		router:  router,
		store:   store,
		event:   event,
		ticket:  ticket,
		eventID: event.EventID,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{"password": "gate-keeper-42"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rsp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rsp))
	require.NotEmpty(t, rsp.Token)
	return rsp.Token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestOperatorEndpointsRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/registration-tokens", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProvisionAndFetchEventKeys(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/keys", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[eventKeyResponse](t, rec)
	assert.Equal(t, "RS256", created.Algorithm)
	assert.NotEmpty(t, created.PublicKey)

	// Second provision conflicts: one active pair per event.
	rec = ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/keys", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The public half is fetchable without auth.
	rec = ts.do(t, http.MethodGet, "/events/"+ts.eventID.String()+"/keys/public", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeBody[eventKeyResponse](t, rec)
	assert.Equal(t, created.PublicKey, fetched.PublicKey)
	assert.Equal(t, created.KeyID, fetched.KeyID)
}

func TestEventOwnershipEnforced(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	foreign := &models.Event{
		EventID:     uuid.New(),
		Title:       "Someone Else's Gala",
		StartTime:   time.Now().UTC(),
		EndTime:     time.Now().UTC().Add(4 * time.Hour),
		OrganizerID: "another-operator",
	}
	ts.store.PutEvent(foreign)

	rec := ts.do(t, http.MethodPost, "/events/"+foreign.EventID.String()+"/keys", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegistrationAndCheckInFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/keys", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Issue a ticket credential with the default validity window.
	rec = ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/tickets/"+ts.ticket.TicketID.String()+"/credential", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decodeBody[issueCredentialResponse](t, rec)
	require.NotEmpty(t, issued.Credential)

	// Bootstrap a scanner.
	rec = ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/registration-tokens", token,
		map[string]string{"scanner_name_hint": "front gate"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	regToken := decodeBody[registrationTokenResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/scanners", "", map[string]any{
		"token":              regToken.Token,
		"name":               "front gate",
		"device_fingerprint": "device-fp-0001",
		"device_info":        map[string]string{"model": "TC52", "os": "android-13"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decodeBody[registerScannerResponse](t, rec)
	assert.Equal(t, ts.eventID, registered.EventID)
	require.NotEqual(t, uuid.Nil, registered.ScannerID)

	// Reusing the token fails.
	rec = ts.do(t, http.MethodPost, "/scanners", "", map[string]any{
		"token":              regToken.Token,
		"name":               "back gate",
		"device_fingerprint": "device-fp-0002",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// First presentation admits.
	checkInBody := map[string]string{
		"scanner_id":         registered.ScannerID.String(),
		"device_fingerprint": "device-fp-0001",
		"token":              issued.Credential,
		"location":           "gate A",
	}
	rec = ts.do(t, http.MethodPost, "/checkins", "", checkInBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[checkInResponse](t, rec)
	assert.Equal(t, checkin.OutcomeValid, first.Outcome)
	assert.Equal(t, "Pat Doe", first.AttendeeName)
	require.NotNil(t, first.CheckedInAt)

	// Second presentation is a duplicate carrying the original metadata.
	rec = ts.do(t, http.MethodPost, "/checkins", "", checkInBody)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[checkInResponse](t, rec)
	assert.Equal(t, checkin.OutcomeDuplicate, second.Outcome)
	require.NotNil(t, second.CheckedInAt)
	assert.Equal(t, first.CheckedInAt.Unix(), second.CheckedInAt.Unix())
	assert.Equal(t, "gate A", second.Location)
}

func TestCheckInWithGarbageTokenIsTypedOutcome(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/keys", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/registration-tokens", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	regToken := decodeBody[registrationTokenResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/scanners", "", map[string]any{
		"token":              regToken.Token,
		"name":               "front gate",
		"device_fingerprint": "device-fp-0001",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	registered := decodeBody[registerScannerResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/checkins", "", map[string]string{
		"scanner_id":         registered.ScannerID.String(),
		"device_fingerprint": "device-fp-0001",
		"token":              "not.a.credential",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rsp := decodeBody[checkInResponse](t, rec)
	assert.Equal(t, checkin.OutcomeInvalidSignature, rsp.Outcome)
}

func TestCloseAndRevokeScanner(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/keys", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/registration-tokens", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	regToken := decodeBody[registrationTokenResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/scanners", "", map[string]any{
		"token":              regToken.Token,
		"name":               "front gate",
		"device_fingerprint": "device-fp-0001",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	registered := decodeBody[registerScannerResponse](t, rec)
	scannerPath := "/scanners/" + registered.ScannerID.String()

	// Revoke requires a reason.
	rec = ts.do(t, http.MethodPost, scannerPath+"/revoke", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, scannerPath+"/close", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, scannerPath+"/revoke", token, map[string]string{"reason": "device reported stolen"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A revoked device cannot register again even with a fresh token.
	rec = ts.do(t, http.MethodPost, "/events/"+ts.eventID.String()+"/registration-tokens", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	freshToken := decodeBody[registrationTokenResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/scanners", "", map[string]any{
		"token":              freshToken.Token,
		"name":               "front gate again",
		"device_fingerprint": "device-fp-0001",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "device reported stolen")
}
