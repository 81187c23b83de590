// Package memstore is an in-memory implementation of the db.Store interfaces.
// It backs unit tests and single-node evaluation runs; the compare-and-set
// semantics match the postgresql implementation.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

type checkInKey struct {
	ticketID uuid.UUID
	eventDay string
}

// Store holds all aggregates in mutex-guarded maps.
type Store struct {
	mu          sync.Mutex
	events      map[uuid.UUID]*models.Event
	eventKeys   map[uuid.UUID]*models.EventKeyPair
	regTokens   map[string]*models.RegistrationToken
	scanners    map[uuid.UUID]*models.Scanner
	tickets     map[uuid.UUID]*models.Ticket
	checkIns    map[checkInKey]*models.CheckInRecord
	signingKeys map[uuid.UUID]*models.SigningKey
}

func New() *Store {
	return &Store{
		events:      make(map[uuid.UUID]*models.Event),
		eventKeys:   make(map[uuid.UUID]*models.EventKeyPair),
		regTokens:   make(map[string]*models.RegistrationToken),
		scanners:    make(map[uuid.UUID]*models.Scanner),
		tickets:     make(map[uuid.UUID]*models.Ticket),
		checkIns:    make(map[checkInKey]*models.CheckInRecord),
		signingKeys: make(map[uuid.UUID]*models.SigningKey),
	}
}

// PutEvent loads an event fixture. The trust core reads events but never
// creates them, so fixture loading bypasses the db.Store surface.
func (s *Store) PutEvent(event *models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events[event.EventID] = &cp
}

// PutTicket loads a ticket fixture.
func (s *Store) PutTicket(ticket *models.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ticket
	s.tickets[ticket.TicketID] = &cp
}

func (s *Store) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return nil, dberror.ErrNotFound.Msg("event not found")
	}
	cp := *event
	return &cp, nil
}

func (s *Store) CreateEventKeyPair(ctx context.Context, key *models.EventKeyPair) apperrors.Error {
	if err := key.Validate(); err != nil {
		return dberror.ErrInvalidInput.Err(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.Status == admitcommon.KeyStatusActive {
		for _, existing := range s.eventKeys {
			if existing.EventID == key.EventID && existing.Status == admitcommon.KeyStatusActive {
				return dberror.ErrAlreadyExists.Msg("active key pair already exists for event")
			}
		}
	}
	now := time.Now().UTC()
	cp := *key
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.eventKeys[key.KeyID] = &cp
	key.CreatedAt = now
	key.UpdatedAt = now
	return nil
}

func (s *Store) GetActiveEventKeyPair(ctx context.Context, eventID uuid.UUID) (*models.EventKeyPair, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.eventKeys {
		if key.EventID == eventID && key.Status == admitcommon.KeyStatusActive {
			cp := *key
			return &cp, nil
		}
	}
	return nil, dberror.ErrNotFound.Msg("no active key pair for event")
}

func (s *Store) CreateRegistrationToken(ctx context.Context, token *models.RegistrationToken) apperrors.Error {
	if err := token.Validate(); err != nil {
		return dberror.ErrInvalidInput.Err(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regTokens[token.Token]; ok {
		return dberror.ErrAlreadyExists.Msg("registration token already exists")
	}
	now := time.Now().UTC()
	cp := *token
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.regTokens[token.Token] = &cp
	token.CreatedAt = now
	token.UpdatedAt = now
	return nil
}

func (s *Store) GetRegistrationToken(ctx context.Context, token string) (*models.RegistrationToken, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.regTokens[token]
	if !ok {
		return nil, dberror.ErrNotFound.Msg("registration token not found")
	}
	cp := *rt
	return &cp, nil
}

// ConsumeRegistrationToken marks the token used by the given scanner. The
// check-and-mark runs under the store lock, so exactly one concurrent caller
// wins; losers get ErrStaleState.
func (s *Store) ConsumeRegistrationToken(ctx context.Context, token string, scannerID uuid.UUID) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.regTokens[token]
	if !ok {
		return dberror.ErrNotFound.Msg("registration token not found")
	}
	if rt.Used {
		return dberror.ErrStaleState.Msg("registration token already used")
	}
	rt.Used = true
	rt.UsedByScannerID = scannerID
	rt.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteExpiredRegistrationTokens(ctx context.Context, olderThan time.Time) (int64, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, rt := range s.regTokens {
		if rt.ExpiresAt.Before(olderThan) {
			delete(s.regTokens, token)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateScanner(ctx context.Context, scanner *models.Scanner) apperrors.Error {
	if err := scanner.Validate(); err != nil {
		return dberror.ErrInvalidInput.Err(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if scanner.Status == admitcommon.ScannerStatusActive {
		for _, existing := range s.scanners {
			if existing.EventID == scanner.EventID &&
				existing.DeviceFingerprint == scanner.DeviceFingerprint &&
				existing.Status == admitcommon.ScannerStatusActive {
				return dberror.ErrAlreadyExists.Msg("active scanner already exists for device")
			}
		}
	}
	now := time.Now().UTC()
	cp := *scanner
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.scanners[scanner.ScannerID] = &cp
	scanner.CreatedAt = now
	scanner.UpdatedAt = now
	return nil
}

func (s *Store) GetScanner(ctx context.Context, scannerID uuid.UUID) (*models.Scanner, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scanner, ok := s.scanners[scannerID]
	if !ok {
		return nil, dberror.ErrNotFound.Msg("scanner not found")
	}
	cp := *scanner
	return &cp, nil
}

func (s *Store) ListScannersByDevice(ctx context.Context, eventID uuid.UUID, fingerprint string) ([]*models.Scanner, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Scanner
	for _, scanner := range s.scanners {
		if scanner.EventID == eventID && scanner.DeviceFingerprint == fingerprint {
			cp := *scanner
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateScannerStatus(ctx context.Context, scannerID uuid.UUID, status admitcommon.ScannerStatus, reason string) apperrors.Error {
	if status == admitcommon.ScannerStatusExpired {
		return dberror.ErrInvalidInput.Msg("expired is a derived status and is never stored")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scanner, ok := s.scanners[scannerID]
	if !ok {
		return dberror.ErrNotFound.Msg("scanner not found")
	}
	scanner.Status = status
	scanner.RevocationReason = reason
	scanner.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) RecordScan(ctx context.Context, scannerID uuid.UUID, at time.Time) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scanner, ok := s.scanners[scannerID]
	if !ok {
		return dberror.ErrNotFound.Msg("scanner not found")
	}
	scanner.ScanCount++
	t := at
	scanner.LastScanAt = &t
	scanner.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, dberror.ErrNotFound.Msg("ticket not found")
	}
	cp := *ticket
	return &cp, nil
}

func (s *Store) GetCheckIn(ctx context.Context, ticketID uuid.UUID, eventDay string) (*models.CheckInRecord, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.checkIns[checkInKey{ticketID, eventDay}]
	if !ok {
		return nil, dberror.ErrNotFound.Msg("check-in record not found")
	}
	cp := *record
	return &cp, nil
}

// CommitCheckIn performs the exactly-once check-in write. The first caller for
// a (ticket, day) pair commits and gets committed=true; every later caller
// gets committed=false with the record the winner wrote.
func (s *Store) CommitCheckIn(ctx context.Context, ticketID uuid.UUID, eventDay string, by string, location string, at time.Time) (bool, *models.CheckInRecord, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := checkInKey{ticketID, eventDay}
	if existing, ok := s.checkIns[key]; ok && existing.CheckedIn {
		cp := *existing
		return false, &cp, nil
	}
	now := time.Now().UTC()
	t := at
	record := &models.CheckInRecord{
		TicketID:        ticketID,
		EventDay:        eventDay,
		CheckedIn:       true,
		CheckedInAt:     &t,
		CheckedInBy:     by,
		CheckInLocation: location,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.checkIns[key] = record
	cp := *record
	return true, &cp, nil
}

func (s *Store) CreateSigningKey(ctx context.Context, key *models.SigningKey) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.IsActive {
		for _, existing := range s.signingKeys {
			if existing.IsActive {
				return dberror.ErrAlreadyExists.Msg("active signing key already exists")
			}
		}
	}
	now := time.Now().UTC()
	cp := *key
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.signingKeys[key.KeyID] = &cp
	key.CreatedAt = now
	key.UpdatedAt = now
	return nil
}

func (s *Store) GetActiveSigningKey(ctx context.Context) (*models.SigningKey, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.signingKeys {
		if key.IsActive {
			cp := *key
			return &cp, nil
		}
	}
	return nil, dberror.ErrNotFound.Msg("no active signing key")
}
