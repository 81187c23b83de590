// Package db defines the narrow storage interfaces consumed by the trust core.
// Each aggregate is referenced by opaque id and resolved through one of these
// interfaces; entities never hold live references to each other. The core
// components receive the interfaces at construction and stay independent of
// any concrete persistence choice.
package db

import (
	"context"
	"time"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// EventLookup resolves events. The trust core only reads events; catalog CRUD
// belongs to a different service.
type EventLookup interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, apperrors.Error)
}

// EventKeyStore persists per-event key pairs. At most one Active pair exists
// per event; the store enforces this.
type EventKeyStore interface {
	CreateEventKeyPair(ctx context.Context, key *models.EventKeyPair) apperrors.Error
	GetActiveEventKeyPair(ctx context.Context, eventID uuid.UUID) (*models.EventKeyPair, apperrors.Error)
}

// RegistrationTokenStore persists scanner bootstrap tokens. Consume is a
// compare-and-set: it succeeds for exactly one caller per token, even under
// concurrent attempts.
type RegistrationTokenStore interface {
	CreateRegistrationToken(ctx context.Context, token *models.RegistrationToken) apperrors.Error
	GetRegistrationToken(ctx context.Context, token string) (*models.RegistrationToken, apperrors.Error)
	ConsumeRegistrationToken(ctx context.Context, token string, scannerID uuid.UUID) apperrors.Error
	DeleteExpiredRegistrationTokens(ctx context.Context, olderThan time.Time) (int64, apperrors.Error)
}

// ScannerStore persists checkpoint devices. CreateScanner fails with
// dberror.ErrAlreadyExists when another Active scanner holds the same
// (event, fingerprint) pair; a partial unique index (or equivalent) backs this.
type ScannerStore interface {
	CreateScanner(ctx context.Context, scanner *models.Scanner) apperrors.Error
	GetScanner(ctx context.Context, scannerID uuid.UUID) (*models.Scanner, apperrors.Error)
	ListScannersByDevice(ctx context.Context, eventID uuid.UUID, fingerprint string) ([]*models.Scanner, apperrors.Error)
	UpdateScannerStatus(ctx context.Context, scannerID uuid.UUID, status admitcommon.ScannerStatus, reason string) apperrors.Error
	RecordScan(ctx context.Context, scannerID uuid.UUID, at time.Time) apperrors.Error
}

// TicketStore resolves ticket instances and owns the exactly-once check-in
// write. CommitCheckIn returns committed=false with the pre-existing record
// when the (ticket, day) pair was already checked in; it never resets a
// committed check-in.
type TicketStore interface {
	GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, apperrors.Error)
	GetCheckIn(ctx context.Context, ticketID uuid.UUID, eventDay string) (*models.CheckInRecord, apperrors.Error)
	CommitCheckIn(ctx context.Context, ticketID uuid.UUID, eventDay string, by string, location string, at time.Time) (bool, *models.CheckInRecord, apperrors.Error)
}

// SigningKeyStore persists the service-level identity signing key.
type SigningKeyStore interface {
	CreateSigningKey(ctx context.Context, key *models.SigningKey) apperrors.Error
	GetActiveSigningKey(ctx context.Context) (*models.SigningKey, apperrors.Error)
}

// Store aggregates every storage interface. Concrete implementations live in
// the postgresql and memstore packages.
type Store interface {
	EventLookup
	EventKeyStore
	RegistrationTokenStore
	ScannerStore
	TicketStore
	SigningKeyStore
}
