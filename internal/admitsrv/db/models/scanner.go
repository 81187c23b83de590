package models

import (
	"time"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/common/uuid"
)

/*
   Column            |   Type      | Collation | Nullable |      Default
--------------------+-------------+-----------+----------+--------------------
 scanner_id         | uuid        |           | not null | uuid_generate_v4()
 name               | varchar     |           | not null |
 event_id           | uuid        |           | not null |
 device_fingerprint | varchar     |           | not null |
 device_info        | jsonb       |           |          |
 credential         | text        |           | not null |
 credential_expiry  | timestamptz |           | not null |
 status             | varchar     |           | not null | 'active'
 revocation_reason  | varchar     |           |          |
 created_by         | varchar     |           | not null |
 scan_count         | bigint      |           | not null | 0
 last_scan_at       | timestamptz |           |          |
 created_at         | timestamptz |           | not null | now()
 updated_at         | timestamptz |           | not null | now()
Indexes:
    "scanners_pkey" PRIMARY KEY, btree (scanner_id)
    "idx_active_scanner_per_device" UNIQUE, btree (event_id, device_fingerprint) WHERE status = 'active'
    "idx_scanners_device" btree (event_id, device_fingerprint)
*/

// Scanner is a checkpoint device bound to one event. A device may accumulate
// multiple historical records across re-registrations, but at most one Active
// record exists per (event, fingerprint) at a time.
type Scanner struct {
	ScannerID         uuid.UUID                 `db:"scanner_id"`
	Name              string                    `db:"name"`
	EventID           uuid.UUID                 `db:"event_id"`
	DeviceFingerprint string                    `db:"device_fingerprint"`
	DeviceInfo        []byte                    `db:"device_info"` // canonicalized JSON
	Credential        string                    `db:"credential"`
	CredentialExpiry  time.Time                 `db:"credential_expiry"`
	Status            admitcommon.ScannerStatus `db:"status"`
	RevocationReason  string                    `db:"revocation_reason"`
	CreatedBy         string                    `db:"created_by"`
	ScanCount         int64                     `db:"scan_count"`
	LastScanAt        *time.Time                `db:"last_scan_at"`
	CreatedAt         time.Time                 `db:"created_at"`
	UpdatedAt         time.Time                 `db:"updated_at"`
}

func (s *Scanner) Validate() error {
	if s.Name == "" {
		return dberror.ErrInvalidInput.Msg("name is required")
	}
	if s.EventID == uuid.Nil {
		return dberror.ErrInvalidInput.Msg("event_id is required")
	}
	if s.DeviceFingerprint == "" {
		return dberror.ErrInvalidInput.Msg("device_fingerprint is required")
	}
	if s.Credential == "" {
		return dberror.ErrInvalidInput.Msg("credential is required")
	}
	return nil
}

// EffectiveStatus derives the conflict-resolution status at the given instant.
// A record stored as Active whose credential expiry has passed reads as
// Expired; the stored column is never rewritten by this derivation.
func (s *Scanner) EffectiveStatus(now time.Time) admitcommon.ScannerStatus {
	if s.Status == admitcommon.ScannerStatusActive && now.After(s.CredentialExpiry) {
		return admitcommon.ScannerStatusExpired
	}
	return s.Status
}
