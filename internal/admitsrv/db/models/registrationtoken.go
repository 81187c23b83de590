package models

import (
	"time"

	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/common/uuid"
)

/*
   Column          |   Type      | Collation | Nullable |      Default
------------------+-------------+-----------+----------+--------------------
 token            | varchar     |           | not null |
 event_id         | uuid        |           | not null |
 scanner_name_hint| varchar     |           |          |
 expires_at       | timestamptz |           | not null |
 used             | boolean     |           | not null | false
 used_by_scanner  | uuid        |           |          |
 created_by       | varchar     |           | not null |
 created_at       | timestamptz |           | not null | now()
 updated_at       | timestamptz |           | not null | now()
Indexes:
    "registration_tokens_pkey" PRIMARY KEY, btree (token)
    "idx_registration_tokens_expiry" btree (expires_at)
*/

// RegistrationToken is a one-time bootstrap code authorizing a scanner
// registration. It carries no signing power of its own and becomes permanently
// inert once used or expired.
type RegistrationToken struct {
	Token           string    `db:"token"`
	EventID         uuid.UUID `db:"event_id"`
	ScannerNameHint string    `db:"scanner_name_hint"`
	ExpiresAt       time.Time `db:"expires_at"`
	Used            bool      `db:"used"`
	UsedByScannerID uuid.UUID `db:"used_by_scanner"` // Nil until consumed
	CreatedBy       string    `db:"created_by"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (rt *RegistrationToken) Validate() error {
	if rt.Token == "" {
		return dberror.ErrInvalidInput.Msg("token is required")
	}
	if rt.EventID == uuid.Nil {
		return dberror.ErrInvalidInput.Msg("event_id is required")
	}
	if rt.ExpiresAt.IsZero() {
		return dberror.ErrInvalidInput.Msg("expires_at is required")
	}
	return nil
}

// IsExpired reports whether the token expiry has passed at the given instant.
func (rt *RegistrationToken) IsExpired(now time.Time) bool {
	return now.After(rt.ExpiresAt)
}
