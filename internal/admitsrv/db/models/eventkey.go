package models

import (
	"time"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/common/uuid"
)

/*
   Column             |   Type      | Collation | Nullable |      Default
----------------------+-------------+-----------+----------+--------------------
 key_id               | uuid        |           | not null | uuid_generate_v4()
 event_id             | uuid        |           | not null |
 public_key           | bytea       |           | not null |
 private_key_enc      | text        |           | not null |
 algorithm            | varchar     |           | not null | 'RS256'
 key_size_bits        | integer     |           | not null | 2048
 status               | varchar     |           | not null | 'active'
 generated_at         | timestamptz |           | not null | now()
 created_at           | timestamptz |           | not null | now()
 updated_at           | timestamptz |           | not null | now()
Indexes:
    "event_keys_pkey" PRIMARY KEY, btree (key_id)
    "idx_active_event_key" UNIQUE, btree (event_id) WHERE status = 'active'
*/

// EventKeyPair holds an event's signing key pair. The public key is DER-encoded
// SubjectPublicKeyInfo bytes; the private key is stored only as a custody blob
// and is never persisted or transmitted in plaintext.
type EventKeyPair struct {
	KeyID               uuid.UUID             `db:"key_id"`
	EventID             uuid.UUID             `db:"event_id"`
	PublicKey           []byte                `db:"public_key"`
	PrivateKeyEncrypted string                `db:"private_key_enc"`
	Algorithm           string                `db:"algorithm"`
	KeySizeBits         int                   `db:"key_size_bits"`
	Status              admitcommon.KeyStatus `db:"status"`
	GeneratedAt         time.Time             `db:"generated_at"`
	CreatedAt           time.Time             `db:"created_at"`
	UpdatedAt           time.Time             `db:"updated_at"`
}

func (k *EventKeyPair) Validate() error {
	if k.EventID == uuid.Nil {
		return dberror.ErrInvalidInput.Msg("event_id is required")
	}
	if len(k.PublicKey) == 0 {
		return dberror.ErrInvalidInput.Msg("public_key is required")
	}
	if k.PrivateKeyEncrypted == "" {
		return dberror.ErrInvalidInput.Msg("private_key_enc is required")
	}
	return nil
}

// IsActive reports whether the key pair may be used for signing.
func (k *EventKeyPair) IsActive() bool {
	return k.Status == admitcommon.KeyStatusActive
}
