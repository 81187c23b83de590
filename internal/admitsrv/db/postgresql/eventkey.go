package postgresql

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// CreateEventKeyPair inserts a new event key pair. The partial unique index on
// (event_id) WHERE status = 'active' rejects a second active pair.
func (s *Store) CreateEventKeyPair(ctx context.Context, key *models.EventKeyPair) apperrors.Error {
	if err := key.Validate(); err != nil {
		return dberror.ErrInvalidInput.Err(err)
	}
	if key.KeyID == uuid.Nil {
		key.KeyID = uuid.New()
	}

	query := `
		INSERT INTO event_keys (key_id, event_id, public_key, private_key_enc, algorithm, key_size_bits, status, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		row := conn.QueryRowContext(ctx, query,
			key.KeyID, key.EventID, key.PublicKey, key.PrivateKeyEncrypted,
			key.Algorithm, key.KeySizeBits, key.Status, key.GeneratedAt)
		errdb := row.Scan(&key.CreatedAt, &key.UpdatedAt)
		if errdb != nil {
			if isUniqueViolation(errdb, "idx_active_event_key") {
				return dberror.ErrAlreadyExists.Msg("active key pair already exists for event")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to create event key pair")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
}

// GetActiveEventKeyPair retrieves the active key pair for an event.
func (s *Store) GetActiveEventKeyPair(ctx context.Context, eventID uuid.UUID) (*models.EventKeyPair, apperrors.Error) {
	query := `
		SELECT key_id, event_id, public_key, private_key_enc, algorithm, key_size_bits, status, generated_at, created_at, updated_at
		FROM event_keys
		WHERE event_id = $1 AND status = 'active'`

	var key models.EventKeyPair
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		row := conn.QueryRowContext(ctx, query, eventID)
		errdb := row.Scan(&key.KeyID, &key.EventID, &key.PublicKey, &key.PrivateKeyEncrypted,
			&key.Algorithm, &key.KeySizeBits, &key.Status, &key.GeneratedAt, &key.CreatedAt, &key.UpdatedAt)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("no active key pair for event")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to get active event key pair")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
	if apperr != nil {
		return nil, apperr
	}
	return &key, nil
}
