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

// CreateSigningKey inserts a new service signing key. When the key is active,
// any previously active key is deactivated in the same transaction.
func (s *Store) CreateSigningKey(ctx context.Context, key *models.SigningKey) apperrors.Error {
	if key.KeyID == uuid.Nil {
		key.KeyID = uuid.New()
	}

	return s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		tx, errdb := conn.BeginTx(ctx, &sql.TxOptions{})
		if errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
			return dberror.ErrDatabase.Err(errdb)
		}

		var txErr error
		defer func() {
			if txErr != nil {
				if rollbackErr := tx.Rollback(); rollbackErr != nil {
					log.Ctx(ctx).Error().Err(rollbackErr).Msg("failed to rollback transaction")
				}
			}
		}()

		if key.IsActive {
			_, txErr = tx.ExecContext(ctx, `
				UPDATE signing_keys
				SET is_active = false, updated_at = NOW()
				WHERE is_active = true`)
			if txErr != nil {
				log.Ctx(ctx).Error().Err(txErr).Msg("failed to deactivate existing keys")
				return dberror.ErrDatabase.Err(txErr)
			}
		}

		query := `
			INSERT INTO signing_keys (key_id, public_key, private_key, is_active)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at`

		row := tx.QueryRowContext(ctx, query, key.KeyID, key.PublicKey, key.PrivateKey, key.IsActive)
		txErr = row.Scan(&key.CreatedAt, &key.UpdatedAt)
		if txErr != nil {
			log.Ctx(ctx).Error().Err(txErr).Msg("failed to create signing key")
			return dberror.ErrDatabase.Err(txErr)
		}

		if txErr = tx.Commit(); txErr != nil {
			log.Ctx(ctx).Error().Err(txErr).Msg("failed to commit transaction")
			return dberror.ErrDatabase.Err(txErr)
		}
		return nil
	})
}

// GetActiveSigningKey retrieves the active service signing key.
func (s *Store) GetActiveSigningKey(ctx context.Context) (*models.SigningKey, apperrors.Error) {
	query := `
		SELECT key_id, public_key, private_key, is_active, created_at, updated_at
		FROM signing_keys
		WHERE is_active = true`

	var key models.SigningKey
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		row := conn.QueryRowContext(ctx, query)
		errdb := row.Scan(&key.KeyID, &key.PublicKey, &key.PrivateKey, &key.IsActive, &key.CreatedAt, &key.UpdatedAt)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("no active signing key")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to get active signing key")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
	if apperr != nil {
		return nil, apperr
	}
	return &key, nil
}
