package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// CreateRegistrationToken inserts a new bootstrap token.
func (s *Store) CreateRegistrationToken(ctx context.Context, token *models.RegistrationToken) apperrors.Error {
	if err := token.Validate(); err != nil {
		return dberror.ErrInvalidInput.Err(err)
	}

	query := `
		INSERT INTO registration_tokens (token, event_id, scanner_name_hint, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	return s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		row := conn.QueryRowContext(ctx, query,
			token.Token, token.EventID, token.ScannerNameHint, token.ExpiresAt, token.CreatedBy)
		errdb := row.Scan(&token.CreatedAt, &token.UpdatedAt)
		if errdb != nil {
			if isUniqueViolation(errdb, "") {
				return dberror.ErrAlreadyExists.Msg("registration token already exists")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to create registration token")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
}

// GetRegistrationToken retrieves a token by its code.
func (s *Store) GetRegistrationToken(ctx context.Context, token string) (*models.RegistrationToken, apperrors.Error) {
	query := `
		SELECT token, event_id, scanner_name_hint, expires_at, used, used_by_scanner, created_by, created_at, updated_at
		FROM registration_tokens
		WHERE token = $1`

	var rt models.RegistrationToken
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		var usedBy pgtype.UUID
		row := conn.QueryRowContext(ctx, query, token)
		errdb := row.Scan(&rt.Token, &rt.EventID, &rt.ScannerNameHint, &rt.ExpiresAt,
			&rt.Used, &usedBy, &rt.CreatedBy, &rt.CreatedAt, &rt.UpdatedAt)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("registration token not found")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to get registration token")
			return dberror.ErrDatabase.Err(errdb)
		}
		if usedBy.Status == pgtype.Present {
			rt.UsedByScannerID = uuid.UUID(usedBy.Bytes)
		}
		return nil
	})
	if apperr != nil {
		return nil, apperr
	}
	return &rt, nil
}

// ConsumeRegistrationToken marks a token used by the given scanner. The WHERE
// clause asserts used = false, so exactly one concurrent caller updates the
// row; every other caller sees zero rows and gets ErrStaleState.
func (s *Store) ConsumeRegistrationToken(ctx context.Context, token string, scannerID uuid.UUID) apperrors.Error {
	query := `
		UPDATE registration_tokens
		SET used = true, used_by_scanner = $2, updated_at = NOW()
		WHERE token = $1 AND used = false
		RETURNING token`

	return s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		var returned string
		row := conn.QueryRowContext(ctx, query, token, scannerID)
		errdb := row.Scan(&returned)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				var exists bool
				if checkErr := conn.QueryRowContext(ctx,
					`SELECT EXISTS (SELECT 1 FROM registration_tokens WHERE token = $1)`, token).Scan(&exists); checkErr != nil {
					log.Ctx(ctx).Error().Err(checkErr).Msg("failed to check registration token")
					return dberror.ErrDatabase.Err(checkErr)
				}
				if !exists {
					return dberror.ErrNotFound.Msg("registration token not found")
				}
				return dberror.ErrStaleState.Msg("registration token already used")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to consume registration token")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
}

// DeleteExpiredRegistrationTokens removes tokens whose expiry precedes the
// given cutoff and returns the number removed.
func (s *Store) DeleteExpiredRegistrationTokens(ctx context.Context, olderThan time.Time) (int64, apperrors.Error) {
	query := `
		DELETE FROM registration_tokens
		WHERE expires_at < $1`

	var n int64
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		res, errdb := conn.ExecContext(ctx, query, olderThan)
		if errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to delete expired registration tokens")
			return dberror.ErrDatabase.Err(errdb)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if apperr != nil {
		return 0, apperr
	}
	return n, nil
}
