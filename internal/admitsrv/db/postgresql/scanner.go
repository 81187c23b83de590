package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

const scannerColumns = `scanner_id, name, event_id, device_fingerprint, device_info, credential,
	credential_expiry, status, revocation_reason, created_by, scan_count, last_scan_at, created_at, updated_at`

func scanScanner(row interface{ Scan(...any) error }, scanner *models.Scanner) error {
	var deviceInfo pgtype.JSONB
	var revocationReason pgtype.Text
	var lastScanAt pgtype.Timestamptz
	err := row.Scan(&scanner.ScannerID, &scanner.Name, &scanner.EventID, &scanner.DeviceFingerprint,
		&deviceInfo, &scanner.Credential, &scanner.CredentialExpiry, &scanner.Status,
		&revocationReason, &scanner.CreatedBy, &scanner.ScanCount, &lastScanAt,
		&scanner.CreatedAt, &scanner.UpdatedAt)
	if err != nil {
		return err
	}
	if deviceInfo.Status == pgtype.Present {
		scanner.DeviceInfo = deviceInfo.Bytes
	}
	if revocationReason.Status == pgtype.Present {
		scanner.RevocationReason = revocationReason.String
	}
	if lastScanAt.Status == pgtype.Present {
		t := lastScanAt.Time
		scanner.LastScanAt = &t
	}
	return nil
}

// CreateScanner inserts a new scanner record. The partial unique index on
// (event_id, device_fingerprint) WHERE status = 'active' rejects a second
// active record for the same device.
func (s *Store) CreateScanner(ctx context.Context, scanner *models.Scanner) apperrors.Error {
	if err := scanner.Validate(); err != nil {
		return dberror.ErrInvalidInput.Err(err)
	}
	if scanner.ScannerID == uuid.Nil {
		scanner.ScannerID = uuid.New()
	}

	query := `
		INSERT INTO scanners (scanner_id, name, event_id, device_fingerprint, device_info, credential, credential_expiry, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	return s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		var deviceInfo any
		if len(scanner.DeviceInfo) > 0 {
			deviceInfo = scanner.DeviceInfo
		}
		row := conn.QueryRowContext(ctx, query,
			scanner.ScannerID, scanner.Name, scanner.EventID, scanner.DeviceFingerprint,
			deviceInfo, scanner.Credential, scanner.CredentialExpiry, scanner.Status, scanner.CreatedBy)
		errdb := row.Scan(&scanner.CreatedAt, &scanner.UpdatedAt)
		if errdb != nil {
			if isUniqueViolation(errdb, "idx_active_scanner_per_device") {
				return dberror.ErrAlreadyExists.Msg("active scanner already exists for device")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to create scanner")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
}

// GetScanner retrieves a scanner by its ID.
func (s *Store) GetScanner(ctx context.Context, scannerID uuid.UUID) (*models.Scanner, apperrors.Error) {
	query := `
		SELECT ` + scannerColumns + `
		FROM scanners
		WHERE scanner_id = $1`

	var scanner models.Scanner
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		row := conn.QueryRowContext(ctx, query, scannerID)
		errdb := scanScanner(row, &scanner)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("scanner not found")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to get scanner")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
	if apperr != nil {
		return nil, apperr
	}
	return &scanner, nil
}

// ListScannersByDevice retrieves every scanner record for a device within an
// event, newest first.
func (s *Store) ListScannersByDevice(ctx context.Context, eventID uuid.UUID, fingerprint string) ([]*models.Scanner, apperrors.Error) {
	query := `
		SELECT ` + scannerColumns + `
		FROM scanners
		WHERE event_id = $1 AND device_fingerprint = $2
		ORDER BY created_at DESC`

	var out []*models.Scanner
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		rows, errdb := conn.QueryContext(ctx, query, eventID, fingerprint)
		if errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to list scanners")
			return dberror.ErrDatabase.Err(errdb)
		}
		defer rows.Close()
		for rows.Next() {
			var scanner models.Scanner
			if errdb := scanScanner(rows, &scanner); errdb != nil {
				log.Ctx(ctx).Error().Err(errdb).Msg("failed to scan scanner row")
				return dberror.ErrDatabase.Err(errdb)
			}
			out = append(out, &scanner)
		}
		if errdb := rows.Err(); errdb != nil {
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
	if apperr != nil {
		return nil, apperr
	}
	return out, nil
}

// UpdateScannerStatus transitions a scanner to a stored lifecycle status.
// Expired is derived from credential expiry and is never written.
func (s *Store) UpdateScannerStatus(ctx context.Context, scannerID uuid.UUID, status admitcommon.ScannerStatus, reason string) apperrors.Error {
	if status == admitcommon.ScannerStatusExpired {
		return dberror.ErrInvalidInput.Msg("expired is a derived status and is never stored")
	}

	query := `
		UPDATE scanners
		SET status = $2, revocation_reason = NULLIF($3, ''), updated_at = NOW()
		WHERE scanner_id = $1
		RETURNING scanner_id`

	return s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		var returned uuid.UUID
		row := conn.QueryRowContext(ctx, query, scannerID, status, reason)
		errdb := row.Scan(&returned)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("scanner not found")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to update scanner status")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
}

// RecordScan bumps the scan counter and last-scan timestamp for a scanner.
func (s *Store) RecordScan(ctx context.Context, scannerID uuid.UUID, at time.Time) apperrors.Error {
	query := `
		UPDATE scanners
		SET scan_count = scan_count + 1, last_scan_at = $2, updated_at = NOW()
		WHERE scanner_id = $1
		RETURNING scanner_id`

	return s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		var returned uuid.UUID
		row := conn.QueryRowContext(ctx, query, scannerID, at)
		errdb := row.Scan(&returned)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("scanner not found")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to record scan")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
}
