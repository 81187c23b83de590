// Package scanner manages the lifecycle of checkpoint devices: bootstrap
// token issuance, registration with duplicate-device resolution, closure, and
// revocation. A device is identified by a client-supplied fingerprint; at most
// one Active scanner exists per (event, fingerprint) pair.
package scanner

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/anand-gl/jsoncanonicalizer"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/credential"
	"github.com/admitd/admitd/internal/admitsrv/db"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/eventkey"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// Authority owns the scanner lifecycle.
type Authority struct {
	events             db.EventLookup
	tokens             db.RegistrationTokenStore
	scanners           db.ScannerStore
	keys               *eventkey.Manager
	creds              *credential.Service
	tokenValidity      time.Duration
	credentialValidity time.Duration
	validate           *validator.Validate
}

var fingerprintRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9:._-]*$`)

func NewAuthority(events db.EventLookup, tokens db.RegistrationTokenStore, scanners db.ScannerStore,
	keys *eventkey.Manager, creds *credential.Service,
	tokenValidity, credentialValidity time.Duration) *Authority {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("fingerprint", func(fl validator.FieldLevel) bool {
		return fingerprintRegex.MatchString(fl.Field().String())
	})
	return &Authority{
		events:             events,
		tokens:             tokens,
		scanners:           scanners,
		keys:               keys,
		creds:              creds,
		tokenValidity:      tokenValidity,
		credentialValidity: credentialValidity,
		validate:           v,
	}
}

// RegisterRequest is the device-initiated registration input.
type RegisterRequest struct {
	Token             string `validate:"required"`
	Name              string `validate:"required,min=1,max=64"`
	DeviceFingerprint string `validate:"required,min=8,max=128,fingerprint"`
	DeviceInfo        []byte `validate:"omitempty"`
}

// RegisterResult carries the new scanner record and its signed credential.
type RegisterResult struct {
	Scanner    *models.Scanner
	Credential string
}

// Register binds a device to an event through a one-time registration token.
//
// The flow: validate input, resolve the token, resolve duplicate-device state,
// mint and persist the new Active scanner, consume the token. The at-most-one-
// Active invariant is arbitrated by the store's conditional insert, and token
// consumption is a compare-and-set, so two concurrent attempts against the
// same token or the same fresh fingerprint cannot both succeed.
func (a *Authority) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, apperrors.Error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, ErrValidation.Err(err)
	}
	now := time.Now().UTC()

	token, apperr := a.resolveToken(ctx, req.Token, now)
	if apperr != nil {
		return nil, apperr
	}

	if apperr := a.resolveDeviceConflict(ctx, token.EventID, req.DeviceFingerprint, now); apperr != nil {
		return nil, apperr
	}

	scannerID := uuid.New()
	expiry := now.Add(a.credentialValidity)
	cred, apperr := a.creds.IssueScannerCredential(ctx, scannerID, token.EventID, req.Name, expiry)
	if apperr != nil {
		return nil, apperr
	}

	var deviceInfo []byte
	if len(req.DeviceInfo) > 0 {
		canonical, err := jsoncanonicalizer.Transform(req.DeviceInfo)
		if err != nil {
			return nil, ErrValidation.Msg("device_info is not valid JSON")
		}
		deviceInfo = canonical
	}

	record := &models.Scanner{
		ScannerID:         scannerID,
		Name:              req.Name,
		EventID:           token.EventID,
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceInfo:        deviceInfo,
		Credential:        cred,
		CredentialExpiry:  expiry,
		Status:            admitcommon.ScannerStatusActive,
		CreatedBy:         token.CreatedBy,
	}
	if dberr := a.scanners.CreateScanner(ctx, record); dberr != nil {
		if errors.Is(dberr, dberror.ErrAlreadyExists) {
			return nil, ErrDeviceConflict
		}
		return nil, dberr
	}

	if dberr := a.tokens.ConsumeRegistrationToken(ctx, token.Token, scannerID); dberr != nil {
		// Lost the token race after persisting the scanner; undo the
		// registration so the device slot is not held by a half-made record.
		if closeErr := a.scanners.UpdateScannerStatus(ctx, scannerID, admitcommon.ScannerStatusClosed, ""); closeErr != nil {
			log.Ctx(ctx).Error().Err(closeErr).Str("scanner_id", scannerID.String()).
				Msg("failed to close scanner after token consumption race")
		}
		if errors.Is(dberr, dberror.ErrStaleState) {
			return nil, ErrTokenUsed
		}
		return nil, dberr
	}

	log.Ctx(ctx).Info().
		Str("scanner_id", scannerID.String()).
		Str("event_id", token.EventID.String()).
		Str("device_fingerprint", req.DeviceFingerprint).
		Msg("registered scanner")
	return &RegisterResult{Scanner: record, Credential: cred}, nil
}

// resolveDeviceConflict applies the duplicate-device matrix to the history of
// scanner records for (event, fingerprint):
//
//	none             -> proceed
//	Active           -> conflict, the caller must close the existing session
//	Revoked          -> permanent conflict, surfaced with the stored reason
//	Closed / Expired -> proceed, old records stay as history
func (a *Authority) resolveDeviceConflict(ctx context.Context, eventID uuid.UUID, fingerprint string, now time.Time) apperrors.Error {
	existing, dberr := a.scanners.ListScannersByDevice(ctx, eventID, fingerprint)
	if dberr != nil {
		return dberr
	}
	var revoked *models.Scanner
	for _, s := range existing {
		switch s.EffectiveStatus(now) {
		case admitcommon.ScannerStatusActive:
			return ErrDeviceConflict
		case admitcommon.ScannerStatusRevoked:
			if revoked == nil {
				revoked = s
			}
		case admitcommon.ScannerStatusExpired:
			// Stored as Active with a lapsed credential. Close it so the
			// device slot is free; the record stays as history.
			if s.Status == admitcommon.ScannerStatusActive {
				if dberr := a.scanners.UpdateScannerStatus(ctx, s.ScannerID, admitcommon.ScannerStatusClosed, ""); dberr != nil {
					return dberr
				}
			}
		}
	}
	if revoked != nil {
		if revoked.RevocationReason != "" {
			return ErrDeviceRevoked.Msg("device registration is revoked for this event: " + revoked.RevocationReason)
		}
		return ErrDeviceRevoked
	}
	return nil
}

// Get returns a scanner record by id.
func (a *Authority) Get(ctx context.Context, scannerID uuid.UUID) (*models.Scanner, apperrors.Error) {
	record, dberr := a.scanners.GetScanner(ctx, scannerID)
	if dberr != nil {
		if errors.Is(dberr, dberror.ErrNotFound) {
			return nil, ErrScannerNotFound
		}
		return nil, dberr
	}
	return record, nil
}

// Close transitions a scanner to Closed. Closure is reversible: the device may
// re-register later. Organizer-only.
func (a *Authority) Close(ctx context.Context, operator admitcommon.OperatorID, scannerID uuid.UUID) apperrors.Error {
	record, apperr := a.authorizedScanner(ctx, operator, scannerID)
	if apperr != nil {
		return apperr
	}
	if record.Status == admitcommon.ScannerStatusRevoked {
		return ErrValidation.Msg("scanner is revoked; revocation is permanent")
	}
	if dberr := a.scanners.UpdateScannerStatus(ctx, scannerID, admitcommon.ScannerStatusClosed, ""); dberr != nil {
		return dberr
	}
	log.Ctx(ctx).Info().Str("scanner_id", scannerID.String()).Msg("closed scanner")
	return nil
}

// Revoke permanently bans the scanner's device for its event. The reason is
// stored and surfaced on any future registration attempt by the same device.
// Organizer-only.
func (a *Authority) Revoke(ctx context.Context, operator admitcommon.OperatorID, scannerID uuid.UUID, reason string) apperrors.Error {
	if reason == "" {
		return ErrValidation.Msg("revocation reason is required")
	}
	if _, apperr := a.authorizedScanner(ctx, operator, scannerID); apperr != nil {
		return apperr
	}
	if dberr := a.scanners.UpdateScannerStatus(ctx, scannerID, admitcommon.ScannerStatusRevoked, reason); dberr != nil {
		return dberr
	}
	log.Ctx(ctx).Info().Str("scanner_id", scannerID.String()).Str("reason", reason).Msg("revoked scanner")
	return nil
}

// authorizedScanner loads a scanner and checks that the operator owns the
// scanner's event.
func (a *Authority) authorizedScanner(ctx context.Context, operator admitcommon.OperatorID, scannerID uuid.UUID) (*models.Scanner, apperrors.Error) {
	record, apperr := a.Get(ctx, scannerID)
	if apperr != nil {
		return nil, apperr
	}
	event, dberr := a.events.GetEvent(ctx, record.EventID)
	if dberr != nil {
		return nil, dberr
	}
	if event.OrganizerID != string(operator) {
		return nil, ErrNotAuthorized
	}
	return record, nil
}
