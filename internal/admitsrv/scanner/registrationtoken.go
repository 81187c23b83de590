package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// sweepGrace is how long an expired registration token is kept around before
// the cleanup sweep deletes it. Deletion is housekeeping only; an expired
// token is already inert.
const sweepGrace = 24 * time.Hour

// IssueRegistrationToken creates a one-time bootstrap code for the event. The
// operator must own the event, and the event must already have active keys so
// the scanner registered with this token can be issued a credential.
func (a *Authority) IssueRegistrationToken(ctx context.Context, operator admitcommon.OperatorID, eventID uuid.UUID, nameHint string) (*models.RegistrationToken, apperrors.Error) {
	event, apperr := a.events.GetEvent(ctx, eventID)
	if apperr != nil {
		return nil, apperr
	}
	if event.OrganizerID != string(operator) {
		return nil, ErrNotAuthorized
	}
	if _, apperr := a.keys.ActiveKeyID(ctx, eventID); apperr != nil {
		return nil, ErrValidation.Msg("event has no active key pair")
	}

	code, err := common.BootstrapCode()
	if err != nil {
		return nil, ErrScannerAuthority.Err(err)
	}

	token := &models.RegistrationToken{
		Token:           code,
		EventID:         eventID,
		ScannerNameHint: nameHint,
		ExpiresAt:       time.Now().UTC().Add(a.tokenValidity),
		CreatedBy:       string(operator),
	}
	if dberr := a.tokens.CreateRegistrationToken(ctx, token); dberr != nil {
		return nil, dberr
	}

	log.Ctx(ctx).Info().
		Str("event_id", eventID.String()).
		Time("expires_at", token.ExpiresAt).
		Msg("issued registration token")
	return token, nil
}

// resolveToken validates a registration token for consumption: it must exist,
// be unused, be unexpired, and belong to an event with active keys.
func (a *Authority) resolveToken(ctx context.Context, code string, now time.Time) (*models.RegistrationToken, apperrors.Error) {
	token, dberr := a.tokens.GetRegistrationToken(ctx, code)
	if dberr != nil {
		if errors.Is(dberr, dberror.ErrNotFound) {
			return nil, ErrTokenUnknown
		}
		return nil, dberr
	}
	if token.Used {
		return nil, ErrTokenUsed
	}
	if token.IsExpired(now) {
		return nil, ErrTokenExpired
	}
	if _, apperr := a.keys.ActiveKeyID(ctx, token.EventID); apperr != nil {
		return nil, ErrTokenInvalid.Msg("event has no active key pair")
	}
	return token, nil
}

// SweepExpiredTokens deletes registration tokens whose expiry is more than a
// day in the past. Meant to run periodically from the server.
func (a *Authority) SweepExpiredTokens(ctx context.Context) (int64, apperrors.Error) {
	cutoff := time.Now().UTC().Add(-sweepGrace)
	n, apperr := a.tokens.DeleteExpiredRegistrationTokens(ctx, cutoff)
	if apperr != nil {
		return 0, apperr
	}
	if n > 0 {
		log.Ctx(ctx).Info().Int64("deleted", n).Msg("swept expired registration tokens")
	}
	return n, nil
}
