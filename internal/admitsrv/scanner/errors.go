package scanner

import (
	"net/http"

	"github.com/admitd/admitd/internal/common/apperrors"
)

var (
	ErrScannerAuthority apperrors.Error = apperrors.New("scanner authority error").SetStatusCode(http.StatusInternalServerError)

	ErrValidation    apperrors.Error = ErrScannerAuthority.New("invalid registration input").SetStatusCode(http.StatusBadRequest)
	ErrNotAuthorized apperrors.Error = ErrScannerAuthority.New("operator does not own this event").SetStatusCode(http.StatusForbidden)

	// Registration token failures carry distinguishable reasons so the
	// scanning app can tell an operator what went wrong.
	ErrTokenInvalid apperrors.Error = ErrScannerAuthority.New("registration token invalid").SetStatusCode(http.StatusUnauthorized)
	ErrTokenUnknown apperrors.Error = ErrTokenInvalid.New("registration token unknown").SetStatusCode(http.StatusUnauthorized)
	ErrTokenUsed    apperrors.Error = ErrTokenInvalid.New("registration token already used").SetStatusCode(http.StatusUnauthorized)
	ErrTokenExpired apperrors.Error = ErrTokenInvalid.New("registration token expired").SetStatusCode(http.StatusUnauthorized)

	ErrDeviceConflict apperrors.Error = ErrScannerAuthority.New("device already registered; close existing session first").SetStatusCode(http.StatusConflict)
	ErrDeviceRevoked  apperrors.Error = ErrDeviceConflict.New("device registration is revoked for this event").SetStatusCode(http.StatusConflict)

	ErrScannerNotFound apperrors.Error = ErrScannerAuthority.New("scanner not found").SetStatusCode(http.StatusNotFound)
)
