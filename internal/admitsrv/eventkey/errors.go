package eventkey

import (
	"net/http"

	"github.com/admitd/admitd/internal/common/apperrors"
)

var (
	ErrEventKey apperrors.Error = apperrors.New("event key error").SetStatusCode(http.StatusInternalServerError)

	ErrKeyAlreadyProvisioned apperrors.Error = ErrEventKey.New("event already has an active key pair").SetStatusCode(http.StatusConflict)
	ErrKeyNotFound           apperrors.Error = ErrEventKey.New("no active key pair for event").SetStatusCode(http.StatusNotFound)
	ErrKeyGenerationFailed   apperrors.Error = ErrEventKey.New("key generation failed")
	ErrSigningFailed         apperrors.Error = ErrEventKey.New("signing failed")
	ErrSignatureInvalid      apperrors.Error = ErrEventKey.New("signature verification failed").SetStatusCode(http.StatusUnauthorized)
)
