package credential

import (
	"net/http"

	"github.com/admitd/admitd/internal/common/apperrors"
)

var (
	ErrCredential apperrors.Error = apperrors.New("credential error").SetStatusCode(http.StatusInternalServerError)

	ErrMalformedCredential apperrors.Error = ErrCredential.New("malformed credential").SetStatusCode(http.StatusBadRequest)
	ErrBadSignature        apperrors.Error = ErrCredential.New("credential signature is invalid").SetStatusCode(http.StatusUnauthorized)
	ErrCredentialExpired   apperrors.Error = ErrCredential.New("credential has expired").SetStatusCode(http.StatusUnauthorized)
	ErrWrongCredentialUse  apperrors.Error = ErrCredential.New("credential issued for a different use").SetStatusCode(http.StatusUnauthorized)
	ErrIssueFailed         apperrors.Error = ErrCredential.New("credential issuance failed")
)
