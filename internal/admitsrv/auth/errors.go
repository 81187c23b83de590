package auth

import (
	"net/http"

	"github.com/admitd/admitd/internal/common/apperrors"
)

var (
	ErrAuth apperrors.Error = apperrors.New("authentication error").SetStatusCode(http.StatusUnauthorized)

	ErrLoginNotSupported apperrors.Error = ErrAuth.New("login failed").SetStatusCode(http.StatusUnauthorized)
	ErrTokenGeneration   apperrors.Error = ErrAuth.New("unable to generate token").SetStatusCode(http.StatusInternalServerError)
	ErrInvalidToken      apperrors.Error = ErrAuth.New("invalid identity token").SetStatusCode(http.StatusUnauthorized)
	ErrExpiredToken      apperrors.Error = ErrInvalidToken.New("identity token expired").SetStatusCode(http.StatusUnauthorized)
)
