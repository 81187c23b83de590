// Package dberror defines the error taxonomy of the storage layer.
package dberror

import (
	"net/http"

	"github.com/admitd/admitd/internal/common/apperrors"
)

var (
	ErrDatabase      apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrAlreadyExists apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound      apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidInput  apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)

	// ErrStaleState is returned when a compare-and-set write finds the row in a
	// state other than the one the caller asserted (token already consumed,
	// ticket already checked in).
	ErrStaleState apperrors.Error = ErrDatabase.New("state changed concurrently").SetStatusCode(http.StatusConflict)
)
