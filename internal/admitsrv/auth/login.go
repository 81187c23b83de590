// Package auth authenticates organizers. The service runs in single-operator
// mode: one configured operator owns every event, logs in with a password, and
// receives a short-lived EdDSA identity token for subsequent management calls.
package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/auth/keymanager"
	"github.com/admitd/admitd/internal/admitsrv/config"
	"github.com/admitd/admitd/internal/common/apperrors"
)

// Manager authenticates operators and issues identity tokens.
type Manager struct {
	keys keymanager.KeyManager
}

func NewManager(keys keymanager.KeyManager) *Manager {
	return &Manager{keys: keys}
}

// Login verifies the operator password and returns a fresh identity token.
// The first successful login onboards the operator by storing the bcrypt hash
// of the presented password.
func (m *Manager) Login(ctx context.Context, password string) (string, time.Time, apperrors.Error) {
	if !config.Config().Auth.SingleOperatorMode {
		return "", time.Time{}, ErrLoginNotSupported.Msg("login is only supported in single operator mode")
	}
	if password == "" {
		return "", time.Time{}, ErrLoginNotSupported.Msg("password is required")
	}

	hash := config.Config().Auth.OperatorPasswordHash
	if hash == "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", time.Time{}, ErrLoginNotSupported.Err(err)
		}
		config.SetOperatorPasswordHash(string(hashed))
		hash = string(hashed)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", time.Time{}, ErrLoginNotSupported.Msg("invalid password")
	}

	operator := admitcommon.OperatorID(config.Config().Auth.DefaultOperatorID)
	return m.CreateIdentityToken(ctx, operator)
}
