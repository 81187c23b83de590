package auth

import (
	"net/http"
	"strings"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/common/httpx"
)

// Middleware authenticates organizer-facing requests. It expects a Bearer
// identity token, validates it, and threads the operator id through the
// request context. Scanner-facing endpoints do not use this middleware; their
// authority comes from scanner credentials checked in the validation pipeline.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			httpx.SendError(w, ErrInvalidToken.Msg("missing bearer token"))
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		operator, apperr := m.ValidateIdentityToken(ctx, tokenString)
		if apperr != nil {
			httpx.SendError(w, apperr)
			return
		}

		ctx = admitcommon.WithOperator(ctx, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
