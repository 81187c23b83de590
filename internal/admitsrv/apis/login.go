package apis

import (
	"net/http"
	"time"

	"github.com/admitd/admitd/internal/common/httpx"
)

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// login exchanges the operator password for a short-lived identity token.
func (a *API) login(r *http.Request) (*httpx.Response, error) {
	var req loginRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := a.validate.Struct(&req); err != nil {
		return nil, httpx.ErrInvalidRequest("password is required")
	}

	token, expiry, apperr := a.auth.Login(r.Context(), req.Password)
	if apperr != nil {
		return nil, apperr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   &loginResponse{Token: token, ExpiresAt: expiry},
	}, nil
}
