// Package apis exposes the admission service HTTP surface: organizer
// management endpoints behind identity-token auth, and device-facing
// registration and check-in endpoints whose authority comes from signed
// credentials rather than sessions.
package apis

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/auth"
	"github.com/admitd/admitd/internal/admitsrv/checkin"
	"github.com/admitd/admitd/internal/admitsrv/credential"
	"github.com/admitd/admitd/internal/admitsrv/db"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/eventkey"
	"github.com/admitd/admitd/internal/admitsrv/scanner"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/httpx"
	"github.com/admitd/admitd/internal/common/uuid"
)

// API binds the HTTP handlers to the admission services.
type API struct {
	auth     *auth.Manager
	keys     *eventkey.Manager
	creds    *credential.Service
	scanners *scanner.Authority
	engine   *checkin.Engine
	store    db.Store
	validate *validator.Validate
}

func New(authMgr *auth.Manager, keys *eventkey.Manager, creds *credential.Service,
	scanners *scanner.Authority, engine *checkin.Engine, store db.Store) *API {
	return &API{
		auth:     authMgr,
		keys:     keys,
		creds:    creds,
		scanners: scanners,
		engine:   engine,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type handlerParam struct {
	Method  string
	Path    string
	Handler httpx.RequestHandler
}

// Router registers all admission endpoints. Device-facing endpoints carry
// their own authority in the request body; organizer endpoints require a
// valid identity token.
func (a *API) Router(r chi.Router) chi.Router {
	deviceHandlers := []handlerParam{
		{
			Method:  http.MethodPost,
			Path:    "/auth/login",
			Handler: a.login,
		},
		{
			Method:  http.MethodGet,
			Path:    "/events/{eventID}/keys/public",
			Handler: a.getPublicKey,
		},
		{
			Method:  http.MethodPost,
			Path:    "/scanners",
			Handler: a.registerScanner,
		},
		{
			Method:  http.MethodPost,
			Path:    "/checkins",
			Handler: a.checkIn,
		},
	}

	operatorHandlers := []handlerParam{
		{
			Method:  http.MethodPost,
			Path:    "/events/{eventID}/keys",
			Handler: a.provisionEventKeys,
		},
		{
			Method:  http.MethodPost,
			Path:    "/events/{eventID}/tickets/{ticketID}/credential",
			Handler: a.issueTicketCredential,
		},
		{
			Method:  http.MethodPost,
			Path:    "/events/{eventID}/registration-tokens",
			Handler: a.issueRegistrationToken,
		},
		{
			Method:  http.MethodPost,
			Path:    "/scanners/{scannerID}/close",
			Handler: a.closeScanner,
		},
		{
			Method:  http.MethodPost,
			Path:    "/scanners/{scannerID}/revoke",
			Handler: a.revokeScanner,
		},
	}

	r.Group(func(r chi.Router) {
		for _, handler := range deviceHandlers {
			r.Method(handler.Method, handler.Path, httpx.WrapHttpRsp(handler.Handler))
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(a.auth.Middleware)
		for _, handler := range operatorHandlers {
			r.Method(handler.Method, handler.Path, httpx.WrapHttpRsp(handler.Handler))
		}
	})
	return r
}

// uuidParam parses a UUID path parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, httpx.ErrInvalidRequest("invalid " + name)
	}
	return id, nil
}

// authorizedEvent loads an event and checks that the calling operator owns it.
func (a *API) authorizedEvent(r *http.Request, eventID uuid.UUID) (*models.Event, error) {
	ctx := r.Context()
	operator := admitcommon.GetOperator(ctx)
	if operator == "" {
		return nil, httpx.ErrUnauthorized()
	}
	event, dberr := a.store.GetEvent(ctx, eventID)
	if dberr != nil {
		return nil, dberr
	}
	if event.OrganizerID != string(operator) {
		return nil, apperrors.New("not authorized for this event").SetStatusCode(http.StatusForbidden)
	}
	return event, nil
}
