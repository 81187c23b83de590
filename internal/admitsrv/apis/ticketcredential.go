package apis

import (
	"net/http"
	"time"

	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/common/httpx"
	"github.com/admitd/admitd/internal/common/uuid"
)

type issueCredentialRequest struct {
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

type issueCredentialResponse struct {
	TicketID   uuid.UUID `json:"ticket_id"`
	EventID    uuid.UUID `json:"event_id"`
	Credential string    `json:"credential"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
}

// issueTicketCredential mints a signed admission token for a ticket. The
// validity window defaults to now through the end of the event.
func (a *API) issueTicketCredential(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	eventID, err := uuidParam(r, "eventID")
	if err != nil {
		return nil, err
	}
	ticketID, err := uuidParam(r, "ticketID")
	if err != nil {
		return nil, err
	}
	event, err := a.authorizedEvent(r, eventID)
	if err != nil {
		return nil, err
	}

	// Body is optional; an empty request takes the default window.
	var req issueCredentialRequest
	if r.ContentLength != 0 {
		if err := httpx.GetRequestData(r, &req); err != nil {
			return nil, err
		}
	}
	validFrom := time.Now().UTC()
	if req.ValidFrom != nil {
		validFrom = req.ValidFrom.UTC()
	}
	validUntil := event.EndTime.UTC()
	if req.ValidUntil != nil {
		validUntil = req.ValidUntil.UTC()
	}
	if !validUntil.After(validFrom) {
		return nil, httpx.ErrInvalidRequest("valid_until must be after valid_from")
	}

	ticket, dberr := a.store.GetTicket(ctx, ticketID)
	if dberr != nil {
		return nil, dberr
	}
	if ticket.EventID != eventID {
		return nil, dberror.ErrNotFound.Msg("ticket does not belong to this event")
	}

	cred, apperr := a.creds.IssueTicketCredential(ctx, event, ticket, validFrom, validUntil)
	if apperr != nil {
		return nil, apperr
	}
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Response: &issueCredentialResponse{
			TicketID:   ticketID,
			EventID:    eventID,
			Credential: cred,
			ValidFrom:  validFrom,
			ValidUntil: validUntil,
		},
	}, nil
}
