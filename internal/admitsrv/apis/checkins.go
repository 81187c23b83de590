package apis

import (
	"net/http"
	"time"

	"github.com/admitd/admitd/internal/admitsrv/checkin"
	"github.com/admitd/admitd/internal/common/httpx"
	"github.com/admitd/admitd/internal/common/uuid"
)

type checkInRequest struct {
	ScannerID         string `json:"scanner_id" validate:"required,uuid"`
	DeviceFingerprint string `json:"device_fingerprint" validate:"required"`
	Token             string `json:"token" validate:"required"`
	Location          string `json:"location" validate:"omitempty,max=128"`
}

type checkInResponse struct {
	Outcome      checkin.Outcome `json:"outcome"`
	Reason       string          `json:"reason,omitempty"`
	TicketID     string          `json:"ticket_id,omitempty"`
	AttendeeName string          `json:"attendee_name,omitempty"`
	TicketType   string          `json:"ticket_type,omitempty"`
	EventDay     string          `json:"event_day,omitempty"`
	CheckedInAt  *time.Time      `json:"checked_in_at,omitempty"`
	CheckedInBy  string          `json:"checked_in_by,omitempty"`
	Location     string          `json:"location,omitempty"`
}

// checkIn validates a presented ticket credential and commits the check-in.
// Every definitive outcome is a 200 with a typed outcome string; the device
// never sees a bare error for a rejected ticket.
func (a *API) checkIn(r *http.Request) (*httpx.Response, error) {
	var req checkInRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := a.validate.Struct(&req); err != nil {
		return nil, httpx.ErrInvalidRequest("scanner_id, device_fingerprint, and token are required")
	}
	scannerID, err := uuid.Parse(req.ScannerID)
	if err != nil {
		return nil, httpx.ErrInvalidRequest("invalid scanner_id")
	}

	result, apperr := a.engine.ValidateAndCheckIn(r.Context(), &checkin.Request{
		ScannerID:         scannerID,
		DeviceFingerprint: req.DeviceFingerprint,
		Token:             req.Token,
		Location:          req.Location,
	})
	if apperr != nil {
		return nil, apperr
	}

	rsp := &checkInResponse{
		Outcome:      result.Outcome,
		Reason:       result.Reason,
		AttendeeName: result.AttendeeName,
		TicketType:   result.TicketType,
		EventDay:     result.EventDay,
		CheckedInAt:  result.CheckedInAt,
		CheckedInBy:  result.CheckedInBy,
		Location:     result.Location,
	}
	if result.TicketID != uuid.Nil {
		rsp.TicketID = result.TicketID.String()
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   rsp,
	}, nil
}
