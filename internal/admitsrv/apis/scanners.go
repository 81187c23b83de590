package apis

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/scanner"
	"github.com/admitd/admitd/internal/common/httpx"
	"github.com/admitd/admitd/internal/common/uuid"
)

type issueRegistrationTokenRequest struct {
	ScannerNameHint string `json:"scanner_name_hint,omitempty" validate:"omitempty,max=64"`
}

type registrationTokenResponse struct {
	Token           string    `json:"token"`
	EventID         uuid.UUID `json:"event_id"`
	ScannerNameHint string    `json:"scanner_name_hint,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// issueRegistrationToken mints a one-time bootstrap code for a new scanner.
func (a *API) issueRegistrationToken(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	eventID, err := uuidParam(r, "eventID")
	if err != nil {
		return nil, err
	}

	var req issueRegistrationTokenRequest
	if r.ContentLength != 0 {
		if err := httpx.GetRequestData(r, &req); err != nil {
			return nil, err
		}
		if err := a.validate.Struct(&req); err != nil {
			return nil, httpx.ErrInvalidRequest("scanner_name_hint is too long")
		}
	}

	token, apperr := a.scanners.IssueRegistrationToken(ctx, admitcommon.GetOperator(ctx), eventID, req.ScannerNameHint)
	if apperr != nil {
		return nil, apperr
	}
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Response: &registrationTokenResponse{
			Token:           token.Token,
			EventID:         token.EventID,
			ScannerNameHint: token.ScannerNameHint,
			ExpiresAt:       token.ExpiresAt,
		},
	}, nil
}

type registerScannerRequest struct {
	Token             string          `json:"token"`
	Name              string          `json:"name"`
	DeviceFingerprint string          `json:"device_fingerprint"`
	DeviceInfo        json.RawMessage `json:"device_info,omitempty"`
}

type registerScannerResponse struct {
	ScannerID        uuid.UUID                 `json:"scanner_id"`
	EventID          uuid.UUID                 `json:"event_id"`
	Name             string                    `json:"name"`
	Status           admitcommon.ScannerStatus `json:"status"`
	Credential       string                    `json:"credential"`
	CredentialExpiry time.Time                 `json:"credential_expiry"`
}

// registerScanner is the device-initiated registration endpoint. Authority
// comes from the one-time token in the body, not from a session.
func (a *API) registerScanner(r *http.Request) (*httpx.Response, error) {
	var req registerScannerRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}

	result, apperr := a.scanners.Register(r.Context(), &scanner.RegisterRequest{
		Token:             req.Token,
		Name:              req.Name,
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceInfo:        req.DeviceInfo,
	})
	if apperr != nil {
		return nil, apperr
	}
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Response: &registerScannerResponse{
			ScannerID:        result.Scanner.ScannerID,
			EventID:          result.Scanner.EventID,
			Name:             result.Scanner.Name,
			Status:           result.Scanner.Status,
			Credential:       result.Credential,
			CredentialExpiry: result.Scanner.CredentialExpiry,
		},
	}, nil
}

// closeScanner retires a scanner session. The device may register again later.
func (a *API) closeScanner(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	scannerID, err := uuidParam(r, "scannerID")
	if err != nil {
		return nil, err
	}
	if apperr := a.scanners.Close(ctx, admitcommon.GetOperator(ctx), scannerID); apperr != nil {
		return nil, apperr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]string{"status": string(admitcommon.ScannerStatusClosed)},
	}, nil
}

type revokeScannerRequest struct {
	Reason string `json:"reason" validate:"required,max=256"`
}

// revokeScanner permanently bans the scanner's device for its event.
func (a *API) revokeScanner(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	scannerID, err := uuidParam(r, "scannerID")
	if err != nil {
		return nil, err
	}
	var req revokeScannerRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if err := a.validate.Struct(&req); err != nil {
		return nil, httpx.ErrInvalidRequest("reason is required")
	}
	if apperr := a.scanners.Revoke(ctx, admitcommon.GetOperator(ctx), scannerID, req.Reason); apperr != nil {
		return nil, apperr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]string{"status": string(admitcommon.ScannerStatusRevoked)},
	}, nil
}
