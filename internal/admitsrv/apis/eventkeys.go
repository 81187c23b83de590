package apis

import (
	"net/http"
	"time"

	"github.com/admitd/admitd/internal/admitsrv/eventkey"
	"github.com/admitd/admitd/internal/common/httpx"
	"github.com/admitd/admitd/internal/common/uuid"
)

type eventKeyResponse struct {
	KeyID       uuid.UUID `json:"key_id"`
	EventID     uuid.UUID `json:"event_id"`
	Algorithm   string    `json:"algorithm"`
	PublicKey   string    `json:"public_key"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
}

// provisionEventKeys generates the signing key pair for an event. Each event
// gets exactly one active pair; provisioning twice is a conflict.
func (a *API) provisionEventKeys(r *http.Request) (*httpx.Response, error) {
	eventID, err := uuidParam(r, "eventID")
	if err != nil {
		return nil, err
	}
	if _, err := a.authorizedEvent(r, eventID); err != nil {
		return nil, err
	}

	pair, apperr := a.keys.ProvisionKeyPair(r.Context(), eventID)
	if apperr != nil {
		return nil, apperr
	}

	publicKey, _, apperr := a.keys.PublicKeyBase64(r.Context(), eventID)
	if apperr != nil {
		return nil, apperr
	}
	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Location:   "/events/" + eventID.String() + "/keys/public",
		Response: &eventKeyResponse{
			KeyID:       pair.KeyID,
			EventID:     eventID,
			Algorithm:   eventkey.SigningAlgorithm,
			PublicKey:   publicKey,
			GeneratedAt: pair.GeneratedAt,
		},
	}, nil
}

// getPublicKey returns the event's active public key in base64 DER form.
// No auth: the public half carries no secret.
func (a *API) getPublicKey(r *http.Request) (*httpx.Response, error) {
	eventID, err := uuidParam(r, "eventID")
	if err != nil {
		return nil, err
	}

	publicKey, keyID, apperr := a.keys.PublicKeyBase64(r.Context(), eventID)
	if apperr != nil {
		return nil, apperr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: &eventKeyResponse{
			KeyID:     keyID,
			EventID:   eventID,
			Algorithm: eventkey.SigningAlgorithm,
			PublicKey: publicKey,
		},
	}, nil
}
