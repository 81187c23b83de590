// Package credential issues and verifies the signed tokens that circulate
// outside the service: attendee ticket credentials and checkpoint scanner
// credentials. Tokens are three-segment JWS compact strings signed RS256 with
// the owning event's key. Verification is fail closed and runs its checks in
// a fixed order: format first, then signature, then freshness, then semantics.
// Nothing is trusted from the payload until the signature over it has been
// verified.
package credential

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/eventkey"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

// Claims is the payload of a signed credential. Ticket and scanner credentials
// share the shape; the Use field discriminates. Attendee contact fields are
// stored masked, the full values never leave the service inside a token.
type Claims struct {
	Use            admitcommon.TokenUse       `json:"use"`
	Ver            admitcommon.TokenVersion   `json:"ver"`
	EventID        uuid.UUID                  `json:"event_id"`
	EventTitle     string                     `json:"event_title,omitempty"`
	EventStart     *jwt.NumericDate           `json:"event_start,omitempty"`
	TicketID       uuid.UUID                  `json:"ticket_id,omitempty"`
	TicketTypeID   uuid.UUID                  `json:"ticket_type_id,omitempty"`
	TicketType     string                     `json:"ticket_type,omitempty"`
	AttendeeName   string                     `json:"attendee_name,omitempty"`
	AttendeeEmail  string                     `json:"attendee_email,omitempty"`
	AttendeePhone  string                     `json:"attendee_phone,omitempty"`
	AttendanceMode admitcommon.AttendanceMode `json:"attendance_mode,omitempty"`
	BookingRef     string                     `json:"booking_ref,omitempty"`
	ScannerID      uuid.UUID                  `json:"scanner_id,omitempty"`
	ScannerName    string                     `json:"scanner_name,omitempty"`
	IssuedAt       *jwt.NumericDate           `json:"iat"`
	NotBefore      *jwt.NumericDate           `json:"nbf,omitempty"`
	ExpiresAt      *jwt.NumericDate           `json:"exp"`
}

// Service issues and verifies credentials against per-event keys.
type Service struct {
	keys *eventkey.Manager
}

func New(keys *eventkey.Manager) *Service {
	return &Service{keys: keys}
}

func encodeSegment(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// IssueTicketCredential signs a credential for a ticket instance valid over
// [validFrom, validUntil]. Contact details are masked before they enter the
// payload; the attendee display name is the only PII carried in clear.
func (s *Service) IssueTicketCredential(ctx context.Context, event *models.Event, ticket *models.Ticket, validFrom, validUntil time.Time) (string, apperrors.Error) {
	claims := &Claims{
		Use:            admitcommon.TicketTokenUse,
		Ver:            admitcommon.TokenVersionV0_1,
		EventID:        ticket.EventID,
		EventTitle:     event.Title,
		EventStart:     jwt.NewNumericDate(event.StartTime),
		TicketID:       ticket.TicketID,
		TicketTypeID:   ticket.TicketTypeID,
		TicketType:     ticket.TicketTypeName,
		AttendeeName:   ticket.AttendeeName,
		AttendeeEmail:  MaskEmail(ticket.AttendeeEmail),
		AttendeePhone:  MaskPhone(ticket.AttendeePhone),
		AttendanceMode: ticket.AttendanceMode,
		BookingRef:     ticket.BookingRef,
		IssuedAt:       jwt.NewNumericDate(time.Now().UTC()),
		NotBefore:      jwt.NewNumericDate(validFrom),
		ExpiresAt:      jwt.NewNumericDate(validUntil),
	}
	return s.issue(ctx, ticket.EventID, claims)
}

// IssueScannerCredential signs a credential binding a scanner to its event.
func (s *Service) IssueScannerCredential(ctx context.Context, scannerID uuid.UUID, eventID uuid.UUID, name string, validUntil time.Time) (string, apperrors.Error) {
	claims := &Claims{
		Use:         admitcommon.ScannerTokenUse,
		Ver:         admitcommon.TokenVersionV0_1,
		EventID:     eventID,
		ScannerID:   scannerID,
		ScannerName: name,
		IssuedAt:    jwt.NewNumericDate(time.Now().UTC()),
		ExpiresAt:   jwt.NewNumericDate(validUntil),
	}
	return s.issue(ctx, eventID, claims)
}

func (s *Service) issue(ctx context.Context, eventID uuid.UUID, claims *Claims) (string, apperrors.Error) {
	payloadSeg, err := encodeSegment(claims)
	if err != nil {
		return "", ErrIssueFailed.Err(err)
	}

	keyID, apperr := s.keys.ActiveKeyID(ctx, eventID)
	if apperr != nil {
		return "", apperr
	}

	headerSeg, err := encodeSegment(header{Alg: eventkey.SigningAlgorithm, Typ: "JWT", Kid: keyID.String()})
	if err != nil {
		return "", ErrIssueFailed.Err(err)
	}
	signingInput := headerSeg + "." + payloadSeg
	sig, _, apperr := s.keys.Sign(ctx, eventID, signingInput)
	if apperr != nil {
		return "", apperr
	}
	return signingInput + "." + sig, nil
}

// parse splits and decodes a compact token without trusting any of it.
func parse(token string) (hdr header, claims *Claims, signingInput, sig string, err apperrors.Error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return hdr, nil, "", "", ErrMalformedCredential.Msg("credential must have three segments")
	}
	headerRaw, derr := base64.RawURLEncoding.DecodeString(parts[0])
	if derr != nil {
		return hdr, nil, "", "", ErrMalformedCredential.Msg("credential header is not base64url")
	}
	payloadRaw, derr := base64.RawURLEncoding.DecodeString(parts[1])
	if derr != nil {
		return hdr, nil, "", "", ErrMalformedCredential.Msg("credential payload is not base64url")
	}
	if jerr := json.Unmarshal(headerRaw, &hdr); jerr != nil {
		return hdr, nil, "", "", ErrMalformedCredential.Msg("credential header is not valid JSON")
	}
	claims = &Claims{}
	if jerr := json.Unmarshal(payloadRaw, claims); jerr != nil {
		return hdr, nil, "", "", ErrMalformedCredential.Msg("credential payload is not valid JSON")
	}
	return hdr, claims, parts[0] + "." + parts[1], parts[2], nil
}

// Verify checks a credential end to end and returns its claims. The checks
// run in order and the first failure wins:
//
//  1. format: three segments, valid base64url, valid JSON, RS256 header
//  2. signature: RSA verification against the owning event's active key
//  3. freshness: exp not in the past (a credential expiring at exactly the
//     current instant is still valid)
//  4. semantics: the use claim matches what the caller expects
func (s *Service) Verify(ctx context.Context, token string, use admitcommon.TokenUse, now time.Time) (*Claims, apperrors.Error) {
	hdr, claims, signingInput, sig, apperr := parse(token)
	if apperr != nil {
		return nil, apperr
	}
	if hdr.Alg != eventkey.SigningAlgorithm {
		return nil, ErrMalformedCredential.Msg("unsupported signing algorithm")
	}
	if claims.EventID == uuid.Nil {
		return nil, ErrMalformedCredential.Msg("credential has no event binding")
	}

	if apperr := s.keys.Verify(ctx, claims.EventID, signingInput, sig); apperr != nil {
		return nil, ErrBadSignature.Err(apperr)
	}

	if claims.ExpiresAt == nil {
		return nil, ErrMalformedCredential.Msg("credential has no expiry")
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil, ErrCredentialExpired
	}

	if claims.Use != use {
		return nil, ErrWrongCredentialUse
	}
	return claims, nil
}

// DecodeUnsafe extracts routing fields from a credential without verifying
// it. Callers must treat the result as untrusted input; it exists so the
// transport layer can route a request to the right event before the full
// verification pipeline runs.
func DecodeUnsafe(token string) (eventID uuid.UUID, use admitcommon.TokenUse, ok bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return uuid.Nil, "", false
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return uuid.Nil, "", false
	}
	eventField := gjson.GetBytes(payloadRaw, "event_id")
	useField := gjson.GetBytes(payloadRaw, "use")
	if !eventField.Exists() || !useField.Exists() {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(eventField.String())
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, admitcommon.TokenUse(useField.String()), true
}
