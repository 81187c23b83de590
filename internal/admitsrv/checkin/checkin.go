// Package checkin orchestrates ticket validation at the gate: scanner
// authority, credential verification, ticket resolution, duplicate detection,
// and the exactly-once check-in commit. Business failures (duplicate, expired,
// bad signature) are typed outcomes, not errors; only infrastructure faults
// surface as errors.
package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/credential"
	"github.com/admitd/admitd/internal/admitsrv/db"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/admitsrv/eventbus"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// Outcome classifies a validation attempt. The strings are part of the wire
// contract with scanning apps and must stay stable.
type Outcome string

const (
	OutcomeValid            Outcome = "valid"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeExpired          Outcome = "expired"
	OutcomeScannerInvalid   Outcome = "scanner_invalid"
	OutcomeNotFound         Outcome = "not_found"
)

// publishTimeout bounds how long a check-in waits on a slow bus subscriber.
const publishTimeout = 50 * time.Millisecond

// Request is one validation attempt from a checkpoint device.
type Request struct {
	ScannerID         uuid.UUID
	DeviceFingerprint string
	Token             string
	Location          string
}

// Result is the typed outcome of a validation attempt. For Duplicate outcomes
// the original check-in metadata is surfaced so gate staff can judge the
// situation themselves.
type Result struct {
	Outcome      Outcome
	Reason       string
	TicketID     uuid.UUID
	AttendeeName string
	TicketType   string
	EventDay     string
	CheckedInAt  *time.Time
	CheckedInBy  string
	Location     string
}

// Notification is the payload published on the check-in topic after every
// definitive outcome.
type Notification struct {
	EventID     uuid.UUID
	TicketID    uuid.UUID
	ScannerID   uuid.UUID
	ScannerName string
	Outcome     Outcome
	At          time.Time
}

// Engine runs the validation pipeline.
type Engine struct {
	events   db.EventLookup
	scanners db.ScannerStore
	tickets  db.TicketStore
	creds    *credential.Service
	bus      *eventbus.Bus
}

func NewEngine(events db.EventLookup, scanners db.ScannerStore, tickets db.TicketStore,
	creds *credential.Service, bus *eventbus.Bus) *Engine {
	return &Engine{
		events:   events,
		scanners: scanners,
		tickets:  tickets,
		creds:    creds,
		bus:      bus,
	}
}

// ValidateAndCheckIn runs the pipeline. Steps short-circuit in order:
// scanner authority, credential signature and freshness, ticket resolution,
// duplicate detection, commit. A definitive outcome is never retried; the
// commit itself is a compare-and-set so concurrent attempts for the same
// ticket cannot both succeed.
func (e *Engine) ValidateAndCheckIn(ctx context.Context, req *Request) (*Result, apperrors.Error) {
	now := time.Now().UTC()

	// Step 1: scanner authority. Fingerprint mismatch and lifecycle problems
	// are deliberately indistinguishable to the caller.
	scanner, dberr := e.scanners.GetScanner(ctx, req.ScannerID)
	if dberr != nil {
		if errors.Is(dberr, dberror.ErrNotFound) {
			return e.finish(ctx, nil, uuid.Nil, &Result{Outcome: OutcomeScannerInvalid, Reason: "scanner not found"}), nil
		}
		return nil, dberr
	}
	if scanner.EffectiveStatus(now) != admitcommon.ScannerStatusActive {
		return e.finish(ctx, scanner, uuid.Nil, &Result{Outcome: OutcomeScannerInvalid, Reason: "scanner is not active"}), nil
	}
	if scanner.DeviceFingerprint != req.DeviceFingerprint {
		return e.finish(ctx, scanner, uuid.Nil, &Result{Outcome: OutcomeScannerInvalid, Reason: "device fingerprint mismatch"}), nil
	}

	// Step 2: credential verification, fail closed.
	claims, verr := e.creds.Verify(ctx, req.Token, admitcommon.TicketTokenUse, now)
	if verr != nil {
		if errors.Is(verr, credential.ErrCredentialExpired) {
			return e.finish(ctx, scanner, uuid.Nil, &Result{Outcome: OutcomeExpired, Reason: "credential has expired"}), nil
		}
		return e.finish(ctx, scanner, uuid.Nil, &Result{Outcome: OutcomeInvalidSignature, Reason: verr.Error()}), nil
	}
	if claims.EventID != scanner.EventID {
		return e.finish(ctx, scanner, uuid.Nil, &Result{Outcome: OutcomeInvalidSignature, Reason: "credential was not issued for this event"}), nil
	}

	// Step 3: ticket resolution. A well-signed token can still reference a
	// ticket that was refunded or deleted after issuance.
	ticket, dberr := e.tickets.GetTicket(ctx, claims.TicketID)
	if dberr != nil {
		if errors.Is(dberr, dberror.ErrNotFound) {
			return e.finish(ctx, scanner, claims.TicketID, &Result{Outcome: OutcomeNotFound, Reason: "ticket not found", TicketID: claims.TicketID}), nil
		}
		return nil, dberr
	}
	if ticket.EventID != scanner.EventID {
		return e.finish(ctx, scanner, ticket.TicketID, &Result{Outcome: OutcomeNotFound, Reason: "ticket belongs to a different event", TicketID: ticket.TicketID}), nil
	}

	event, dberr := e.events.GetEvent(ctx, scanner.EventID)
	if dberr != nil {
		return nil, dberr
	}
	eventDay := checkInDay(event, now)

	// Steps 4 and 5: duplicate detection and commit, in one compare-and-set.
	committed, record, dberr := e.tickets.CommitCheckIn(ctx, ticket.TicketID, eventDay, scanner.Name, req.Location, now)
	if dberr != nil {
		return nil, dberr
	}

	result := &Result{
		TicketID:     ticket.TicketID,
		AttendeeName: ticket.AttendeeName,
		TicketType:   ticket.TicketTypeName,
		EventDay:     eventDay,
		CheckedInAt:  record.CheckedInAt,
		CheckedInBy:  record.CheckedInBy,
		Location:     record.CheckInLocation,
	}
	if !committed {
		result.Outcome = OutcomeDuplicate
		result.Reason = "ticket already checked in"
		return e.finish(ctx, scanner, ticket.TicketID, result), nil
	}

	result.Outcome = OutcomeValid
	if dberr := e.scanners.RecordScan(ctx, scanner.ScannerID, now); dberr != nil {
		// The check-in is committed; a failed counter bump must not turn a
		// Valid outcome into an error.
		log.Ctx(ctx).Error().Err(dberr).Str("scanner_id", scanner.ScannerID.String()).Msg("failed to record scan")
	}
	return e.finish(ctx, scanner, ticket.TicketID, result), nil
}

// finish publishes the outcome notification and returns the result.
func (e *Engine) finish(ctx context.Context, scanner *models.Scanner, ticketID uuid.UUID, result *Result) *Result {
	logEvent := log.Ctx(ctx).Info().Str("outcome", string(result.Outcome))
	if ticketID != uuid.Nil {
		logEvent = logEvent.Str("ticket_id", ticketID.String())
	}
	if scanner != nil {
		logEvent = logEvent.Str("scanner_id", scanner.ScannerID.String())
	}
	logEvent.Msg("validation outcome")

	if e.bus != nil && scanner != nil {
		e.bus.Publish(eventbus.TopicCheckIn(scanner.EventID), Notification{
			EventID:     scanner.EventID,
			TicketID:    ticketID,
			ScannerID:   scanner.ScannerID,
			ScannerName: scanner.Name,
			Outcome:     result.Outcome,
			At:          time.Now().UTC(),
		}, publishTimeout)
	}
	return result
}

// checkInDay picks the check-in record slot. Single-day events use the event's
// start date so late-night scans past midnight still land on the event day;
// multi-day events track one record per calendar day (UTC).
func checkInDay(event *models.Event, now time.Time) string {
	if !event.IsMultiDay() {
		return event.StartTime.UTC().Format("2006-01-02")
	}
	return now.Format("2006-01-02")
}
