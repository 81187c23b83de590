package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

const eventDayFormat = "2006-01-02"

// GetTicket retrieves a ticket instance by its ID.
func (s *Store) GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, apperrors.Error) {
	query := `
		SELECT ticket_id, event_id, ticket_type_id, ticket_type_name, attendee_name,
			attendee_email, attendee_phone, attendance_mode, booking_ref, created_at, updated_at
		FROM tickets
		WHERE ticket_id = $1`

	var ticket models.Ticket
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		var email, phone pgtype.Text
		row := conn.QueryRowContext(ctx, query, ticketID)
		errdb := row.Scan(&ticket.TicketID, &ticket.EventID, &ticket.TicketTypeID, &ticket.TicketTypeName,
			&ticket.AttendeeName, &email, &phone, &ticket.AttendanceMode, &ticket.BookingRef,
			&ticket.CreatedAt, &ticket.UpdatedAt)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("ticket not found")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to get ticket")
			return dberror.ErrDatabase.Err(errdb)
		}
		if email.Status == pgtype.Present {
			ticket.AttendeeEmail = email.String
		}
		if phone.Status == pgtype.Present {
			ticket.AttendeePhone = phone.String
		}
		return nil
	})
	if apperr != nil {
		return nil, apperr
	}
	return &ticket, nil
}

func scanCheckIn(row interface{ Scan(...any) error }, record *models.CheckInRecord) error {
	var eventDay time.Time
	var checkedInAt pgtype.Timestamptz
	var checkedInBy, location pgtype.Text
	err := row.Scan(&record.TicketID, &eventDay, &record.CheckedIn, &checkedInAt,
		&checkedInBy, &location, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return err
	}
	record.EventDay = eventDay.Format(eventDayFormat)
	if checkedInAt.Status == pgtype.Present {
		t := checkedInAt.Time
		record.CheckedInAt = &t
	}
	if checkedInBy.Status == pgtype.Present {
		record.CheckedInBy = checkedInBy.String
	}
	if location.Status == pgtype.Present {
		record.CheckInLocation = location.String
	}
	return nil
}

// GetCheckIn retrieves the check-in record for a (ticket, day) pair.
func (s *Store) GetCheckIn(ctx context.Context, ticketID uuid.UUID, eventDay string) (*models.CheckInRecord, apperrors.Error) {
	query := `
		SELECT ticket_id, event_day, checked_in, checked_in_at, checked_in_by, checkin_location, created_at, updated_at
		FROM check_in_records
		WHERE ticket_id = $1 AND event_day = $2`

	var record models.CheckInRecord
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		row := conn.QueryRowContext(ctx, query, ticketID, eventDay)
		errdb := scanCheckIn(row, &record)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("check-in record not found")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to get check-in record")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
	if apperr != nil {
		return nil, apperr
	}
	return &record, nil
}

// CommitCheckIn performs the exactly-once check-in write. The primary key on
// (ticket_id, event_day) arbitrates concurrent attempts: the insert succeeds
// for exactly one caller, every other caller reads back the winner's record
// and gets committed = false. A committed record is never reset.
func (s *Store) CommitCheckIn(ctx context.Context, ticketID uuid.UUID, eventDay string, by string, location string, at time.Time) (bool, *models.CheckInRecord, apperrors.Error) {
	insert := `
		INSERT INTO check_in_records (ticket_id, event_day, checked_in, checked_in_at, checked_in_by, checkin_location)
		VALUES ($1, $2, true, $3, $4, NULLIF($5, ''))
		ON CONFLICT (ticket_id, event_day) DO NOTHING
		RETURNING ticket_id, event_day, checked_in, checked_in_at, checked_in_by, checkin_location, created_at, updated_at`

	var committed bool
	var record models.CheckInRecord
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		row := conn.QueryRowContext(ctx, insert, ticketID, eventDay, at, by, location)
		errdb := scanCheckIn(row, &record)
		if errdb == nil {
			committed = true
			return nil
		}
		if errdb != sql.ErrNoRows {
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit check-in")
			return dberror.ErrDatabase.Err(errdb)
		}

		// Lost the race; read the winner's record.
		existing := `
			SELECT ticket_id, event_day, checked_in, checked_in_at, checked_in_by, checkin_location, created_at, updated_at
			FROM check_in_records
			WHERE ticket_id = $1 AND event_day = $2`
		row = conn.QueryRowContext(ctx, existing, ticketID, eventDay)
		if errdb := scanCheckIn(row, &record); errdb != nil {
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to read existing check-in record")
			return dberror.ErrDatabase.Err(errdb)
		}
		return nil
	})
	if apperr != nil {
		return false, nil, apperr
	}
	return committed, &record, nil
}
