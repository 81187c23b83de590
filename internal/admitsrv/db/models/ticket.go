package models

import (
	"time"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/common/uuid"
)

/*
   Column          |   Type      | Collation | Nullable |      Default
------------------+-------------+-----------+----------+--------------------
 ticket_id        | uuid        |           | not null | uuid_generate_v4()
 event_id         | uuid        |           | not null |
 ticket_type_id   | uuid        |           | not null |
 ticket_type_name | varchar     |           | not null |
 attendee_name    | varchar     |           | not null |
 attendee_email   | varchar     |           |          |
 attendee_phone   | varchar     |           |          |
 attendance_mode  | varchar     |           | not null | 'in_person'
 booking_ref      | varchar     |           | not null |
 created_at       | timestamptz |           | not null | now()
 updated_at       | timestamptz |           | not null | now()
Indexes:
    "tickets_pkey" PRIMARY KEY, btree (ticket_id)
    "idx_tickets_event" btree (event_id)
*/

// Ticket is the read-only projection of a ticket instance consumed by the
// trust core. Ticket sales and type definitions live outside this service.
type Ticket struct {
	TicketID       uuid.UUID                  `db:"ticket_id"`
	EventID        uuid.UUID                  `db:"event_id"`
	TicketTypeID   uuid.UUID                  `db:"ticket_type_id"`
	TicketTypeName string                     `db:"ticket_type_name"`
	AttendeeName   string                     `db:"attendee_name"`
	AttendeeEmail  string                     `db:"attendee_email"`
	AttendeePhone  string                     `db:"attendee_phone"`
	AttendanceMode admitcommon.AttendanceMode `db:"attendance_mode"`
	BookingRef     string                     `db:"booking_ref"`
	CreatedAt      time.Time                  `db:"created_at"`
	UpdatedAt      time.Time                  `db:"updated_at"`
}
