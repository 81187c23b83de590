package models

import (
	"time"

	"github.com/admitd/admitd/internal/common/uuid"
)

/*
   Column          |   Type      | Collation | Nullable |      Default
------------------+-------------+-----------+----------+--------------------
 ticket_id        | uuid        |           | not null |
 event_day        | date        |           | not null |
 checked_in       | boolean     |           | not null | false
 checked_in_at    | timestamptz |           |          |
 checked_in_by    | varchar     |           |          |
 checkin_location | varchar     |           |          |
 created_at       | timestamptz |           | not null | now()
 updated_at       | timestamptz |           | not null | now()
Indexes:
    "check_in_records_pkey" PRIMARY KEY, btree (ticket_id, event_day)
*/

// CheckInRecord tracks the exactly-once check-in of a ticket instance for one
// event day. Once CheckedIn is true the validation path never resets it.
type CheckInRecord struct {
	TicketID        uuid.UUID  `db:"ticket_id"`
	EventDay        string     `db:"event_day"` // YYYY-MM-DD, UTC
	CheckedIn       bool       `db:"checked_in"`
	CheckedInAt     *time.Time `db:"checked_in_at"`
	CheckedInBy     string     `db:"checked_in_by"` // scanner name
	CheckInLocation string     `db:"checkin_location"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}
