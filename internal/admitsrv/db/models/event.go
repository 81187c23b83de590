package models

import (
	"time"

	"github.com/admitd/admitd/internal/common/uuid"
)

/*
   Column      |   Type      | Collation | Nullable |      Default
---------------+-------------+-----------+----------+--------------------
 event_id      | uuid        |           | not null | uuid_generate_v4()
 title         | varchar     |           | not null |
 start_time    | timestamptz |           | not null |
 end_time      | timestamptz |           | not null |
 organizer_id  | varchar     |           | not null |
 venue         | varchar     |           |          |
 created_at    | timestamptz |           | not null | now()
 updated_at    | timestamptz |           | not null | now()
Indexes:
    "events_pkey" PRIMARY KEY, btree (event_id)
*/

// Event is the read-only projection of an event consumed by the trust core.
// Event catalog CRUD lives outside this service.
type Event struct {
	EventID     uuid.UUID `db:"event_id"`
	Title       string    `db:"title"`
	StartTime   time.Time `db:"start_time"`
	EndTime     time.Time `db:"end_time"`
	OrganizerID string    `db:"organizer_id"`
	Venue       string    `db:"venue"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// IsMultiDay reports whether the event spans more than one calendar day (UTC).
func (e *Event) IsMultiDay() bool {
	return e.StartTime.UTC().Format("2006-01-02") != e.EndTime.UTC().Format("2006-01-02")
}
