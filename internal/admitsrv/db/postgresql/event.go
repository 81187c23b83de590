package postgresql

import (
	"context"
	"database/sql"

	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/admitsrv/db/models"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

// GetEvent retrieves an event by its ID.
func (s *Store) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, apperrors.Error) {
	query := `
		SELECT event_id, title, start_time, end_time, organizer_id, venue, created_at, updated_at
		FROM events
		WHERE event_id = $1`

	var event models.Event
	apperr := s.withConn(ctx, func(conn *sql.Conn) apperrors.Error {
		var venue pgtype.Text
		row := conn.QueryRowContext(ctx, query, eventID)
		errdb := row.Scan(&event.EventID, &event.Title, &event.StartTime, &event.EndTime,
			&event.OrganizerID, &venue, &event.CreatedAt, &event.UpdatedAt)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				return dberror.ErrNotFound.Msg("event not found")
			}
			log.Ctx(ctx).Error().Err(errdb).Msg("failed to get event")
			return dberror.ErrDatabase.Err(errdb)
		}
		if venue.Status == pgtype.Present {
			event.Venue = venue.String
		}
		return nil
	})
	if apperr != nil {
		return nil, apperr
	}
	return &event, nil
}
