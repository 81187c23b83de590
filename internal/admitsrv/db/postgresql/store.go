// Package postgresql implements the db.Store interfaces on PostgreSQL with
// hand-written SQL. Uniqueness and exactly-once guarantees ride on database
// constraints rather than application-level checks.
package postgresql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgconn"

	"github.com/admitd/admitd/internal/admitsrv/db/dbmanager"
	"github.com/admitd/admitd/internal/admitsrv/db/dberror"
	"github.com/admitd/admitd/internal/common/apperrors"
)

const pgUniqueViolation = "23505"

// Store implements db.Store backed by a dbmanager.Pool.
type Store struct {
	pool *dbmanager.Pool
}

func NewStore(pool *dbmanager.Pool) *Store {
	return &Store{pool: pool}
}

// withConn checks out a connection, runs fn, and returns the connection to
// the pool.
func (s *Store) withConn(ctx context.Context, fn func(conn *sql.Conn) apperrors.Error) apperrors.Error {
	c, err := s.pool.Conn(ctx)
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	defer c.Close()
	return fn(c.Conn())
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, optionally on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
