// Package dbmanager manages the PostgreSQL connection pool used by the
// storage layer.
package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Pool wraps the sql.DB pool and hands out connections with bounded session
// timeouts applied. A connection obtained from Conn is not concurrency safe
// and must be returned with Close when the caller is done.
type Pool struct {
	db           *sql.DB
	connRequests uint64
	connReturns  uint64
}

// Conn is a checked-out database connection.
type Conn struct {
	conn   *sql.Conn
	cancel context.CancelFunc
	pool   *Pool
}

// sessionParams bound every statement issued through a checked-out connection
// so a wedged server cannot leave validation requests hanging.
var sessionParams = map[string]string{
	"lock_timeout":                        "5s",
	"statement_timeout":                   "5s",
	"idle_in_transaction_session_timeout": "5s",
}

// NewPostgresqlDb opens a connection pool for the given DSN and verifies
// connectivity before returning it.
func NewPostgresqlDb(ctx context.Context, dsn string) (*Pool, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to open db")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		log.Ctx(ctx).Error().Err(err).Msg("failed to ping db")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: sqlDB}, nil
}

// Conn checks a connection out of the pool with the session timeouts applied.
func (p *Pool) Conn(ctx context.Context) (*Conn, error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := p.db.Conn(ctx)
	if err != nil {
		cancel()
		log.Ctx(ctx).Error().Err(err).Msg("failed to obtain connection")
		return nil, fmt.Errorf("failed to obtain database connection: %w", err)
	}

	for param, value := range sessionParams {
		query := fmt.Sprintf("SET %s = %s", pq.QuoteIdentifier(param), pq.QuoteLiteral(value))
		if _, err := conn.ExecContext(ctx, query); err != nil {
			cancel()
			conn.Close()
			return nil, fmt.Errorf("failed to set %s: %w", param, err)
		}
	}

	atomic.AddUint64(&p.connRequests, 1)
	return &Conn{conn: conn, cancel: cancel, pool: p}, nil
}

// Stats returns the number of connection requests and returns.
func (p *Pool) Stats() (requests, returns uint64) {
	return atomic.LoadUint64(&p.connRequests), atomic.LoadUint64(&p.connReturns)
}

// Ping verifies the pool can still reach the database.
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Shutdown closes the underlying pool.
func (p *Pool) Shutdown() error {
	return p.db.Close()
}

// Conn returns the underlying *sql.Conn. Do not close this directly; use
// Close so the checkout accounting stays consistent.
func (c *Conn) Conn() *sql.Conn {
	return c.conn
}

// Close returns the connection to the pool.
func (c *Conn) Close() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.cancel()
	atomic.AddUint64(&c.pool.connReturns, 1)
}
