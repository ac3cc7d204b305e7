package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

// Storage is the shared relational backend holding team membership and
// RBAC data. Opened lazily: a team backend being down must never stop
// local authentication, so Open does not ping.
type Storage struct {
	db *sql.DB
}

// Open creates the connection pool for the shared backend
func Open(dsn string) (*Storage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)
	return &Storage{db: db}, nil
}

// Close closes the connection pool
func (s *Storage) Close() error { return s.db.Close() }

// Ping probes backend connectivity; the caller supplies the timeout
// through ctx
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying pool for testing purposes
func (s *Storage) DB() *sql.DB { return s.db }
