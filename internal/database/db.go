package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/common"
)

// DB wraps the Postgres connection pool used by the store
type DB struct {
	conn   *sql.DB
	logger arbor.ILogger
}

// New opens a connection pool and verifies it with a ping
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewWithConn(conn), nil
}

// NewWithConn wraps an existing pool
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn, logger: common.NewSilentLogger()}
}

// SetLogger sets the logger used for fallback and batch warnings
func (db *DB) SetLogger(logger arbor.ILogger) {
	db.logger = common.OrSilent(logger)
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// PersistenceError reports a write that failed after the reduced-batch retry
type PersistenceError struct {
	Table string
	Rows  int
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to write %d rows to %s: %v", e.Rows, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
