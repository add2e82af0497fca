// Package postgres provides a PostgreSQL-backed store.Store, for
// deployments that already run a relational database and would rather not
// add a dedicated cache tier for sessions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store is a PostgreSQL-based store.Store implementation.
type Store struct {
	db          *sql.DB
	writeStmt   *sql.Stmt
	readStmt    *sql.Stmt
	destroyStmt *sql.Stmt
	gcStmt      *sql.Stmt
}

// Config holds connection-pool tuning for Store.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New creates a Store with default pool sizing.
func New(dsn string) (*Store, error) {
	return NewWithConfig(Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
}

// NewWithConfig creates a Store with custom pool sizing, creating the
// backing table if it does not already exist.
func NewWithConfig(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgresql database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	s := &Store{db: db}
	if s.writeStmt, err = db.Prepare(`
		INSERT INTO sessions (id, payload, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare write statement: %w", err)
	}
	if s.readStmt, err = db.Prepare(`SELECT payload FROM sessions WHERE id = $1 AND expires_at > $2`); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare read statement: %w", err)
	}
	if s.destroyStmt, err = db.Prepare(`DELETE FROM sessions WHERE id = $1`); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare destroy statement: %w", err)
	}
	if s.gcStmt, err = db.Prepare(`DELETE FROM sessions WHERE expires_at < $1`); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare gc statement: %w", err)
	}
	return s, nil
}

// Read returns the payload for id, or (nil, false, nil) if absent or
// expired.
func (s *Store) Read(ctx context.Context, id string) ([]byte, bool, error) {
	var payload []byte
	err := s.readStmt.QueryRowContext(ctx, id, time.Now()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query session: %w", err)
	}
	return payload, true, nil
}

// Write overwrites any prior payload for id with the given bytes and TTL.
func (s *Store) Write(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	if _, err := s.writeStmt.ExecContext(ctx, id, payload, time.Now().Add(ttl)); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Destroy removes any payload for id.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if _, err := s.destroyStmt.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// GC deletes all rows whose expires_at has passed. maxTTL is unused: each
// row already tracks its own expiry.
func (s *Store) GC(ctx context.Context, maxTTL time.Duration) error {
	if _, err := s.gcStmt.ExecContext(ctx, time.Now()); err != nil {
		return fmt.Errorf("failed to gc sessions: %w", err)
	}
	return nil
}

// Close releases the prepared statements and the underlying connection
// pool.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.writeStmt, s.readStmt, s.destroyStmt, s.gcStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
