// Package store provides storage backends for the 3DFANS bot.
//
// This file implements the PostgreSQL-backed store for sessions and references.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/michelskapp-design/3DFANS/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions and references in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetSession returns the session for a phone, or nil if none exists.
func (s *PostgresStore) GetSession(phone string) (*models.Session, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE phone = $1`, phone).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query session for %s: %w", phone, err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session for %s: %w", phone, err)
	}
	return &sess, nil
}

// SaveSession stores or replaces a session.
func (s *PostgresStore) SaveSession(sess models.Session) error {
	if sess.Phone == "" {
		return models.ErrEmptyPhone
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session for %s: %w", sess.Phone, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (phone, data, created_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (phone) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		sess.Phone, data, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session for %s: %w", sess.Phone, err)
	}
	return nil
}

// ListSessions returns all sessions.
func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT data FROM sessions`)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var sess models.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			slog.Error("PostgresStore ListSessions decode failed", "error", err)
			continue
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

// ResetSession removes the session for a phone.
func (s *PostgresStore) ResetSession(phone string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE phone = $1`, phone)
	if err != nil {
		return fmt.Errorf("failed to reset session for %s: %w", phone, err)
	}
	return nil
}

// RefByPhone returns the reference token for a phone, or empty if none.
func (s *PostgresStore) RefByPhone(phone string) (string, error) {
	var ref string
	err := s.db.QueryRow(`SELECT ref FROM refs WHERE phone = $1`, phone).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query ref for %s: %w", phone, err)
	}
	return ref, nil
}

// PhoneByRef returns the phone for a reference token, or empty if none.
func (s *PostgresStore) PhoneByRef(ref string) (string, error) {
	var phone string
	err := s.db.QueryRow(`SELECT phone FROM refs WHERE ref = $1`, ref).Scan(&phone)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query phone for ref: %w", err)
	}
	return phone, nil
}

// SaveRef records both directions of a phone↔ref mapping.
func (s *PostgresStore) SaveRef(phone, ref string) error {
	if phone == "" {
		return models.ErrEmptyPhone
	}
	if ref == "" {
		return models.ErrEmptyRef
	}
	_, err := s.db.Exec(
		`INSERT INTO refs (phone, ref, created_at) VALUES ($1, $2, $3) ON CONFLICT (phone) DO NOTHING`,
		phone, ref, time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore SaveRef failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to save ref for %s: %w", phone, err)
	}
	return nil
}

// Close closes the PostgreSQL connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
