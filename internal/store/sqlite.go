// Package store provides storage backends for the 3DFANS bot.
//
// This file implements the SQLite-backed store for sessions and references.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/michelskapp-design/3DFANS/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions and references in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetSession returns the session for a phone, or nil if none exists.
func (s *SQLiteStore) GetSession(phone string) (*models.Session, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE phone = ?`, phone).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query session for %s: %w", phone, err)
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		slog.Error("SQLiteStore GetSession JSON unmarshal failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to decode session for %s: %w", phone, err)
	}
	return &sess, nil
}

// SaveSession stores or replaces a session.
func (s *SQLiteStore) SaveSession(sess models.Session) error {
	if sess.Phone == "" {
		return models.ErrEmptyPhone
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session for %s: %w", sess.Phone, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (phone, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sess.Phone, string(data), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "phone", sess.Phone)
		return fmt.Errorf("failed to save session for %s: %w", sess.Phone, err)
	}
	return nil
}

// ListSessions returns all sessions.
func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT data FROM sessions`)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var sess models.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			slog.Error("SQLiteStore ListSessions decode failed", "error", err)
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
func (s *SQLiteStore) ResetSession(phone string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE phone = ?`, phone)
	if err != nil {
		slog.Error("SQLiteStore ResetSession failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to reset session for %s: %w", phone, err)
	}
	return nil
}

// RefByPhone returns the reference token for a phone, or empty if none.
func (s *SQLiteStore) RefByPhone(phone string) (string, error) {
	var ref string
	err := s.db.QueryRow(`SELECT ref FROM refs WHERE phone = ?`, phone).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query ref for %s: %w", phone, err)
	}
	return ref, nil
}

// PhoneByRef returns the phone for a reference token, or empty if none.
func (s *SQLiteStore) PhoneByRef(ref string) (string, error) {
	var phone string
	err := s.db.QueryRow(`SELECT phone FROM refs WHERE ref = ?`, ref).Scan(&phone)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query phone for ref: %w", err)
	}
	return phone, nil
}

// SaveRef records both directions of a phone↔ref mapping.
func (s *SQLiteStore) SaveRef(phone, ref string) error {
	if phone == "" {
		return models.ErrEmptyPhone
	}
	if ref == "" {
		return models.ErrEmptyRef
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO refs (phone, ref, created_at) VALUES (?, ?, ?)`,
		phone, ref, time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveRef failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to save ref for %s: %w", phone, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
