// Package store provides storage backends for the 3DFANS bot.
//
// It defines the Store interface over session records and the phone↔reference
// mapping, with in-memory (default), SQLite and PostgreSQL implementations.
// Sessions are best-effort state: the in-memory backend loses them on
// restart, while the reference mapping is always durable.
package store

import (
	"strings"

	"github.com/michelskapp-design/3DFANS/internal/models"
)

// Store defines the storage operations needed by the conversation flow and
// payment reconciliation.
type Store interface {
	// GetSession returns the session for a phone, or nil if none exists.
	GetSession(phone string) (*models.Session, error)

	// SaveSession stores or replaces the session keyed by its phone.
	SaveSession(s models.Session) error

	// ListSessions returns all known sessions. Iteration order is unspecified.
	ListSessions() ([]models.Session, error)

	// ResetSession removes the session for a phone. Missing sessions are not
	// an error.
	ResetSession(phone string) error

	// RefByPhone returns the reference token for a phone, or empty if none.
	RefByPhone(phone string) (string, error)

	// PhoneByRef returns the phone for a reference token, or empty if none.
	PhoneByRef(ref string) (string, error)

	// SaveRef durably records both directions of a phone↔ref mapping before
	// returning. Mappings are never deleted.
	SaveRef(phone, ref string) error

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string (file path for SQLite).
	DSN string
	// DataDir is the directory for flat-file persistence used by the
	// in-memory backend (reference map).
	DataDir string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDataDir sets the flat-file data directory.
func WithDataDir(dir string) Option {
	return func(o *Opts) { o.DataDir = dir }
}

// DetectDSNType reports "postgres" for PostgreSQL-style connection strings and
// "sqlite" for everything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
