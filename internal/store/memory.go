package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/michelskapp-design/3DFANS/internal/models"
)

// RefsFileName is the flat file holding the phone↔ref bijection.
const RefsFileName = "refs.json"

// refsFile is the on-disk shape of the reference mapping.
type refsFile struct {
	RefToPhone map[string]string `json:"refToPhone"`
	PhoneToRef map[string]string `json:"phoneToRef"`
}

// InMemoryStore keeps sessions in a mutex-guarded map and persists only the
// reference mapping, rewritten to a JSON flat file on every new mapping.
// Sessions are lost on restart; the reference map survives.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	refs     refsFile
	refsPath string // empty disables persistence (tests)
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an in-memory store. If a data directory is
// configured, the reference mapping is loaded from it at startup and rewritten
// on every new mapping.
func NewInMemoryStore(opts ...Option) (*InMemoryStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &InMemoryStore{
		sessions: make(map[string]models.Session),
		refs:     refsFile{RefToPhone: make(map[string]string), PhoneToRef: make(map[string]string)},
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s.refsPath = filepath.Join(cfg.DataDir, RefsFileName)
		if err := s.loadRefs(); err != nil {
			return nil, err
		}
		slog.Debug("InMemoryStore loaded reference map", "path", s.refsPath, "count", len(s.refs.PhoneToRef))
	}

	return s, nil
}

func (s *InMemoryStore) loadRefs() error {
	raw, err := os.ReadFile(s.refsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read reference map: %w", err)
	}
	var f refsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse reference map %s: %w", s.refsPath, err)
	}
	if f.RefToPhone != nil {
		s.refs.RefToPhone = f.RefToPhone
	}
	if f.PhoneToRef != nil {
		s.refs.PhoneToRef = f.PhoneToRef
	}
	return nil
}

// persistRefs rewrites the whole reference file. Caller holds the lock.
func (s *InMemoryStore) persistRefs() error {
	if s.refsPath == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.refs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode reference map: %w", err)
	}
	if err := os.WriteFile(s.refsPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write reference map: %w", err)
	}
	return nil
}

// GetSession returns the session for a phone, or nil if none exists.
func (s *InMemoryStore) GetSession(phone string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// SaveSession stores or replaces a session.
func (s *InMemoryStore) SaveSession(sess models.Session) error {
	if sess.Phone == "" {
		return models.ErrEmptyPhone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Phone] = sess
	return nil
}

// ListSessions returns a snapshot of all sessions.
func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

// ResetSession removes the session for a phone.
func (s *InMemoryStore) ResetSession(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, phone)
	return nil
}

// RefByPhone returns the reference token for a phone, or empty if none.
func (s *InMemoryStore) RefByPhone(phone string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs.PhoneToRef[phone], nil
}

// PhoneByRef returns the phone for a reference token, or empty if none.
func (s *InMemoryStore) PhoneByRef(ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs.RefToPhone[ref], nil
}

// SaveRef records both directions of a mapping and rewrites the flat file
// synchronously before returning.
func (s *InMemoryStore) SaveRef(phone, ref string) error {
	if phone == "" {
		return models.ErrEmptyPhone
	}
	if ref == "" {
		return models.ErrEmptyRef
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs.PhoneToRef[phone] = ref
	s.refs.RefToPhone[ref] = phone
	if err := s.persistRefs(); err != nil {
		slog.Error("InMemoryStore SaveRef persist failed", "error", err, "phone", phone)
		return err
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
