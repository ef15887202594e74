// Package memory implements the taught free-text answer map, persisted to a
// JSON flat file and written through on every teach command.
package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// FileName is the flat file holding the taught answers.
const FileName = "memory.json"

// memoryFile is the on-disk shape. Answers are global (shared across all
// customers).
type memoryFile struct {
	Global map[string]string `json:"global"`
}

// TaughtAnswer is a parsed teach command.
type TaughtAnswer struct {
	Question string
	Answer   string
}

// Store holds the taught answers. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data memoryFile
	path string // empty disables persistence (tests)
}

// New creates a memory store rooted at dataDir, loading any existing file.
// An empty dataDir keeps the store purely in memory.
func New(dataDir string) (*Store, error) {
	s := &Store{data: memoryFile{Global: make(map[string]string)}}
	if dataDir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	s.path = filepath.Join(dataDir, FileName)

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory file: %w", err)
	}
	var f memoryFile
	if err := json.Unmarshal(raw, &f); err != nil {
		slog.Warn("memory file unparsable, starting empty", "path", s.path, "error", err)
		return s, nil
	}
	if f.Global != nil {
		s.data.Global = f.Global
	}
	return s, nil
}

// Answer returns the taught answer for a normalized question, or empty.
func (s *Store) Answer(question string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Global[strings.ToLower(strings.TrimSpace(question))]
}

// Teach stores an answer and writes the file through before returning.
func (s *Store) Teach(question, answer string) error {
	q := strings.ToLower(strings.TrimSpace(question))
	a := strings.TrimSpace(answer)
	if q == "" || a == "" {
		return fmt.Errorf("question and answer must be non-empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Global[q] = a
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode memory file: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	slog.Info("memory stored taught answer", "question", q)
	return nil
}

var teachPattern = regexp.MustCompile(`^(.*?)(?:=>|->|=)(.*)$`)

// ParseTeach parses an admin teach command of the form
// "ensinar: question => answer" (also accepts "aprenda" and the separators
// "=", "->"). Returns nil when the text is not a teach command.
func ParseTeach(text string) *TaughtAnswer {
	rest := strings.TrimSpace(text)
	lower := strings.ToLower(rest)

	switch {
	case strings.HasPrefix(lower, "ensinar:"):
		rest = rest[len("ensinar:"):]
	case strings.HasPrefix(lower, "ensinar"):
		rest = rest[len("ensinar"):]
	case strings.HasPrefix(lower, "aprenda:"):
		rest = rest[len("aprenda:"):]
	case strings.HasPrefix(lower, "aprenda"):
		rest = rest[len("aprenda"):]
	default:
		return nil
	}

	m := teachPattern.FindStringSubmatch(strings.TrimSpace(rest))
	if m == nil {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(m[1]))
	a := strings.TrimSpace(m[2])
	if q == "" || a == "" {
		return nil
	}
	return &TaughtAnswer{Question: q, Answer: a}
}
