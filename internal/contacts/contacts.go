// Package contacts maintains an append-only CSV log of customers who have
// contacted the bot, deduplicated by phone number.
package contacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the contact log file inside the data directory.
const FileName = "contatos.csv"

// Log appends (phone, first name) rows to a CSV file, once per phone. Safe
// for concurrent use.
type Log struct {
	mu    sync.Mutex
	seen  map[string]bool
	path  string // empty disables persistence (tests)
}

// New creates a contact log rooted at dataDir, loading already-recorded
// phones so restarts do not duplicate rows. An empty dataDir keeps the log
// purely in memory.
func New(dataDir string) (*Log, error) {
	l := &Log{seen: make(map[string]bool)}
	if dataDir == "" {
		return l, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	l.path = filepath.Join(dataDir, FileName)

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open contact log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("contact log row unparsable, skipping", "error", err)
			continue
		}
		if len(record) > 0 && record[0] != "" {
			l.seen[record[0]] = true
		}
	}
	return l, nil
}

// Record appends the contact if the phone has not been seen before. Returns
// whether a new row was written.
func (l *Log) Record(phone, name string) (bool, error) {
	if phone == "" {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[phone] {
		return false, nil
	}
	l.seen[phone] = true
	if l.path == "" {
		return true, nil
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open contact log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{phone, name}); err != nil {
		return false, fmt.Errorf("failed to append contact: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, fmt.Errorf("failed to flush contact log: %w", err)
	}
	slog.Debug("contact recorded", "phone", phone, "name_set", name != "")
	return true, nil
}

// Known reports whether a phone is already in the log.
func (l *Log) Known(phone string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[phone]
}
