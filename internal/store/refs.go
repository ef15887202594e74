package store

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/michelskapp-design/3DFANS/internal/models"
)

// GetOrCreateRef returns the reference token for a phone, generating and
// durably persisting a new one on first call. It is idempotent: subsequent
// calls for the same phone return the cached token without new I/O.
func GetOrCreateRef(s Store, phone string) (string, error) {
	if phone == "" {
		return "", models.ErrEmptyPhone
	}

	existing, err := s.RefByPhone(phone)
	if err != nil {
		return "", fmt.Errorf("ref lookup for %s failed: %w", phone, err)
	}
	if existing != "" {
		return existing, nil
	}

	ref := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.SaveRef(phone, ref); err != nil {
		return "", fmt.Errorf("ref persist for %s failed: %w", phone, err)
	}
	slog.Info("store created reference token", "phone", phone)
	return ref, nil
}
