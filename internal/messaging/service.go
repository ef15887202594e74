// Package messaging abstracts the outbound chat transport behind a common
// Service interface with three backends: the Z-API HTTP gateway, a direct
// WhatsApp connection via Whatsmeow, and Twilio's WhatsApp API.
package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/michelskapp-design/3DFANS/internal/models"
	"github.com/michelskapp-design/3DFANS/internal/util"
)

// Service is the transport interface the conversation flow sends through.
// Image arguments are URLs or data URIs; backends that need raw bytes resolve
// them internally.
type Service interface {
	// Start initializes the backend (connections, event handlers).
	Start(ctx context.Context) error
	// Stop shuts the backend down. Sends after Stop fail.
	Stop(ctx context.Context) error
	// ValidateAndCanonicalizeRecipient normalizes a recipient identifier into
	// the backend's canonical form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, image, caption string) error
	SendTyping(ctx context.Context, to string) error
}

// MessageHandler consumes inbound messages from backends that receive them
// (the direct WhatsApp connection).
type MessageHandler func(msg models.InboundMessage)

// canonicalPhone validates and normalizes a phone-number recipient shared by
// all backends.
func canonicalPhone(recipient string) (string, error) {
	phone := util.NormalizePhone(recipient)
	if phone == "" {
		return "", models.ErrEmptyPhone
	}
	if len(phone) < 10 {
		return "", fmt.Errorf("recipient %q too short to be a phone number", recipient)
	}
	return phone, nil
}

// MockService implements Service in memory for tests.
type MockService struct {
	Started bool
	Stopped bool
	Texts   []string
	Images  []string
	Links   []string

	FailText  bool
	FailImage bool
}

// NewMockService creates an empty mock.
func NewMockService() *MockService {
	return &MockService{}
}

var _ Service = (*MockService)(nil)

func (m *MockService) Start(ctx context.Context) error {
	m.Started = true
	return nil
}

func (m *MockService) Stop(ctx context.Context) error {
	m.Stopped = true
	return nil
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone(recipient)
}

func (m *MockService) SendText(ctx context.Context, to, body string) error {
	if m.FailText {
		return fmt.Errorf("mock text send failure")
	}
	m.Texts = append(m.Texts, body)
	return nil
}

func (m *MockService) SendImage(ctx context.Context, to, image, caption string) error {
	if m.FailImage {
		return fmt.Errorf("mock image send failure")
	}
	m.Images = append(m.Images, caption)
	return nil
}

func (m *MockService) SendTyping(ctx context.Context, to string) error {
	return nil
}

// SendPaymentLink records the link send (mirrors the Z-API copy button).
func (m *MockService) SendPaymentLink(ctx context.Context, to, body, link string) error {
	m.Links = append(m.Links, link)
	return nil
}

// LastText returns the most recent text sent, or empty.
func (m *MockService) LastText() string {
	if len(m.Texts) == 0 {
		return ""
	}
	return m.Texts[len(m.Texts)-1]
}

// ContainsText reports whether any sent text contains substr.
func (m *MockService) ContainsText(substr string) bool {
	for _, t := range m.Texts {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}
