package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/michelskapp-design/3DFANS/internal/models"
)

// TwilioOpts holds configuration for the Twilio WhatsApp backend.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string // sender in "whatsapp:+1234567890" form
}

// TwilioOption defines a configuration option for the Twilio backend.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromWhats = from }
}

// TwilioService sends through Twilio's WhatsApp API. Twilio does not expose
// typing indicators, so SendTyping is a no-op; images go out as media URLs,
// data URIs cannot be delivered on this backend.
type TwilioService struct {
	client    *twilio.RestClient
	fromWhats string
	stopped   atomic.Bool
}

// NewTwilioService creates a Twilio-backed messaging service.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioService{client: client, fromWhats: cfg.FromWhats}, nil
}

var _ Service = (*TwilioService)(nil)

func (s *TwilioService) Start(ctx context.Context) error {
	s.stopped.Store(false)
	return nil
}

func (s *TwilioService) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone(strings.TrimPrefix(recipient, "whatsapp:+"))
}

func (s *TwilioService) SendText(ctx context.Context, to, body string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + to)
	params.SetFrom(s.fromWhats)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService.SendText failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

func (s *TwilioService) SendImage(ctx context.Context, to, image, caption string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	if strings.HasPrefix(image, "data:") {
		return fmt.Errorf("twilio backend requires a public image URL, got a data URI")
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + to)
	params.SetFrom(s.fromWhats)
	params.SetBody(caption)
	params.SetMediaUrl([]string{image})

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService.SendImage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send image to %s: %w", to, err)
	}
	return nil
}

// SendTyping is a no-op: the Twilio API has no typing indicator.
func (s *TwilioService) SendTyping(ctx context.Context, to string) error {
	return nil
}
