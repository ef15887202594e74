package messaging

import (
	"context"
	"sync/atomic"

	"github.com/michelskapp-design/3DFANS/internal/gateway"
	"github.com/michelskapp-design/3DFANS/internal/models"
)

// ZAPIService adapts the Z-API chat gateway client to the Service interface.
// Inbound traffic arrives through the HTTP webhook, so Start and Stop only
// gate outbound sends.
type ZAPIService struct {
	sender  gateway.Sender
	stopped atomic.Bool
}

// NewZAPIService wraps a gateway sender.
func NewZAPIService(sender gateway.Sender) *ZAPIService {
	return &ZAPIService{sender: sender}
}

var _ Service = (*ZAPIService)(nil)

func (s *ZAPIService) Start(ctx context.Context) error {
	s.stopped.Store(false)
	return nil
}

func (s *ZAPIService) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *ZAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone(recipient)
}

func (s *ZAPIService) SendText(ctx context.Context, to, body string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	return s.sender.SendText(ctx, to, body)
}

func (s *ZAPIService) SendImage(ctx context.Context, to, image, caption string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	return s.sender.SendImage(ctx, to, image, caption)
}

func (s *ZAPIService) SendTyping(ctx context.Context, to string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	return s.sender.SendPresence(ctx, to)
}

// SendPaymentLink sends the payment instructions with a copy button carrying
// the link, so the customer can paste it straight into the PIX app.
func (s *ZAPIService) SendPaymentLink(ctx context.Context, to, body, link string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	return s.sender.SendCopyButton(ctx, to, body, link)
}
