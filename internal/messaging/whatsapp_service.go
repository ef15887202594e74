package messaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/michelskapp-design/3DFANS/internal/models"
	"github.com/michelskapp-design/3DFANS/internal/whatsapp"
)

// mediaFetchTimeout bounds downloading an image argument given as a URL.
const mediaFetchTimeout = 45 * time.Second

// WhatsAppService adapts the direct Whatsmeow connection to the Service
// interface. Unlike the gateway backend it also receives inbound messages,
// delivered to the registered MessageHandler; media arrives as bytes and is
// handed to the flow as a data URI.
type WhatsAppService struct {
	client  *whatsapp.Client
	handler MessageHandler
	http    *http.Client
	stopped atomic.Bool
}

// NewWhatsAppService wraps a connected WhatsApp client.
func NewWhatsAppService(client *whatsapp.Client) *WhatsAppService {
	return &WhatsAppService{
		client: client,
		http:   &http.Client{Timeout: mediaFetchTimeout},
	}
}

var _ Service = (*WhatsAppService)(nil)

// SetMessageHandler registers the inbound consumer. Must be called before
// Start.
func (s *WhatsAppService) SetMessageHandler(h MessageHandler) {
	s.handler = h
}

// Start registers the Whatsmeow event handler for inbound messages.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.stopped.Store(false)
	if wa := s.client.GetClient(); wa != nil {
		wa.AddEventHandler(s.onEvent)
	}
	return nil
}

func (s *WhatsAppService) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone(recipient)
}

func (s *WhatsAppService) SendText(ctx context.Context, to, body string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	return s.client.SendText(ctx, to, body)
}

func (s *WhatsAppService) SendImage(ctx context.Context, to, image, caption string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	data, err := s.resolveImage(ctx, image)
	if err != nil {
		return err
	}
	return s.client.SendImage(ctx, to, data, caption)
}

func (s *WhatsAppService) SendTyping(ctx context.Context, to string) error {
	if s.stopped.Load() {
		return models.ErrServiceStopped
	}
	return s.client.SendTyping(ctx, to)
}

// resolveImage turns an image argument (URL or data URI) into raw bytes for
// the WhatsApp media upload.
func (s *WhatsAppService) resolveImage(ctx context.Context, image string) ([]byte, error) {
	if strings.HasPrefix(image, "data:") {
		_, payload, ok := strings.Cut(image, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URI image")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode data URI image: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, image, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// onEvent translates Whatsmeow message events into InboundMessage values.
func (s *WhatsAppService) onEvent(evt interface{}) {
	if s.stopped.Load() || s.handler == nil {
		return
	}
	msgEvt, ok := evt.(*events.Message)
	if !ok {
		return
	}
	if msgEvt.Info.IsFromMe || msgEvt.Info.IsGroup {
		return
	}

	inbound := models.InboundMessage{
		Phone: msgEvt.Info.Sender.User,
		Name:  msgEvt.Info.PushName,
		Text:  extractText(msgEvt.Message),
	}

	if img := msgEvt.Message.GetImageMessage(); img != nil {
		if inbound.Text == "" {
			inbound.Text = img.GetCaption()
		}
		if data, err := s.downloadImage(msgEvt, img); err == nil {
			inbound.ImageURL = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
		}
	}

	if inbound.Text == "" && inbound.ImageURL == "" {
		return
	}
	s.handler(inbound)
}

func (s *WhatsAppService) downloadImage(evt *events.Message, img *waE2E.ImageMessage) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mediaFetchTimeout)
	defer cancel()
	return s.client.GetClient().Download(ctx, img)
}

// extractText pulls the text body out of the message variants WhatsApp uses.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}
