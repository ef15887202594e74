// Package gateway wraps the Z-API chat gateway HTTP interface used to send
// WhatsApp texts, images, presence updates and copy-code buttons.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/michelskapp-design/3DFANS/internal/util"
)

// Timeouts per call type, matching the gateway's observed latency profiles.
const (
	// PresenceTimeout bounds send-presence calls.
	PresenceTimeout = 10 * time.Second
	// TextTimeout bounds send-text and button calls.
	TextTimeout = 20 * time.Second
	// ImageTimeout bounds send-image calls (uploads are slow).
	ImageTimeout = 45 * time.Second
)

// Typing simulation bounds: every outbound send is preceded by a composing
// presence and a short human-like pause.
const (
	TypingDelayMin = 500 * time.Millisecond
	TypingDelayJitter = 1 * time.Second
)

// Sender is the outbound gateway abstraction (for production and testing).
type Sender interface {
	SendText(ctx context.Context, to, message string) error
	SendImage(ctx context.Context, to, image, caption string) error
	SendPresence(ctx context.Context, to string) error
	SendCopyButton(ctx context.Context, to, message, code string) error
}

// Opts holds configuration options for the gateway client.
type Opts struct {
	Instance    string // gateway instance id
	Token       string // gateway instance token
	ClientToken string // account-level client token header
	BaseURL     string // override for tests; defaults to the public API
	HTTPClient  *http.Client
	TypingDelay func() time.Duration // override for tests
}

// Option defines a configuration option for the gateway client.
type Option func(*Opts)

// WithInstance sets the gateway instance id.
func WithInstance(instance string) Option {
	return func(o *Opts) { o.Instance = instance }
}

// WithToken sets the gateway instance token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithClientToken sets the account-level client token header.
func WithClientToken(token string) Option {
	return func(o *Opts) { o.ClientToken = token }
}

// WithBaseURL overrides the gateway base URL (tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTypingDelay overrides the typing simulation delay (tests).
func WithTypingDelay(fn func() time.Duration) Option {
	return func(o *Opts) { o.TypingDelay = fn }
}

// Client calls the Z-API REST endpoints. All sends normalize the recipient
// phone and simulate typing first.
type Client struct {
	instance    string
	token       string
	clientToken string
	baseURL     string
	http        *http.Client
	typingDelay func() time.Duration
}

var _ Sender = (*Client)(nil)

// NewClient creates a gateway client. Instance and token are required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("gateway client config loaded",
		"instance_set", cfg.Instance != "",
		"token_set", cfg.Token != "",
		"client_token_set", cfg.ClientToken != "")

	if cfg.Instance == "" || cfg.Token == "" {
		return nil, fmt.Errorf("gateway instance and token must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.z-api.io"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.TypingDelay == nil {
		cfg.TypingDelay = func() time.Duration {
			return TypingDelayMin + time.Duration(rand.Int64N(int64(TypingDelayJitter)))
		}
	}

	return &Client{
		instance:    cfg.Instance,
		token:       cfg.Token,
		clientToken: cfg.ClientToken,
		baseURL:     cfg.BaseURL,
		http:        cfg.HTTPClient,
		typingDelay: cfg.TypingDelay,
	}, nil
}

func (c *Client) endpoint(action string) string {
	return fmt.Sprintf("%s/instances/%s/token/%s/%s", c.baseURL, c.instance, c.token, action)
}

// post sends a JSON payload to a gateway action with the given timeout.
func (c *Client) post(ctx context.Context, action string, payload any, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(action), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientToken != "" {
		req.Header.Set("Client-Token", c.clientToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s call failed: %w", action, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway %s returned status %d", action, resp.StatusCode)
	}
	return nil
}

// simulateTyping sends a composing presence and pauses briefly. Presence
// failures are ignored; the pause still happens.
func (c *Client) simulateTyping(ctx context.Context, phone string) {
	if err := c.SendPresence(ctx, phone); err != nil {
		slog.Debug("gateway presence send failed, continuing", "error", err, "to", phone)
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.typingDelay()):
	}
}

// SendPresence marks the bot as composing for the recipient.
func (c *Client) SendPresence(ctx context.Context, to string) error {
	phone := util.NormalizePhone(to)
	return c.post(ctx, "send-presence", map[string]string{"phone": phone, "presence": "composing"}, PresenceTimeout)
}

// SendText sends a plain text message, preceded by typing simulation.
func (c *Client) SendText(ctx context.Context, to, message string) error {
	phone := util.NormalizePhone(to)
	c.simulateTyping(ctx, phone)
	if err := c.post(ctx, "send-text", map[string]string{"phone": phone, "message": message}, TextTimeout); err != nil {
		slog.Error("gateway SendText failed", "error", err, "to", phone)
		return err
	}
	slog.Debug("gateway text sent", "to", phone, "length", len(message))
	return nil
}

// SendImage sends an image (URL or data URI) with a caption, preceded by
// typing simulation.
func (c *Client) SendImage(ctx context.Context, to, image, caption string) error {
	phone := util.NormalizePhone(to)
	c.simulateTyping(ctx, phone)
	payload := map[string]string{"phone": phone, "image": image, "caption": caption}
	if err := c.post(ctx, "send-image", payload, ImageTimeout); err != nil {
		slog.Error("gateway SendImage failed", "error", err, "to", phone)
		return err
	}
	slog.Debug("gateway image sent", "to", phone)
	return nil
}

// SendCopyButton sends a message with a copy-to-clipboard button holding a
// PIX code. On gateway rejection it falls back to a plain text message with
// the code inline.
func (c *Client) SendCopyButton(ctx context.Context, to, message, code string) error {
	phone := util.NormalizePhone(to)
	c.simulateTyping(ctx, phone)
	payload := map[string]string{
		"phone":      phone,
		"message":    message,
		"code":       code,
		"buttonText": "📋 Copiar PIX",
	}
	if err := c.post(ctx, "send-button-otp", payload, TextTimeout); err != nil {
		slog.Warn("gateway copy button failed, falling back to text", "error", err, "to", phone)
		fallback := fmt.Sprintf("%s\n\nPIX Copia e Cola:\n%s\n\nSe preferir, copie o código acima e pague no app do seu banco.", message, code)
		return c.post(ctx, "send-text", map[string]string{"phone": phone, "message": fallback}, TextTimeout)
	}
	return nil
}

// MockSender records outbound calls for tests.
type MockSender struct {
	Texts     []MockMessage
	Images    []MockImage
	Presences []string
	Buttons   []MockMessage

	// FailText makes SendText return an error (upstream failure paths).
	FailText error
	// FailImage makes SendImage return an error.
	FailImage error
}

// MockMessage is a recorded text send.
type MockMessage struct {
	To   string
	Body string
}

// MockImage is a recorded image send.
type MockImage struct {
	To      string
	Image   string
	Caption string
}

// NewMockSender creates an empty mock gateway.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) SendText(ctx context.Context, to, message string) error {
	if m.FailText != nil {
		return m.FailText
	}
	m.Texts = append(m.Texts, MockMessage{To: to, Body: message})
	return nil
}

func (m *MockSender) SendImage(ctx context.Context, to, image, caption string) error {
	if m.FailImage != nil {
		return m.FailImage
	}
	m.Images = append(m.Images, MockImage{To: to, Image: image, Caption: caption})
	return nil
}

func (m *MockSender) SendPresence(ctx context.Context, to string) error {
	m.Presences = append(m.Presences, to)
	return nil
}

func (m *MockSender) SendCopyButton(ctx context.Context, to, message, code string) error {
	m.Buttons = append(m.Buttons, MockMessage{To: to, Body: message})
	return nil
}
