// Package whatsapp wraps the Whatsmeow client for direct WhatsApp delivery,
// used when the bot runs without the HTTP chat gateway.
//
// It provides login (QR or numeric code), text and image sends, and typing
// presence.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/michelskapp-design/3DFANS/internal/store"
)

// Constants for WhatsApp client configuration.
const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database.
	DefaultSQLitePath = "/var/lib/3dfans/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// Sender is the direct-WhatsApp delivery surface, narrow enough to mock.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to string, image []byte, caption string) error
	SendTyping(ctx context.Context, to string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode uses a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client wraps the Whatsmeow client for modular use.
type Client struct {
	waClient *whatsmeow.Client
}

var _ Sender = (*Client)(nil)

// NewClient creates and connects a WhatsApp client, running the login flow
// when no stored device exists.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		if !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite DSN for WhatsApp does not enable foreign keys; whatsmeow recommends '?_foreign_keys=on'")
		}
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				return nil, fmt.Errorf("failed to create QR output file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

func (c *Client) jid(to string) types.JID {
	return types.NewJID(to, JIDSuffix)
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, c.jid(to), msg); err != nil {
		slog.Error("Failed to send WhatsApp text", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// SendImage uploads image bytes to WhatsApp media servers and sends them with
// a caption.
func (c *Client) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if len(image) == 0 {
		return fmt.Errorf("image cannot be empty")
	}

	uploaded, err := c.waClient.Upload(ctx, image, whatsmeow.MediaImage)
	if err != nil {
		slog.Error("Failed to upload WhatsApp image", "error", err, "to", to)
		return fmt.Errorf("failed to upload image for %s: %w", to, err)
	}

	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String("image/png"),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uint64(len(image))),
	}}

	if _, err := c.waClient.SendMessage(ctx, c.jid(to), msg); err != nil {
		slog.Error("Failed to send WhatsApp image", "error", err, "to", to)
		return fmt.Errorf("failed to send image to %s: %w", to, err)
	}
	return nil
}

// SendTyping marks the bot as composing in the recipient's chat.
func (c *Client) SendTyping(ctx context.Context, to string) error {
	if err := c.waClient.SendChatPresence(c.jid(to), types.ChatPresenceComposing, types.ChatPresenceMediaText); err != nil {
		return fmt.Errorf("failed to send typing presence to %s: %w", to, err)
	}
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// MockClient implements Sender without a WhatsApp connection, for tests.
type MockClient struct {
	Texts  []string
	Images []string
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ Sender = (*MockClient)(nil)

func (m *MockClient) SendText(ctx context.Context, to, body string) error {
	m.Texts = append(m.Texts, body)
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	m.Images = append(m.Images, caption)
	return nil
}

func (m *MockClient) SendTyping(ctx context.Context, to string) error {
	return nil
}
