// Package genai wraps the OpenAI image API for preview generation: removing
// the photo background, then synthesizing a stylized collectible statue.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/michelskapp-design/3DFANS/internal/models"
)

// FetchTimeout bounds the download of the customer's photo.
const FetchTimeout = 45 * time.Second

// backgroundPrompt instructs the model to isolate the photo subject.
const backgroundPrompt = "Remove the background completely. Keep only the main subject. Transparent background."

// statuePromptBase is the style-independent part of the statue prompt.
const statuePromptBase = "Create a premium 3D collectible statue based EXACTLY on the provided subject. " +
	"Physical product appearance, hand-painted 3D print, professional studio lighting, neutral background, " +
	"elegant black round base. Full-body framing, show the entire character from head to feet, " +
	"show 100%% of the black base, add margin above the head and below the base, " +
	"center the character vertically, no cropping. " +
	"Do not change facial identity, proportions, or main characteristics. Style: %s."

// styleDescriptors maps each figurine style to its prompt descriptor.
var styleDescriptors = map[models.MiniStyle]string{
	models.StyleRealistic:      "hyper-realistic sculpt with lifelike skin and fabric textures",
	models.StylePixar:          "Pixar-like stylization with soft rounded shapes and expressive features",
	models.StylePixarRealistic: "Pixar-like proportions combined with realistic paint and texture detail",
	models.StyleCartoon:        "flat cartoon stylization with bold outlines and simplified shapes",
	models.StyleAnime:          "anime-inspired sculpt with cel-shaded paint finish",
}

// ImageGenerator is the preview image pipeline abstraction (for production
// and testing).
type ImageGenerator interface {
	// RemoveBackground fetches the photo at the URL and returns a PNG of the
	// subject on a transparent background.
	RemoveBackground(ctx context.Context, imageURL string) ([]byte, error)

	// GenerateStatue turns a transparent-background PNG into a stylized
	// statue render, returned as a data URI.
	GenerateStatue(ctx context.Context, png []byte, style models.MiniStyle) (string, error)
}

// Opts holds configuration options for the image client.
type Opts struct {
	APIKey     string
	HTTPClient *http.Client // used for photo downloads
}

// Option defines a configuration option for the image client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithHTTPClient overrides the photo download client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client implements ImageGenerator against the OpenAI image edit API.
type Client struct {
	openai openai.Client
	http   *http.Client
}

var _ ImageGenerator = (*Client)(nil)

// NewClient creates an image client. The API key is required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: FetchTimeout}
	}
	return &Client{
		openai: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		http:   cfg.HTTPClient,
	}, nil
}

// fetchImage downloads the customer's photo. Data URIs (used by the direct
// WhatsApp transport, which receives media as bytes) are decoded in place.
func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if strings.HasPrefix(imageURL, "data:") {
		_, payload, ok := strings.Cut(imageURL, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URI for photo")
		}
		return decodeBase64(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build photo request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photo fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo body: %w", err)
	}
	return data, nil
}

// RemoveBackground fetches the photo and asks the image model for a
// transparent-background cutout of the subject.
func (c *Client) RemoveBackground(ctx context.Context, imageURL string) ([]byte, error) {
	slog.Debug("genai RemoveBackground invoked")
	src, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.openai.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFileArray: []io.Reader{openai.File(bytes.NewReader(src), "input.png", "image/png")},
		},
		Prompt:     backgroundPrompt,
		Model:      openai.ImageModelGPTImage1,
		Size:       openai.ImageEditParamsSize1024x1024,
		Quality:    openai.ImageEditParamsQualityHigh,
		Background: openai.ImageEditParamsBackgroundTransparent,
	})
	if err != nil {
		slog.Error("genai RemoveBackground edit call failed", "error", err)
		return nil, fmt.Errorf("background removal failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, models.ErrNoImageReturned
	}

	png, err := decodeBase64(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("background removal returned undecodable image: %w", err)
	}
	slog.Debug("genai RemoveBackground succeeded", "bytes", len(png))
	return png, nil
}

// GenerateStatue renders the subject PNG as a stylized collectible statue
// and returns a PNG data URI suitable for the chat gateway.
func (c *Client) GenerateStatue(ctx context.Context, png []byte, style models.MiniStyle) (string, error) {
	descriptor, ok := styleDescriptors[style]
	if !ok {
		descriptor = styleDescriptors[models.StyleRealistic]
	}
	prompt := fmt.Sprintf(statuePromptBase, descriptor)
	slog.Debug("genai GenerateStatue invoked", "style", style)

	resp, err := c.openai.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFileArray: []io.Reader{openai.File(bytes.NewReader(png), "subject.png", "image/png")},
		},
		Prompt:  prompt,
		Model:   openai.ImageModelGPTImage1,
		Size:    openai.ImageEditParamsSize1024x1024,
		Quality: openai.ImageEditParamsQualityHigh,
	})
	if err != nil {
		slog.Error("genai GenerateStatue edit call failed", "error", err, "style", style)
		return "", fmt.Errorf("statue synthesis failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", models.ErrNoImageReturned
	}

	slog.Debug("genai GenerateStatue succeeded", "style", style)
	return "data:image/png;base64," + resp.Data[0].B64JSON, nil
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// MockGenerator implements ImageGenerator without network calls (tests).
type MockGenerator struct {
	RemoveCalls   int
	GenerateCalls int
	LastStyle     models.MiniStyle

	// FailRemove / FailGenerate force the corresponding step to error.
	FailRemove   error
	FailGenerate error
}

// NewMockGenerator creates an empty mock image pipeline.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) RemoveBackground(ctx context.Context, imageURL string) ([]byte, error) {
	m.RemoveCalls++
	if m.FailRemove != nil {
		return nil, m.FailRemove
	}
	return []byte("png-bytes"), nil
}

func (m *MockGenerator) GenerateStatue(ctx context.Context, png []byte, style models.MiniStyle) (string, error) {
	m.GenerateCalls++
	m.LastStyle = style
	if m.FailGenerate != nil {
		return "", m.FailGenerate
	}
	return "data:image/png;base64,ZmFrZQ==", nil
}
