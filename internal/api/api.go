// Package api exposes the HTTP surface of the bot: the chat gateway webhook,
// the payment provider webhook and health endpoints.
//
// Webhooks acknowledge immediately and process in the background, since chat
// gateways retry aggressively on slow responses.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/michelskapp-design/3DFANS/internal/flow"
)

// Server timeouts.
const (
	ReadTimeout  = 15 * time.Second
	WriteTimeout = 15 * time.Second
	IdleTimeout  = 60 * time.Second
	// ProcessTimeout bounds the detached handling of one webhook event.
	ProcessTimeout = 2 * time.Minute
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	WebhookSecret string // payment webhook HMAC secret
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithWebhookSecret sets the payment webhook HMAC secret.
func WithWebhookSecret(secret string) Option {
	return func(o *Opts) { o.WebhookSecret = secret }
}

// Server hosts the webhook endpoints and hands events to the flow coordinator.
type Server struct {
	coordinator *flow.Coordinator
	secret      string
	httpServer  *http.Server
}

// NewServer creates an API server bound to a coordinator.
func NewServer(coordinator *flow.Coordinator, opts ...Option) (*Server, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator must be provided")
	}
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{coordinator: coordinator, secret: cfg.WebhookSecret}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.chatWebhookHandler)
	mux.HandleFunc("/payment-webhook", s.paymentWebhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/", s.rootHandler)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	return s, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	slog.Info("Server.Run: API server stopped")
	return nil
}
