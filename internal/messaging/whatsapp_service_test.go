package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestExtractTextVariants(t *testing.T) {
	if got := extractText(nil); got != "" {
		t.Errorf("nil message should yield empty text, got %q", got)
	}

	msg := &waE2E.Message{Conversation: proto.String("oi")}
	if got := extractText(msg); got != "oi" {
		t.Errorf("conversation text = %q, want oi", got)
	}

	msg = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("olá com link")}}
	if got := extractText(msg); got != "olá com link" {
		t.Errorf("extended text = %q", got)
	}

	if got := extractText(&waE2E.Message{}); got != "" {
		t.Errorf("empty message should yield empty text, got %q", got)
	}
}

func TestResolveImageDataURI(t *testing.T) {
	s := &WhatsAppService{http: &http.Client{Timeout: time.Second}}

	data, err := s.resolveImage(context.Background(), "data:image/png;base64,cG5nLWJ5dGVz")
	if err != nil {
		t.Fatalf("resolveImage: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("decoded payload = %q", data)
	}

	if _, err := s.resolveImage(context.Background(), "data:image/png;base64"); err == nil {
		t.Errorf("data URI without payload should fail")
	}
	if _, err := s.resolveImage(context.Background(), "data:image/png;base64,%%%"); err == nil {
		t.Errorf("invalid base64 should fail")
	}
}

func TestResolveImageHTTPFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	s := &WhatsAppService{http: srv.Client()}
	data, err := s.resolveImage(context.Background(), srv.URL+"/foto.jpg")
	if err != nil {
		t.Fatalf("resolveImage: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("fetched payload = %q", data)
	}
}

func TestResolveImageHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := &WhatsAppService{http: srv.Client()}
	if _, err := s.resolveImage(context.Background(), srv.URL+"/missing.jpg"); err == nil {
		t.Errorf("non-200 fetch should fail")
	}
}
