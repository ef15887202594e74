package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingServer captures every gateway call by action name.
type recordingServer struct {
	mu    sync.Mutex
	calls []recordedCall
	fail  map[string]int // action -> status code to return
}

type recordedCall struct {
	action  string
	payload map[string]string
	token   string
}

func (s *recordingServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		action := parts[len(parts)-1]

		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("unparsable payload for %s: %v", action, err)
		}

		s.mu.Lock()
		s.calls = append(s.calls, recordedCall{action: action, payload: payload, token: r.Header.Get("Client-Token")})
		status := s.fail[action]
		s.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.Write([]byte(`{"sent":true}`))
	}
}

func (s *recordingServer) byAction(action string) []recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedCall
	for _, c := range s.calls {
		if c.action == action {
			out = append(out, c)
		}
	}
	return out
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	c, err := NewClient(
		WithInstance("inst1"),
		WithToken("tok1"),
		WithClientToken("ctok"),
		WithBaseURL(srv.URL),
		WithTypingDelay(func() time.Duration { return 0 }),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Errorf("NewClient without instance and token should fail")
	}
}

func TestSendTextSimulatesTyping(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.SendText(context.Background(), "11999998888", "Olá!"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	presences := rec.byAction("send-presence")
	if len(presences) != 1 || presences[0].payload["presence"] != "composing" {
		t.Errorf("expected one composing presence before the text, got %v", presences)
	}

	texts := rec.byAction("send-text")
	if len(texts) != 1 {
		t.Fatalf("expected one text send, got %d", len(texts))
	}
	if texts[0].payload["phone"] != "5511999998888" {
		t.Errorf("phone not normalized: %q", texts[0].payload["phone"])
	}
	if texts[0].payload["message"] != "Olá!" {
		t.Errorf("message = %q", texts[0].payload["message"])
	}
	if texts[0].token != "ctok" {
		t.Errorf("Client-Token header = %q", texts[0].token)
	}
}

func TestSendImage(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.SendImage(context.Background(), "5511999998888", "https://cdn.example.com/p.png", "Sua prévia"); err != nil {
		t.Fatalf("SendImage failed: %v", err)
	}

	images := rec.byAction("send-image")
	if len(images) != 1 {
		t.Fatalf("expected one image send, got %d", len(images))
	}
	if images[0].payload["image"] != "https://cdn.example.com/p.png" || images[0].payload["caption"] != "Sua prévia" {
		t.Errorf("unexpected image payload: %v", images[0].payload)
	}
}

func TestSendTextSurfacesGatewayError(t *testing.T) {
	rec := &recordingServer{fail: map[string]int{"send-text": http.StatusBadRequest}}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.SendText(context.Background(), "5511999998888", "Olá!"); err == nil {
		t.Errorf("SendText should surface gateway rejection")
	}
}

func TestSendCopyButtonFallsBackToText(t *testing.T) {
	rec := &recordingServer{fail: map[string]int{"send-button-otp": http.StatusNotImplemented}}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.SendCopyButton(context.Background(), "5511999998888", "Pague a taxa", "https://pay.example/abc")
	if err != nil {
		t.Fatalf("SendCopyButton fallback failed: %v", err)
	}

	texts := rec.byAction("send-text")
	if len(texts) != 1 {
		t.Fatalf("expected one fallback text, got %d", len(texts))
	}
	body := texts[0].payload["message"]
	if !strings.Contains(body, "Pague a taxa") || !strings.Contains(body, "https://pay.example/abc") {
		t.Errorf("fallback text missing message or code: %q", body)
	}
}

func TestSendCopyButtonSuccess(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.SendCopyButton(context.Background(), "5511999998888", "Pague a taxa", "PIXCODE"); err != nil {
		t.Fatalf("SendCopyButton failed: %v", err)
	}

	buttons := rec.byAction("send-button-otp")
	if len(buttons) != 1 || buttons[0].payload["code"] != "PIXCODE" {
		t.Errorf("unexpected button payload: %v", buttons)
	}
	if len(rec.byAction("send-text")) != 0 {
		t.Errorf("no fallback text expected on success")
	}
}
