package genai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/michelskapp-design/3DFANS/internal/models"
)

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Errorf("client without an API key should be rejected")
	}
	if _, err := NewClient(WithAPIKey("sk-test")); err != nil {
		t.Errorf("client with key: %v", err)
	}
}

func TestFetchImageHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("photo-bytes"))
	}))
	defer srv.Close()

	c, err := NewClient(WithAPIKey("sk-test"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	data, err := c.fetchImage(context.Background(), srv.URL+"/foto.jpg")
	if err != nil {
		t.Fatalf("fetchImage: %v", err)
	}
	if string(data) != "photo-bytes" {
		t.Errorf("fetched payload = %q", data)
	}
}

func TestFetchImageDataURI(t *testing.T) {
	c, err := NewClient(WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	data, err := c.fetchImage(context.Background(), "data:image/png;base64,cG5nLWJ5dGVz")
	if err != nil {
		t.Fatalf("fetchImage: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("decoded payload = %q", data)
	}

	if _, err := c.fetchImage(context.Background(), "data:image/png;base64"); err == nil {
		t.Errorf("data URI without payload should fail")
	}
}

func TestFetchImageNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c, err := NewClient(WithAPIKey("sk-test"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.fetchImage(context.Background(), srv.URL+"/foto.jpg"); err == nil {
		t.Errorf("non-200 photo fetch should fail")
	}
}

func TestStyleDescriptorsCoverAllStyles(t *testing.T) {
	for _, style := range []models.MiniStyle{
		models.StyleRealistic,
		models.StylePixar,
		models.StylePixarRealistic,
		models.StyleCartoon,
		models.StyleAnime,
	} {
		if _, ok := styleDescriptors[style]; !ok {
			t.Errorf("style %q has no prompt descriptor", style)
		}
	}
}

func TestMockGeneratorPipeline(t *testing.T) {
	m := NewMockGenerator()
	ctx := context.Background()

	png, err := m.RemoveBackground(ctx, "https://img.example/foto.jpg")
	if err != nil {
		t.Fatalf("RemoveBackground: %v", err)
	}
	uri, err := m.GenerateStatue(ctx, png, models.StyleAnime)
	if err != nil {
		t.Fatalf("GenerateStatue: %v", err)
	}
	if uri == "" || m.LastStyle != models.StyleAnime {
		t.Errorf("mock pipeline state: uri=%q style=%q", uri, m.LastStyle)
	}
	if m.RemoveCalls != 1 || m.GenerateCalls != 1 {
		t.Errorf("call counts = %d/%d", m.RemoveCalls, m.GenerateCalls)
	}
}
