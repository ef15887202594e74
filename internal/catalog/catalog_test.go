package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const searchFixture = `{
  "data": {
    "search": {
      "edges": [
        {
          "node": {
            "title": "Mascote Galo Forte 16cm",
            "handle": "mascote-galo-forte-16cm",
            "featuredImage": {"url": "https://cdn.example.com/galo.jpg"},
            "priceRange": {"minVariantPrice": {"amount": "189.9", "currencyCode": "BRL"}}
          }
        },
        {
          "node": {
            "title": "Mascote Peixe Urbano 21cm",
            "handle": "mascote-peixe-21cm",
            "featuredImage": null,
            "priceRange": {"minVariantPrice": {"amount": "259.9", "currencyCode": "BRL"}}
          }
        }
      ]
    }
  }
}`

func TestSearchParsesResults(t *testing.T) {
	var gotToken string
	var gotVars map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Storefront-Access-Token")
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		gotVars = req.Variables
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	c := NewClient(
		WithDomain("shop.myshopify.com"),
		WithToken("tok"),
		WithPublicDomain("https://loja.example.com/"),
	)
	c.endpoint = srv.URL

	products, err := c.Search(context.Background(), "galo")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if gotToken != "tok" {
		t.Errorf("storefront token header = %q", gotToken)
	}
	if gotVars["q"] != "galo" {
		t.Errorf("search variable q = %q", gotVars["q"])
	}

	if len(products) != 2 {
		t.Fatalf("Search returned %d products, want 2", len(products))
	}
	first := products[0]
	if first.Title != "Mascote Galo Forte 16cm" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Image != "https://cdn.example.com/galo.jpg" {
		t.Errorf("image = %q", first.Image)
	}
	if first.Price != "189.9" || first.Currency != "BRL" {
		t.Errorf("price = %q %q", first.Currency, first.Price)
	}
	if first.URL != "https://loja.example.com/products/mascote-galo-forte-16cm" {
		t.Errorf("url = %q", first.URL)
	}
	if products[1].Image != "" {
		t.Errorf("missing featured image should yield empty image, got %q", products[1].Image)
	}
}

func TestSearchWithoutCredentials(t *testing.T) {
	c := NewClient()
	products, err := c.Search(context.Background(), "galo")
	if err != nil {
		t.Fatalf("Search without credentials should not error: %v", err)
	}
	if products != nil {
		t.Errorf("Search without credentials = %v, want nil", products)
	}
}

func TestSearchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithDomain("shop.myshopify.com"), WithToken("tok"))
	c.endpoint = srv.URL

	if _, err := c.Search(context.Background(), "galo"); err == nil {
		t.Errorf("Search should surface non-OK status")
	}
}
