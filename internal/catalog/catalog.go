// Package catalog wraps the Shopify Storefront GraphQL API for product
// search in the mascot-browsing branch.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Constants for catalog search configuration.
const (
	// DefaultAPIVersion is the Storefront API version used when none is
	// configured.
	DefaultAPIVersion = "2024-10"
	// DefaultSearchLimit caps how many products a search returns.
	DefaultSearchLimit = 6
	// DefaultTimeout bounds the Storefront API call.
	DefaultTimeout = 25 * time.Second
)

// searchQuery is the Storefront GraphQL product search document.
const searchQuery = `
query ($q: String!) {
  search(query: $q, first: 6, types: [PRODUCT]) {
    edges {
      node {
        ... on Product {
          title
          handle
          featuredImage { url }
          priceRange { minVariantPrice { amount currencyCode } }
        }
      }
    }
  }
}`

// Product is a single catalog search result.
type Product struct {
	Title    string `json:"title"`
	Image    string `json:"image,omitempty"`
	Price    string `json:"price,omitempty"`
	Currency string `json:"currency,omitempty"`
	URL      string `json:"url"`
}

// Searcher is the catalog lookup abstraction used by the conversation flow.
type Searcher interface {
	Search(ctx context.Context, term string) ([]Product, error)
}

// Opts holds configuration options for the Shopify client.
type Opts struct {
	Domain       string // myshopify domain serving the Storefront API
	Token        string // Storefront access token
	APIVersion   string
	PublicDomain string // public shop domain used to build product URLs
	HTTPClient   *http.Client
}

// Option defines a configuration option for the Shopify client.
type Option func(*Opts)

// WithDomain sets the myshopify API domain.
func WithDomain(domain string) Option {
	return func(o *Opts) { o.Domain = domain }
}

// WithToken sets the Storefront access token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithAPIVersion sets the Storefront API version.
func WithAPIVersion(v string) Option {
	return func(o *Opts) { o.APIVersion = v }
}

// WithPublicDomain sets the public shop domain used in product links.
func WithPublicDomain(domain string) Option {
	return func(o *Opts) { o.PublicDomain = domain }
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client searches the shop catalog via the Storefront API. Missing
// credentials short-circuit every search to empty results.
type Client struct {
	domain       string
	token        string
	apiVersion   string
	publicDomain string
	http         *http.Client
	endpoint     string // overrides the Shopify URL when set (tests)
}

var _ Searcher = (*Client)(nil)

// NewClient creates a catalog client. It never fails: absent configuration
// yields a client that silently returns no results.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("catalog client configured", "domain_set", cfg.Domain != "", "token_set", cfg.Token != "")
	return &Client{
		domain:       cfg.Domain,
		token:        cfg.Token,
		apiVersion:   cfg.APIVersion,
		publicDomain: strings.TrimRight(cfg.PublicDomain, "/"),
		http:         cfg.HTTPClient,
	}
}

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type searchResponse struct {
	Data struct {
		Search struct {
			Edges []struct {
				Node struct {
					Title         string `json:"title"`
					Handle        string `json:"handle"`
					FeaturedImage *struct {
						URL string `json:"url"`
					} `json:"featuredImage"`
					PriceRange struct {
						MinVariantPrice struct {
							Amount       string `json:"amount"`
							CurrencyCode string `json:"currencyCode"`
						} `json:"minVariantPrice"`
					} `json:"priceRange"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"search"`
	} `json:"data"`
}

// Search runs a free-text product search. Empty credentials yield empty
// results without calling out.
func (c *Client) Search(ctx context.Context, term string) ([]Product, error) {
	if c.domain == "" || c.token == "" {
		slog.Debug("catalog search skipped, credentials not configured")
		return nil, nil
	}

	body, err := json.Marshal(graphQLRequest{Query: searchQuery, Variables: map[string]string{"q": term}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	url := c.endpoint
	if url == "" {
		url = fmt.Sprintf("https://%s/api/%s/graphql.json", c.domain, c.apiVersion)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("catalog search request failed", "error", err, "term", term)
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("catalog search returned non-OK status", "status", resp.StatusCode, "term", term)
		return nil, fmt.Errorf("catalog search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	products := make([]Product, 0, len(parsed.Data.Search.Edges))
	for _, edge := range parsed.Data.Search.Edges {
		if len(products) >= DefaultSearchLimit {
			break
		}
		p := Product{
			Title:    edge.Node.Title,
			Price:    edge.Node.PriceRange.MinVariantPrice.Amount,
			Currency: edge.Node.PriceRange.MinVariantPrice.CurrencyCode,
			URL:      c.publicDomain + "/products/" + edge.Node.Handle,
		}
		if edge.Node.FeaturedImage != nil {
			p.Image = edge.Node.FeaturedImage.URL
		}
		products = append(products, p)
	}
	slog.Debug("catalog search succeeded", "term", term, "count", len(products))
	return products, nil
}
