// Package imagesearch finds candidate product images by scraping an image
// search results page for a row's display name.
//
// The search endpoint is configurable; anything that returns an HTML page
// with <img> tags works. Results are best effort: a failed fetch or a page
// with no images yields an empty list, never a crash of the caller's view.
package imagesearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultMaxResults = 12

// doer is the minimal HTTP seam; *http.Client satisfies it.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client scrapes image URLs from a search results page.
type Client struct {
	endpoint   *url.URL
	maxResults int
	http       doer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(d doer) Option {
	return func(c *Client) { c.http = d }
}

// WithMaxResults caps how many image URLs a search returns.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// NewClient creates a client for the given search endpoint. The query term
// is appended as the "q" parameter.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("imagesearch: endpoint %q must be absolute", endpoint)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		endpoint:   u,
		maxResults: defaultMaxResults,
		http:       &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search fetches the results page for query and returns absolute image URLs
// in DOM order, deduplicated, capped at the configured maximum.
//
// Edge cases:
//   - Blank query returns an empty list without a request.
//   - Relative src attributes resolve against the endpoint URL.
//   - data: URIs and empty src attributes are skipped.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	u := *c.endpoint
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagesearch: endpoint returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("imagesearch: parse page: %w", err)
	}

	return c.extractImageURLs(doc), nil
}

// extractImageURLs walks all <img> elements, preferring src and falling back
// to data-src for lazy-loaded result grids.
func (c *Client) extractImageURLs(doc *goquery.Document) []string {
	var out []string
	seen := make(map[string]bool)

	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, ok := sel.Attr("src")
		if !ok || strings.TrimSpace(raw) == "" {
			raw, _ = sel.Attr("data-src")
		}
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") {
			return true
		}

		abs := c.absolutize(raw)
		if abs == "" || seen[abs] {
			return true
		}
		seen[abs] = true
		out = append(out, abs)

		return len(out) < c.maxResults
	})

	return out
}

func (c *Client) absolutize(raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return c.endpoint.ResolveReference(ref).String()
}
