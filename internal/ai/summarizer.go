// Package ai calls an external model endpoint to summarize the rows a user
// is currently looking at.
//
// The payload is bounded: at most maxSummaryRows rows go out, reserved fields
// stripped. The endpoint is a plain JSON-over-POST contract so any model
// gateway can sit behind it.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// maxSummaryRows caps how many rows are sent per request. Summaries describe
// the shape of the data, not every record; bounding the payload keeps request
// size and model latency predictable.
const maxSummaryRows = 50

// Summary is the model's response.
type Summary struct {
	Text            string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// request is the outbound payload.
type request struct {
	Dataset string        `json:"dataset"`
	Headers []string      `json:"headers"`
	Rows    []rows.Record `json:"rows"`
}

// doer is the minimal HTTP seam; *http.Client satisfies it, tests inject
// fakes without a real listener.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the summary endpoint.
type Client struct {
	endpoint string
	http     doer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests and custom
// transports.
func WithHTTPClient(d doer) Option {
	return func(c *Client) { c.http = d }
}

// NewClient creates a summary client for the given endpoint URL.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("ai: empty endpoint")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Summarize sends the dataset slice to the model endpoint and returns its
// summary.
//
// Edge cases:
//   - More than maxSummaryRows rows: only the first maxSummaryRows are sent.
//   - Reserved fields (id, processingStatus) never leave the process.
//   - Zero rows is a valid request; the model summarizes an empty view.
func (c *Client) Summarize(ctx context.Context, dataset string, headers []string, recs []rows.Record) (Summary, error) {
	if len(recs) > maxSummaryRows {
		recs = recs[:maxSummaryRows]
	}

	payload := request{
		Dataset: dataset,
		Headers: headers,
		Rows:    make([]rows.Record, 0, len(recs)),
	}
	for _, rec := range recs {
		payload.Rows = append(payload.Rows, rec.StripReserved())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Summary{}, fmt.Errorf("ai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Summary{}, fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("ai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Summary{}, fmt.Errorf("ai: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out Summary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Summary{}, fmt.Errorf("ai: decode response: %w", err)
	}
	return out, nil
}
