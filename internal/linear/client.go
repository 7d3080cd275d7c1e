// Package linear is a small GraphQL client for the Linear issue tracker.
// Every write is refused unless the client was built with test mode on.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.linear.app/graphql"

// ErrTestModeDisabled is returned by every mutation when test mode is off.
var ErrTestModeDisabled = errors.New("linear: 🚨 CRITICAL SAFETY ERROR: refusing to write to the production workspace. Set LINEAR_TEST_MODE=true to enable writing")

// Client talks to the Linear GraphQL API.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	team     string
	testMode bool
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTestMode enables writes.
func WithTestMode(on bool) Option {
	return func(c *Client) { c.testMode = on }
}

// WithTeam sets the team used when an issue names none.
func WithTeam(name string) Option {
	return func(c *Client) { c.team = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Linear client authenticated with a personal API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		endpoint: defaultEndpoint,
		apiKey:   apiKey,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TestMode reports whether writes are enabled.
func (c *Client) TestMode() bool { return c.testMode }

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do posts a GraphQL document and decodes its data field into out.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("linear: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("linear: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("linear: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("linear: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("linear: api error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var gr graphQLResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return fmt.Errorf("linear: decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("linear: graphql: %s", strings.Join(msgs, "; "))
	}
	if out == nil || len(gr.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("linear: decode data: %w", err)
	}
	return nil
}

func (c *Client) requireTestMode(op string) error {
	if !c.testMode {
		c.logger.Warn("linear write refused", "op", op)
		return ErrTestModeDisabled
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
