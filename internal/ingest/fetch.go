package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	fetchTimeout = 30 * time.Second
	maxFetchSize = 2 << 20
)

// Document is readable text pulled from a URL.
type Document struct {
	Title string
	Text  string
}

// FetchReadable downloads rawURL and reduces it to plain text. HTML pages
// go through readability; other content types are returned as-is.
func FetchReadable(ctx context.Context, client *http.Client, rawURL string) (*Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("ingest: invalid URL %q", rawURL)
	}
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: fetch: %w", err)
	}
	req.Header.Set("User-Agent", "alphabot-ingest/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingest: fetch: HTTP %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxFetchSize)
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("ingest: read: %w", err)
		}
		return &Document{Title: path.Base(parsed.Path), Text: string(raw)}, nil
	}

	article, err := readability.FromReader(body, parsed)
	if err != nil {
		return nil, fmt.Errorf("ingest: parse: %w", err)
	}
	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return nil, fmt.Errorf("ingest: render: %w", err)
	}
	return &Document{Title: article.Title(), Text: strings.TrimSpace(buf.String())}, nil
}
