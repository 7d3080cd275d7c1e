// Package ingest stores new meeting transcripts, optionally fetching them
// from a URL and filtering them through the model first.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alpha-machine/alphabot/internal/events"
	"github.com/alpha-machine/alphabot/internal/transcript"
)

// ErrEmpty is returned when a request carries neither text nor a URL.
var ErrEmpty = errors.New("ingest: transcript or url is required")

// Request is one transcript to store.
type Request struct {
	Filename   string `json:"filename"`
	Transcript string `json:"transcript,omitempty"`
	URL        string `json:"url,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Saver persists transcripts.
type Saver interface {
	Save(ctx context.Context, t *transcript.Transcript) error
}

// Filter rewrites a raw transcript before it is stored.
type Filter interface {
	Text(ctx context.Context, system, user string) (string, error)
}

// Prompts renders named prompt templates.
type Prompts interface {
	Render(name string, vars map[string]string) (system, user string, ok bool)
}

// Ingestor stores transcripts and announces them.
type Ingestor struct {
	store   Saver
	events  events.Publisher
	client  *http.Client
	filter  Filter
	prompts Prompts
	onSave  func()
	logger  *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithFilter runs every transcript through the transcript_filter prompt.
func WithFilter(f Filter, p Prompts) Option {
	return func(i *Ingestor) { i.filter, i.prompts = f, p }
}

// WithHTTPClient sets the client used for URL fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Ingestor) { i.client = c }
}

// WithOnSave registers a callback run after each successful save, used to
// drop cached context.
func WithOnSave(fn func()) Option {
	return func(i *Ingestor) { i.onSave = fn }
}

// New creates an Ingestor. pub and logger may be nil.
func New(store Saver, pub events.Publisher, logger *slog.Logger, opts ...Option) *Ingestor {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	i := &Ingestor{store: store, events: pub, logger: logger.With("component", "ingest")}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest stores one transcript and returns the saved record.
func (i *Ingestor) Ingest(ctx context.Context, req Request) (*transcript.Transcript, error) {
	raw := strings.TrimSpace(req.Transcript)
	filename := strings.TrimSpace(req.Filename)

	if raw == "" && req.URL != "" {
		doc, err := FetchReadable(ctx, i.client, req.URL)
		if err != nil {
			return nil, err
		}
		raw = doc.Text
		if filename == "" {
			filename = doc.Title
		}
	}
	if raw == "" {
		return nil, ErrEmpty
	}
	if filename == "" {
		filename = "transcript.txt"
	}

	t := &transcript.Transcript{Filename: filename, Raw: raw}
	if i.filter != nil {
		t.Content = i.filtered(ctx, filename, raw)
	}
	if err := i.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("ingest: save: %w", err)
	}
	i.logger.Info("transcript ingested", "id", t.ID, "filename", t.Filename, "bytes", len(raw), "filtered", t.Content != "")

	if i.onSave != nil {
		i.onSave()
	}
	source := req.Source
	if source == "" {
		source = "webhook"
	}
	if err := i.events.Publish(ctx, events.SubjectTranscriptIngested, events.TranscriptIngested{
		ID:       t.ID,
		Filename: t.Filename,
		Source:   source,
		Filtered: t.Content != "",
	}); err != nil {
		i.logger.Warn("event publish failed", "error", err)
	}
	return t, nil
}

// filtered returns the model-cleaned transcript, or "" when filtering is
// unavailable. The raw text is always stored, so a failure is not fatal.
func (i *Ingestor) filtered(ctx context.Context, filename, raw string) string {
	system, user, ok := i.prompts.Render("transcript_filter", map[string]string{
		"filename":   filename,
		"transcript": raw,
	})
	if !ok {
		i.logger.Warn("transcript_filter prompt missing, storing raw transcript")
		return ""
	}
	out, err := i.filter.Text(ctx, system, user)
	if err != nil {
		i.logger.Warn("transcript filter failed, storing raw transcript", "filename", filename, "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}
