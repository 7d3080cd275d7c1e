// Package transcript stores meeting transcripts and serves the most recent
// ones to context assembly.
package transcript

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("transcript not found")

// Transcript is one stored meeting.
type Transcript struct {
	ID        string
	Filename  string
	CreatedAt time.Time
	Content   string // filtered text used in prompts
	Raw       string // text as received
}

// Text returns the filtered content, or the raw text when no filtered
// version was stored.
func (t *Transcript) Text() string {
	if t.Content != "" {
		return t.Content
	}
	return t.Raw
}

// Store persists transcripts.
type Store interface {
	// Recent returns up to limit transcripts, newest first.
	Recent(ctx context.Context, limit int) ([]*Transcript, error)
	Get(ctx context.Context, id string) (*Transcript, error)
	Save(ctx context.Context, t *Transcript) error
	Close() error
}
