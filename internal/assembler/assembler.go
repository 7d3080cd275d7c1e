// Package assembler builds the text context that every prompt is grounded
// on: recent or selected meeting transcripts plus the Linear workspace.
// A failing source degrades to a placeholder line and never fails the
// caller.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/alpha-machine/alphabot/internal/linear"
	"github.com/alpha-machine/alphabot/internal/transcript"
)

const (
	recentLimit   = 3
	previewLength = 300
	weeklyLimit   = 50
)

// Transcripts is the transcript source the assembler reads from.
type Transcripts interface {
	Recent(ctx context.Context, limit int) ([]*transcript.Transcript, error)
	Get(ctx context.Context, id string) (*transcript.Transcript, error)
}

// Workspace is the issue-tracker source the assembler reads from.
type Workspace interface {
	Workspace(ctx context.Context) (*linear.Workspace, error)
}

// Assembler renders context blocks.
type Assembler struct {
	transcripts Transcripts
	workspace   Workspace
	logger      *slog.Logger
	now         func() time.Time
	cacheTTL    time.Duration

	mu       sync.Mutex
	cached   string
	cachedAt time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithCache keeps the comprehensive context for ttl. Zero disables it.
func WithCache(ttl time.Duration) Option {
	return func(a *Assembler) { a.cacheTTL = ttl }
}

// WithClock sets the clock used for timestamps and the cache.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// New creates an Assembler.
func New(transcripts Transcripts, workspace Workspace, opts ...Option) *Assembler {
	a := &Assembler{
		transcripts: transcripts,
		workspace:   workspace,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Comprehensive returns previews of the most recent transcripts followed by
// the full workspace rendering.
func (a *Assembler) Comprehensive(ctx context.Context) string {
	if a.cacheTTL > 0 {
		a.mu.Lock()
		if a.cached != "" && a.now().Sub(a.cachedAt) < a.cacheTTL {
			out := a.cached
			a.mu.Unlock()
			return out
		}
		a.mu.Unlock()
	}

	var parts []string
	recent, err := a.transcripts.Recent(ctx, recentLimit)
	if err != nil {
		a.logger.Warn("context: transcript retrieval failed", "error", err)
		parts = append(parts, "📋 MEETINGS: Database unavailable", "")
	} else if len(recent) > 0 {
		parts = append(parts, FormatRecent(recent), "")
	}

	parts = append(parts, a.linearSection(ctx)...)
	parts = append(parts, a.footer())
	out := strings.Join(parts, "\n")

	if a.cacheTTL > 0 {
		a.mu.Lock()
		a.cached, a.cachedAt = out, a.now()
		a.mu.Unlock()
	}
	return out
}

// Weekly renders every transcript from the last seven days followed by the
// workspace. It is not cached.
func (a *Assembler) Weekly(ctx context.Context) string {
	var parts []string
	recent, err := a.transcripts.Recent(ctx, weeklyLimit)
	if err != nil {
		a.logger.Warn("context: transcript retrieval failed", "error", err)
		parts = append(parts, "📋 MEETINGS: Database unavailable", "")
	} else {
		cutoff := a.now().Add(-7 * 24 * time.Hour)
		var week []*transcript.Transcript
		for _, t := range recent {
			if !t.CreatedAt.Before(cutoff) {
				week = append(week, t)
			}
		}
		if len(week) > 0 {
			parts = append(parts, FormatRecent(week), "")
		} else {
			parts = append(parts, "📋 MEETINGS: none in the last 7 days", "")
		}
	}
	parts = append(parts, a.linearSection(ctx)...)
	parts = append(parts, a.footer())
	return strings.Join(parts, "\n")
}

// FormatRecent renders transcript previews, one bullet per meeting.
func FormatRecent(recent []*transcript.Transcript) string {
	lines := []string{"📋 RECENT MEETINGS (Last 7 Days):", strings.Repeat("-", 35)}
	for _, t := range recent {
		lines = append(lines,
			fmt.Sprintf("• %s (%s)", orDefault(t.Filename, "Unknown Meeting"), formatDate(t.CreatedAt)),
			fmt.Sprintf("  📝 %s...", preview(t.Text())),
		)
	}
	return strings.Join(lines, "\n")
}

// Selected returns the full content of the given transcripts followed by
// the workspace rendering. It also returns the transcripts that could be
// loaded; when none could, the context is empty.
func (a *Assembler) Selected(ctx context.Context, ids []string) (string, []*transcript.Transcript) {
	var found []*transcript.Transcript
	for _, id := range ids {
		t, err := a.transcripts.Get(ctx, id)
		if err != nil {
			a.logger.Warn("context: selected transcript unavailable", "id", id, "error", err)
			continue
		}
		found = append(found, t)
	}
	if len(found) == 0 {
		return "", nil
	}

	sep := strings.Repeat("=", 60)
	rule := strings.Repeat("-", 40)
	parts := []string{
		"📋 SELECTED MEETING TRANSCRIPTS (COMPLETE CONTENT):",
		sep,
		fmt.Sprintf("NOTE: You have access to ONLY these %d selected transcript(s). Do NOT reference any other meetings or transcripts.", len(found)),
		sep,
	}
	for i, t := range found {
		content := strings.TrimSpace(t.Text())
		if content == "" {
			content = "No content available"
		}
		parts = append(parts,
			fmt.Sprintf("📄 TRANSCRIPT #%d: %s", i+1, orDefault(t.Filename, "Unknown Meeting")),
			fmt.Sprintf("📅 Date: %s", formatDate(t.CreatedAt)),
			rule,
			content,
			rule,
			"",
		)
	}
	parts = append(parts, a.linearSection(ctx)...)
	parts = append(parts, a.footer())
	return strings.Join(parts, "\n"), found
}

// Invalidate drops the cached comprehensive context.
func (a *Assembler) Invalidate() {
	a.mu.Lock()
	a.cached = ""
	a.mu.Unlock()
}

func (a *Assembler) linearSection(ctx context.Context) []string {
	ws, err := a.workspace.Workspace(ctx)
	if err != nil {
		a.logger.Warn("context: linear retrieval failed", "error", err)
		return []string{fmt.Sprintf("🎯 LINEAR: unavailable (%s)", clip(err.Error(), 50)), ""}
	}
	return []string{FormatWorkspace(ws)}
}

func (a *Assembler) footer() string {
	return "🕐 Last updated: " + a.now().Format("2006-01-02 15:04")
}

func preview(content string) string {
	if content == "" {
		return "No content available"
	}
	return strings.TrimSpace(strings.ReplaceAll(clip(content, previewLength), "\n", " "))
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "Unknown Date"
	}
	return t.Format("2006-01-02 15:04")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
