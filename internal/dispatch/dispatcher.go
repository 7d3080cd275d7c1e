// Package dispatch turns slash commands and interactive actions into
// AI-generated Slack responses and, after confirmation, Linear writes.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alpha-machine/alphabot/internal/events"
	"github.com/alpha-machine/alphabot/internal/linear"
	"github.com/alpha-machine/alphabot/internal/state"
	"github.com/alpha-machine/alphabot/internal/transcript"
	"github.com/alpha-machine/alphabot/pkg/protocol"
)

// LLM generates free text and schema-constrained JSON.
type LLM interface {
	Text(ctx context.Context, system, user string) (string, error)
	JSON(ctx context.Context, system, user string, schema *protocol.ResponseSchema, out any) (string, error)
}

// Tracker is the issue tracker the dispatcher writes to.
type Tracker interface {
	CreateIssue(ctx context.Context, in linear.IssueInput) (*linear.IssueRef, error)
	UpdateIssue(ctx context.Context, id string, updates map[string]any) (*linear.IssueRef, error)
	TestMode() bool
}

// ContextSource assembles prompt context.
type ContextSource interface {
	Comprehensive(ctx context.Context) string
	Selected(ctx context.Context, ids []string) (string, []*transcript.Transcript)
	Weekly(ctx context.Context) string
}

// Transcripts lists recent transcripts for pickers and summaries.
type Transcripts interface {
	Recent(ctx context.Context, limit int) ([]*transcript.Transcript, error)
}

// Prompts renders named prompt templates.
type Prompts interface {
	Render(name string, vars map[string]string) (system, user string, ok bool)
}

// History reads recent channel messages, oldest first.
type History interface {
	RecentMessages(ctx context.Context, channelID string, limit int) ([]string, error)
}

// Deps are the dispatcher's collaborators. History and Events may be nil.
type Deps struct {
	LLM             LLM
	Tracker         Tracker
	Context         ContextSource
	Transcripts     Transcripts
	Prompts         Prompts
	Sessions        *state.Sessions
	History         History
	Events          events.Publisher
	DefaultAssignee string
}

type handler func(ctx context.Context, inv protocol.Invocation) Response

// Dispatcher routes invocations to command handlers.
type Dispatcher struct {
	Deps
	logger *slog.Logger
	routes map[string]handler
}

// New creates a Dispatcher.
func New(deps Deps, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	d := &Dispatcher{Deps: deps, logger: logger.With("component", "dispatch")}
	d.routes = map[string]handler{
		"chat":           d.chat,
		"summarize":      d.summarize,
		"create":         d.create,
		"create-ticket":  d.create,
		"update":         d.update,
		"teammember":     d.teammember,
		"weekly-summary": d.weeklySummary,
	}
	return d
}

// Commands returns the routed command names.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.routes))
	for n := range d.routes {
		names = append(names, n)
	}
	return names
}

// Dispatch runs one command. It never panics and never returns an empty
// response; every error becomes a user-visible message.
func (d *Dispatcher) Dispatch(ctx context.Context, inv protocol.Invocation) (resp Response) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	name := inv.Name()
	log := d.logger.With("invocation", inv.ID, "command", name, "user", inv.UserID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("command panicked", "panic", r, "stack", string(debug.Stack()))
			resp = failure(fmt.Errorf("internal error: %v", r))
		}
		if resp.Kind == Failure && resp.Text == "" {
			resp.Text = fmt.Sprintf("❌ Error processing %s: %v", inv.Command, resp.Err)
		}
		log.Info("command handled", "kind", resp.Kind.String(), "elapsed", time.Since(start))
	}()

	h, ok := d.routes[name]
	if !ok {
		log.Warn("unknown command")
		return ephemeral(fmt.Sprintf("Unknown command: %s", inv.Command))
	}
	resp = h(ctx, inv)
	if resp.Err != nil {
		log.Warn("command failed", "error", resp.Err)
	}
	return resp
}

// Converse answers a mention or direct message with the full context. An
// empty reply is left for the caller to replace.
func (d *Dispatcher) Converse(ctx context.Context, text string) (string, error) {
	if text == "" {
		text = "Hello! How can I help you?"
	}
	system, user, ok := d.Prompts.Render("slack_bot_mention", map[string]string{
		"context":      d.Context.Comprehensive(ctx),
		"user_message": text,
	})
	if !ok {
		return "", errPromptMissing("Mention")
	}
	return d.LLM.Text(ctx, system, user)
}

// WeeklySummary generates the weekly report text.
func (d *Dispatcher) WeeklySummary(ctx context.Context) (string, error) {
	system, user, ok := d.Prompts.Render("slack_bot_weekly_summary", map[string]string{
		"context": d.Context.Weekly(ctx),
	})
	if !ok {
		return "", errPromptMissing("Weekly summary")
	}
	reply, err := d.LLM.Text(ctx, system, user)
	if err != nil {
		return "", err
	}
	if reply == "" {
		reply = "Unable to generate weekly summary."
	}
	return reply, nil
}

// promptMissingError marks a prompt absent from the loaded set.
type promptMissingError struct{ label string }

func (e promptMissingError) Error() string {
	return fmt.Sprintf("%s prompt configuration not found.", e.label)
}

func errPromptMissing(label string) error { return promptMissingError{label: label} }

// render fills a prompt or returns the response to send when it is missing.
func (d *Dispatcher) render(name, label string, vars map[string]string) (system, user string, missing *Response) {
	system, user, ok := d.Prompts.Render(name, vars)
	if !ok {
		r := ephemeral("❌ " + errPromptMissing(label).Error())
		return "", "", &r
	}
	return system, user, nil
}

func (d *Dispatcher) publish(ctx context.Context, subject string, payload any) {
	if err := d.Events.Publish(ctx, subject, payload); err != nil {
		d.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
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

// clipEllipsis is clip with "..." appended when anything was cut.
func clipEllipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return clip(s, n) + "..."
}

func formatDate(t time.Time, layout string) string {
	if t.IsZero() {
		return "Unknown date"
	}
	return t.Format(layout)
}

// titleCase upper-cases the first letter of each word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
