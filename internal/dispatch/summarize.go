package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/alpha-machine/alphabot/pkg/protocol"
)

const summaryTranscriptLimit = 3000

var clientWord = regexp.MustCompile(`(?i)client`)

func (d *Dispatcher) summarize(ctx context.Context, inv protocol.Invocation) Response {
	text := strings.TrimSpace(inv.Text)
	fields := strings.Fields(strings.ToLower(text))

	switch {
	case len(fields) == 0:
		return d.meetingSummary(ctx)
	case fields[0] == "last" || fields[0] == "recent" || fields[0] == "latest":
		return d.meetingSummary(ctx)
	case clientWord.MatchString(text):
		return d.clientStatus(ctx, strings.TrimSpace(clientWord.ReplaceAllString(text, "")))
	default:
		return d.meetingSummary(ctx)
	}
}

func (d *Dispatcher) meetingSummary(ctx context.Context) Response {
	ts, err := d.Transcripts.Recent(ctx, 1)
	if err != nil {
		return failure(err)
	}
	if len(ts) == 0 {
		return ephemeral("📭 No recent meetings found.")
	}
	t := ts[0]
	content := t.Text()
	if strings.TrimSpace(content) == "" {
		return ephemeral("📭 No transcript content found for recent meeting.")
	}

	date := formatDate(t.CreatedAt, "2006-01-02 15:04")
	system, user, missing := d.render("slack_bot_summarize_meeting", "Meeting summary", map[string]string{
		"context":            fmt.Sprintf("Meeting: %s | Date: %s", t.Filename, date),
		"meeting_transcript": clip(content, summaryTranscriptLimit),
	})
	if missing != nil {
		return *missing
	}
	summary, err := d.LLM.Text(ctx, system, user)
	if err != nil {
		return failure(err)
	}
	if summary == "" {
		summary = "Unable to generate meeting summary."
	}
	return ephemeral(fmt.Sprintf("📅 *Meeting Summary - %s*\n_%s_\n\n%s", t.Filename, date, summary))
}

func (d *Dispatcher) clientStatus(ctx context.Context, name string) Response {
	if name == "" {
		return ephemeral("Please specify a client name: `/summarize client [client_name]`")
	}
	system, user, missing := d.render("slack_bot_client_status", "Client status", map[string]string{
		"client_name": name,
		"context":     d.Context.Comprehensive(ctx),
	})
	if missing != nil {
		return *missing
	}
	status, err := d.LLM.Text(ctx, system, user)
	if err != nil {
		return failure(err)
	}
	if status == "" {
		status = "No information found for client: " + name
	}
	return ephemeral(fmt.Sprintf("📊 *Client Status: %s*\n\n%s", titleCase(name), status))
}
