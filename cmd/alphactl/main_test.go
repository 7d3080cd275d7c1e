package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/alpha-machine/alphabot/internal/dispatch"
	"github.com/alpha-machine/alphabot/internal/logbuf"
)

func TestLogsQuery(t *testing.T) {
	logsLimit, logsLevel, logsComponent, logsInvocation, logsSince = 50, "warn", "dispatch", "inv-9", 15*time.Minute
	t.Cleanup(func() {
		logsLimit, logsLevel, logsComponent, logsInvocation, logsSince = 200, "", "", "", 0
	})

	now := time.UnixMilli(1_700_000_900_000)
	q := logsQuery(now)
	want := map[string]string{
		"limit":      "50",
		"level":      "warn",
		"component":  "dispatch",
		"invocation": "inv-9",
		"since":      "1700000000000",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	printEntries(&buf, []logbuf.Entry{{
		Time:       time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		Level:      "ERROR",
		Message:    "handler failed",
		Component:  "dispatch",
		Invocation: "inv-1",
		Attrs:      map[string]any{"command": "create", "error": "boom"},
	}})
	want := "10:00:00.000 ERROR [dispatch] handler failed invocation=inv-1 command=create error=boom\n"
	if buf.String() != want {
		t.Errorf("got  %q\nwant %q", buf.String(), want)
	}
}

func TestPrintResponsePending(t *testing.T) {
	runUser = "U1"
	t.Cleanup(func() { runUser = "alphactl" })

	text := "📋 *Linear Ticket Analysis:*"
	resp := dispatch.Response{
		Kind: dispatch.Pending,
		Text: text,
		Blocks: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
			slack.NewActionBlock("ticket_confirmation",
				slack.NewButtonBlockElement(dispatch.ActionCreateYes, "p", slack.NewTextBlockObject(slack.PlainTextType, "✅ Yes, Create Tickets", true, false)),
				slack.NewButtonBlockElement(dispatch.ActionCreateNo, "p", slack.NewTextBlockObject(slack.PlainTextType, "❌ No, Cancel", true, false)),
			),
		},
	}

	var buf bytes.Buffer
	printResponse(&buf, resp)
	out := buf.String()
	if strings.Count(out, text) != 1 {
		t.Errorf("section text should not repeat the response text:\n%s", out)
	}
	for _, want := range []string{"[✅ Yes, Create Tickets] create_tickets_yes", "[❌ No, Cancel] create_tickets_no", "alphactl confirm yes|no --user U1"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPrintResponsePickerOptions(t *testing.T) {
	opt := slack.NewOptionBlockObject("t1", slack.NewTextBlockObject(slack.PlainTextType, "kickoff.txt (03/04 10:00)", true, false), nil)
	sel := slack.NewOptionsMultiSelectBlockElement(slack.MultiOptTypeStatic, nil, dispatch.ActionSelectTranscripts, opt)
	resp := dispatch.Response{
		Kind: dispatch.Success,
		Blocks: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "Select Transcripts", false, false), nil, slack.NewAccessory(sel)),
		},
	}

	var buf bytes.Buffer
	printResponse(&buf, resp)
	if !strings.Contains(buf.String(), "- kickoff.txt (03/04 10:00) (t1)") {
		t.Errorf("output = %q", buf.String())
	}
}
