package slackconn

import "testing"

func TestMarkdownToMrkdwn(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"bold", "This is **bold** text", "This is *bold* text"},
		{"italic", "This is *italic* text", "This is _italic_ text"},
		{"bold and italic", "**bold** and *italic*", "*bold* and _italic_"},
		{"strikethrough", "~~deleted~~ text", "~deleted~ text"},
		{"link", "Click [here](https://example.com) now", "Click <https://example.com|here> now"},
		{"inline code", "Use `*not bold*` in code", "Use `*not bold*` in code"},
		{"code block", "```\ncode here\n```", "```\ncode here\n```"},
		{"plain", "Just plain text", "Just plain text"},
		{"ticket list", "**ALP-12** is [open](https://linear.app/a/ALP-12)", "*ALP-12* is <https://linear.app/a/ALP-12|open>"},
		{"heading", "## Action Items", "*Action Items*"},
		{"bold heading", "### **Risks**", "*Risks*"},
		{"hash without space", "#channel stays", "#channel stays"},
		{"bullets", "- one\n* two\n  + nested", "• one\n• two\n  • nested"},
		{"bullet with bold", "- **Owner:** Dana", "• *Owner:* Dana"},
		{"fenced block untouched", "```go\nx := **y**\n```\n**after**", "```go\nx := **y**\n```\n*after*"},
		{"link inside code", "`[a](b)` and [a](b)", "`[a](b)` and <b|a>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkdownToMrkdwn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertInlineIncompleteLink(t *testing.T) {
	for _, in := range []string{"[no link here", "[text](no close", "a ] ( b"} {
		if got := convertInline(in); got != in {
			t.Errorf("convertInline(%q) = %q", in, got)
		}
	}
}

func TestHeadingLevel(t *testing.T) {
	tests := map[string]int{"# a": 1, "###### a": 6, "####### a": 0, "#a": 0, "#": 0, "a # b": 0}
	for in, want := range tests {
		if got := headingLevel(in); got != want {
			t.Errorf("headingLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestStripMention(t *testing.T) {
	tests := []struct {
		input string
		botID string
		want  string
	}{
		{"<@U123> hello", "U123", "hello"},
		{"hey <@U123> there", "U123", "hey  there"},
		{"<@U999> hello", "U123", "<@U999> hello"},
		{"<@U123>", "U123", ""},
	}
	for _, tt := range tests {
		if got := StripMention(tt.input, tt.botID); got != tt.want {
			t.Errorf("StripMention(%q, %q) = %q, want %q", tt.input, tt.botID, got, tt.want)
		}
	}
}
