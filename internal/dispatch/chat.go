package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpha-machine/alphabot/internal/transcript"
	"github.com/alpha-machine/alphabot/pkg/protocol"
)

const historyLimit = 5

const chatTips = "💬 *Ask me anything about your meetings, clients, or Linear workspace.*\n\n" +
	"• `/chat [question]` answers using all recent context\n" +
	"• `/chat select` picks transcripts for your next question\n" +
	"• `/chat with [question]` picks transcripts for this question"

func (d *Dispatcher) chat(ctx context.Context, inv protocol.Invocation) Response {
	text := strings.TrimSpace(inv.Text)
	lower := strings.ToLower(text)

	switch {
	case text == "":
		return ephemeral(chatTips)
	case lower == "select" || lower == "choose" || lower == "pick" || lower == "transcripts":
		return d.selectionPicker(ctx, inv.UserID)
	case lower == "with":
		return d.selectionPicker(ctx, inv.UserID)
	case strings.HasPrefix(lower, "with "):
		question := strings.TrimSpace(text[len("with "):])
		if question == "" {
			return d.selectionPicker(ctx, inv.UserID)
		}
		return d.inlinePicker(ctx, inv.UserID, question)
	}

	sel, err := d.Sessions.TakeSelection(ctx, inv.UserID)
	if err != nil {
		d.logger.Warn("selection lookup failed", "user", inv.UserID, "error", err)
	}
	if sel != nil && len(sel.TranscriptIDs) > 0 {
		return d.answerWithSelection(ctx, text, sel.TranscriptIDs)
	}
	return d.answerWithAll(ctx, text, inv.ChannelID)
}

// answerWithAll answers from the comprehensive context plus recent channel
// history.
func (d *Dispatcher) answerWithAll(ctx context.Context, question, channelID string) Response {
	var b strings.Builder
	b.WriteString(d.Context.Comprehensive(ctx))
	if d.History != nil && channelID != "" {
		b.WriteString("\n\nRecent Slack History:\n")
		msgs, err := d.History.RecentMessages(ctx, channelID, historyLimit)
		if err != nil {
			fmt.Fprintf(&b, "Could not retrieve Slack history: %v", err)
		} else {
			b.WriteString(strings.Join(msgs, "\n"))
		}
	}

	system, user, missing := d.render("slack_bot_chat", "Chat", map[string]string{
		"context":      b.String(),
		"user_message": question,
	})
	if missing != nil {
		return *missing
	}
	reply, err := d.LLM.Text(ctx, system, user)
	if err != nil {
		return failure(err)
	}
	return ephemeral("🤖 *AI Response:*\n" + reply)
}

// answerWithSelection answers from only the chosen transcripts.
func (d *Dispatcher) answerWithSelection(ctx context.Context, question string, ids []string) Response {
	selected, found := d.Context.Selected(ctx, ids)
	if len(found) == 0 {
		return ephemeral("❌ Could not retrieve selected transcripts.")
	}
	system, user, missing := d.render("slack_bot_chat", "Chat", map[string]string{
		"context":      selected,
		"user_message": question,
	})
	if missing != nil {
		return *missing
	}
	reply, err := d.LLM.Text(ctx, system, user)
	if err != nil {
		return failure(err)
	}
	return ephemeral(fmt.Sprintf("🎯 *AI Response* (using ONLY %d selected transcript(s): %s):\n\n%s",
		len(found), filenames(found), reply))
}

func filenames(ts []*transcript.Transcript) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Filename
	}
	return strings.Join(names, ", ")
}

func (d *Dispatcher) pickerOptions(ctx context.Context, userID string) (Response, bool, []*transcript.Transcript, []string) {
	ts, err := d.Transcripts.Recent(ctx, pickerLimit)
	if err != nil {
		return failure(err), false, nil, nil
	}
	if len(ts) == 0 {
		return ephemeral("📭 No transcripts available for selection."), false, nil, nil
	}
	var current []string
	if sel, err := d.Sessions.PeekSelection(ctx, userID); err == nil && sel != nil {
		current = sel.TranscriptIDs
	}
	return Response{}, true, ts, current
}

func (d *Dispatcher) selectionPicker(ctx context.Context, userID string) Response {
	resp, ok, ts, current := d.pickerOptions(ctx, userID)
	if !ok {
		return resp
	}
	opts, initial := transcriptOptions(ts, current)
	return picker("Select transcripts for your next /chat command", selectionBlocks(opts, initial))
}

func (d *Dispatcher) inlinePicker(ctx context.Context, userID, question string) Response {
	resp, ok, ts, current := d.pickerOptions(ctx, userID)
	if !ok {
		return resp
	}
	opts, initial := transcriptOptions(ts, current)
	return picker("Select transcripts to answer: "+question, inlineBlocks(question, opts, initial))
}
