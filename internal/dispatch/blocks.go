package dispatch

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/alpha-machine/alphabot/internal/transcript"
)

// Action ids carried by the interactive messages this package builds.
const (
	ActionSelectTranscripts = "chat_select_transcript_selection"
	ActionInlineTranscripts = "chat_inline_transcript_selection"
	ActionSetSelection      = "set_transcript_selection"
	ActionAnswerSelected    = "answer_inline_selected"
	ActionAnswerAll         = "answer_inline_all"
	ActionCreateYes         = "create_tickets_yes"
	ActionCreateNo          = "create_tickets_no"
)

const pickerLimit = 10

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(mrkdwn(text), nil, nil)
}

func contextNote(text string) *slack.ContextBlock {
	return slack.NewContextBlock("", mrkdwn(text))
}

func button(actionID, label, value string, style slack.Style) *slack.ButtonBlockElement {
	b := slack.NewButtonBlockElement(actionID, value, plain(label))
	if style != "" {
		b = b.WithStyle(style)
	}
	return b
}

// transcriptOptions builds the multi-select options, marking ids in
// selected as initially chosen.
func transcriptOptions(ts []*transcript.Transcript, selected []string) (opts, initial []*slack.OptionBlockObject) {
	chosen := make(map[string]bool, len(selected))
	for _, id := range selected {
		chosen[id] = true
	}
	for _, t := range ts {
		label := clip(fmt.Sprintf("%s (%s)", t.Filename, formatDate(t.CreatedAt, "01/02 15:04")), 75)
		opt := slack.NewOptionBlockObject(t.ID, plain(label), nil)
		opts = append(opts, opt)
		if chosen[t.ID] {
			initial = append(initial, opt)
		}
	}
	return opts, initial
}

func transcriptSelect(actionID, placeholder string, opts, initial []*slack.OptionBlockObject) *slack.MultiSelectBlockElement {
	sel := slack.NewOptionsMultiSelectBlockElement(slack.MultiOptTypeStatic, plain(placeholder), actionID, opts...)
	if len(initial) > 0 {
		sel.InitialOptions = initial
	}
	return sel
}

func selectionBlocks(opts, initial []*slack.OptionBlockObject) []slack.Block {
	sel := transcriptSelect(ActionSelectTranscripts, "Select transcripts...", opts, initial)
	return []slack.Block{
		slack.NewSectionBlock(
			mrkdwn("📋 *Select Transcripts* for your next `/chat` command:\n\n🎛️ *Choose which transcripts to use as context:*"),
			nil, slack.NewAccessory(sel)),
		slack.NewActionBlock("transcript_selection_actions",
			button(ActionSetSelection, "✅ Set Selection", "set", slack.StylePrimary)),
		contextNote("💡 After setting your selection, use `/chat [your question]` and it will use only the selected transcripts."),
	}
}

func inlineBlocks(question string, opts, initial []*slack.OptionBlockObject) []slack.Block {
	sel := transcriptSelect(ActionInlineTranscripts, "Select transcripts...", opts, initial)
	value := clip(question, 2000)
	return []slack.Block{
		section(fmt.Sprintf("🎯 *Your Question*: %s\n\n📋 *Select which transcripts to analyze:*", question)),
		slack.NewSectionBlock(mrkdwn("🎛️ *Choose transcripts for context:*"), nil, slack.NewAccessory(sel)),
		slack.NewActionBlock("inline_answer_actions",
			button(ActionAnswerSelected, "🚀 Answer with Selected", value, slack.StylePrimary),
			button(ActionAnswerAll, "📋 Use All Recent", value, "")),
		contextNote("💡 Select transcripts above, then click a button to get your AI-powered answer."),
	}
}

func confirmBlocks(text, payload string) []slack.Block {
	return []slack.Block{
		section(text),
		slack.NewActionBlock("ticket_confirmation",
			button(ActionCreateYes, "✅ Yes, Create Tickets", payload, slack.StylePrimary),
			button(ActionCreateNo, "❌ No, Cancel", payload, slack.StyleDanger)),
	}
}
