package slackconn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

const (
	mentionFallback = "Hi there! I'm here to help with your questions."
	dmFallback      = "Hi! I'm here to help. You can ask me about projects, meetings, or use slash commands like /chat."
	memoHint        = "📝 I noticed you added a memo reaction! Use `/summarize` to get AI summaries of meetings or client status."
)

const welcomeTemplate = `🎉 Welcome to the team, %s!

I'm Alpha Machine, your AI assistant. I can help you with:

🤖 ` + "`/chat`" + ` - Ask me anything about projects, meetings, or the team
📊 ` + "`/summarize`" + ` - Get meeting summaries or client status updates
🎯 ` + "`/create`" + ` - Analyze and create Linear tickets
👤 ` + "`/teammember`" + ` - Get info about team members and their work
📈 ` + "`/weekly-summary`" + ` - Generate comprehensive weekly reports

Feel free to mention me in any channel or send me a DM anytime!`

// EventHandler answers Events API callbacks: mentions, direct messages,
// memo reactions and new team members.
type EventHandler struct {
	api      *slack.Client
	conv     Conversation
	botID    string
	channels []string
	logger   *slog.Logger
}

// NewEventHandler creates an EventHandler. channels limits mention replies
// to the listed channels; empty means all.
func NewEventHandler(api *slack.Client, conv Conversation, botID string, channels []string, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{api: api, conv: conv, botID: botID, channels: channels, logger: logger}
}

// Handle processes one inner event. Errors are logged, and conversational
// failures are reported in the channel.
func (h *EventHandler) Handle(ctx context.Context, ev slackevents.EventsAPIInnerEvent) {
	switch e := ev.Data.(type) {
	case *slackevents.AppMentionEvent:
		h.mention(ctx, e)
	case *slackevents.MessageEvent:
		h.directMessage(ctx, e)
	case *slackevents.ReactionAddedEvent:
		h.reaction(ctx, e)
	case *slackevents.TeamJoinEvent:
		h.teamJoin(ctx, e)
	default:
		h.logger.Debug("unhandled event", "type", ev.Type)
	}
}

func (h *EventHandler) mention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.BotID != "" || (h.botID != "" && ev.User == h.botID) {
		return
	}
	if !h.isAllowedChannel(ev.Channel) {
		return
	}
	text := StripMention(ev.Text, h.botID)
	reply, err := h.conv.Converse(ctx, text)
	if err != nil {
		h.reportError(ctx, ev.Channel, ev.ThreadTimeStamp, err)
		return
	}
	if reply == "" {
		reply = mentionFallback
	}
	h.post(ctx, ev.Channel, ev.ThreadTimeStamp, "👋 "+MarkdownToMrkdwn(reply))
}

func (h *EventHandler) directMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.ChannelType != "im" {
		return
	}
	// Ignore bot messages (including our own) and edits, deletes, etc.
	if ev.BotID != "" || ev.SubType != "" || ev.User == "" || ev.User == h.botID {
		return
	}
	if ev.Text == "" {
		return
	}
	reply, err := h.conv.Converse(ctx, ev.Text)
	if err != nil {
		h.reportError(ctx, ev.Channel, "", err)
		return
	}
	if reply == "" {
		reply = dmFallback
	}
	h.post(ctx, ev.Channel, "", MarkdownToMrkdwn(reply))
}

func (h *EventHandler) reaction(ctx context.Context, ev *slackevents.ReactionAddedEvent) {
	if ev.Reaction != "memo" && ev.Reaction != "pencil" {
		return
	}
	if ev.Item.Channel == "" {
		return
	}
	if _, err := h.api.PostEphemeralContext(ctx, ev.Item.Channel, ev.User, slack.MsgOptionText(memoHint, false)); err != nil {
		h.logger.Warn("reaction hint failed", "channel", ev.Item.Channel, "user", ev.User, "error", err)
	}
}

func (h *EventHandler) teamJoin(ctx context.Context, ev *slackevents.TeamJoinEvent) {
	if ev.User == nil || ev.User.ID == "" {
		return
	}
	name := ev.User.RealName
	if name == "" {
		name = ev.User.Name
	}
	if name == "" {
		name = "New team member"
	}
	ch, _, _, err := h.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{ev.User.ID}})
	if err != nil {
		h.logger.Warn("opening welcome DM failed", "user", ev.User.ID, "error", err)
		return
	}
	h.post(ctx, ch.ID, "", fmt.Sprintf(welcomeTemplate, name))
}

func (h *EventHandler) reportError(ctx context.Context, channel, threadTS string, err error) {
	h.logger.Error("conversation failed", "channel", channel, "error", err)
	h.post(ctx, channel, threadTS, fmt.Sprintf("❌ Sorry, I encountered an error: %v", err))
}

func (h *EventHandler) post(ctx context.Context, channel, threadTS, text string) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := h.api.PostMessageContext(ctx, channel, opts...); err != nil {
		h.logger.Error("slack: send message", "channel", channel, "error", err)
	}
}

func (h *EventHandler) isAllowedChannel(channel string) bool {
	if len(h.channels) == 0 {
		return true
	}
	for _, ch := range h.channels {
		if ch == channel {
			return true
		}
	}
	return false
}
