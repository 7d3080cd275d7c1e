package slackconn

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// History reads recent channel messages through conversations.history.
type History struct {
	api *slack.Client
}

// NewHistory creates a History reader.
func NewHistory(api *slack.Client) *History { return &History{api: api} }

// RecentMessages returns up to limit messages, oldest first, formatted as
// "<@user>: text".
func (h *History) RecentMessages(ctx context.Context, channelID string, limit int) ([]string, error) {
	resp, err := h.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("slack: conversation history: %w", err)
	}
	out := make([]string, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		if m.Text == "" {
			continue
		}
		who := m.User
		if who == "" {
			who = m.BotID
		}
		out = append(out, fmt.Sprintf("<@%s>: %s", who, m.Text))
	}
	return out, nil
}
