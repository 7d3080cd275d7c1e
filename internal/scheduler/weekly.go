package scheduler

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/alpha-machine/alphabot/internal/events"
)

// Summarizer produces the weekly summary text.
type Summarizer interface {
	WeeklySummary(ctx context.Context) (string, error)
}

// Poster posts a message to a Slack channel. *slack.Client satisfies it.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// WeeklySummaryJob posts the weekly summary to channel and announces it.
func WeeklySummaryJob(s Summarizer, p Poster, channel string, pub events.Publisher) Job {
	if pub == nil {
		pub = events.Nop{}
	}
	return func(ctx context.Context) error {
		text, err := s.WeeklySummary(ctx)
		if err != nil {
			return fmt.Errorf("weekly summary: %w", err)
		}
		msg := "📈 *Weekly Summary*\n\n" + text
		if _, _, err := p.PostMessageContext(ctx, channel, slack.MsgOptionText(msg, false)); err != nil {
			return fmt.Errorf("weekly summary: post: %w", err)
		}
		return pub.Publish(ctx, events.SubjectWeeklySummary, events.WeeklySummaryPosted{Channel: channel, Text: text})
	}
}
