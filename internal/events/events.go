// Package events publishes domain events (tickets created, transcripts
// ingested) to NATS so other services can follow what the bot does.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects, relative to the publisher's prefix.
const (
	SubjectTicketsCreated     = "tickets.created"
	SubjectTicketUpdated      = "tickets.updated"
	SubjectTranscriptIngested = "transcripts.ingested"
	SubjectWeeklySummary      = "summaries.weekly"
)

// Publisher emits events. Publishing is best effort: callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close()
}

// Envelope wraps every payload on the wire.
type Envelope struct {
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketsCreated is published after a confirmed ticket batch.
type TicketsCreated struct {
	UserID  string   `json:"user_id"`
	Request string   `json:"request"`
	Issues  []string `json:"issues"`
	Test    bool     `json:"test_mode"`
}

// TicketUpdated is published after an update is applied.
type TicketUpdated struct {
	UserID  string `json:"user_id"`
	Ticket  string `json:"ticket"`
	Summary string `json:"summary"`
}

// TranscriptIngested is published after a transcript is stored.
type TranscriptIngested struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Source   string `json:"source"`
	Filtered bool   `json:"filtered"`
}

// WeeklySummaryPosted is published after the scheduled weekly summary is
// posted.
type WeeklySummaryPosted struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// NATSPublisher publishes JSON envelopes on a core NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to url. Subjects are published as
// prefix + "." + subject.
func NewNATSPublisher(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("alphabot"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, payload any) error {
	full := Subject(p.prefix, subject)
	data, err := json.Marshal(Envelope{Subject: full, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", full, err)
	}
	if err := p.nc.Publish(full, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", full, err)
	}
	p.logger.Debug("event published", "subject", full)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

// Subject joins prefix and subject.
func Subject(prefix, subject string) string {
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close()                                     {}
