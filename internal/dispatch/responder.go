package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// TimeoutNotice is posted when the real response could not be delivered in
// time.
const TimeoutNotice = "⚠️ Response took longer than expected. The operation may still be processing."

// Responder posts responses to Slack response_urls.
type Responder struct {
	client          *http.Client
	timeout         time.Duration
	fallbackTimeout time.Duration
	logger          *slog.Logger
}

// NewResponder creates a Responder. logger may be nil.
func NewResponder(logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		client:          &http.Client{},
		timeout:         5 * time.Second,
		fallbackTimeout: 3 * time.Second,
		logger:          logger.With("component", "responder"),
	}
}

// SetTimeouts overrides the delivery and fallback deadlines.
func (r *Responder) SetTimeouts(delivery, fallback time.Duration) {
	r.timeout = delivery
	r.fallbackTimeout = fallback
}

// Deliver posts resp to url. When the post times out a short notice is
// sent instead so the user is not left waiting.
func (r *Responder) Deliver(ctx context.Context, url string, resp Response) error {
	if url == "" || resp.Empty() {
		return nil
	}
	err := r.post(ctx, url, resp.Webhook(), r.timeout)
	if err == nil {
		return nil
	}
	if !isTimeout(err) {
		r.logger.Error("response delivery failed", "error", err)
		return err
	}

	r.logger.Warn("response delivery timed out, sending notice", "error", err)
	notice := &slack.WebhookMessage{ResponseType: slack.ResponseTypeEphemeral, Text: TimeoutNotice}
	if ferr := r.post(ctx, url, notice, r.fallbackTimeout); ferr != nil {
		r.logger.Error("timeout notice delivery failed", "error", ferr)
	}
	return err
}

func (r *Responder) post(ctx context.Context, url string, msg *slack.WebhookMessage, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := slack.PostWebhookCustomHTTPContext(ctx, url, r.client, msg); err != nil {
		return fmt.Errorf("dispatch: post response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
