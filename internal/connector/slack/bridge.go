package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/alpha-machine/alphabot/internal/dispatch"
	"github.com/alpha-machine/alphabot/pkg/protocol"
)

// Dispatcher runs commands and interactive actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv protocol.Invocation) dispatch.Response
	HandleAction(ctx context.Context, act protocol.Action) dispatch.Response
	Conversation
}

// Conversation answers free-form mentions and direct messages.
type Conversation interface {
	Converse(ctx context.Context, text string) (string, error)
}

// Deliverer posts a response to a Slack response_url.
type Deliverer interface {
	Deliver(ctx context.Context, url string, resp dispatch.Response) error
}

// Config holds Slack connector configuration.
type Config struct {
	BotToken      string   // xoxb-... Bot User OAuth Token
	AppToken      string   // xapp-... App-Level Token (Socket Mode only)
	SigningSecret string   // request signing secret (HTTP mode only)
	BotUserID     string   // optional; resolved with auth.test when empty
	Channels      []string // Optional: only answer messages in these channels (empty = all)
}

// DrainTimeout bounds how long Stop lets in-flight commands finish before
// their contexts are cancelled.
const DrainTimeout = 30 * time.Second

// bridge turns parsed Slack payloads into dispatcher calls. Socket Mode and
// HTTP ingress share it so both behave the same once a payload is decoded.
type bridge struct {
	dispatcher Dispatcher
	deliver    Deliverer
	events     *EventHandler
	logger     *slog.Logger
	wg         sync.WaitGroup

	// life outlives the ingress context and is cancelled only when a drain
	// runs out of time.
	life  context.Context
	abort context.CancelFunc
}

func newBridge(api *slack.Client, cfg Config, d Dispatcher, deliver Deliverer, logger *slog.Logger) *bridge {
	life, abort := context.WithCancel(context.Background())
	return &bridge{
		dispatcher: d,
		deliver:    deliver,
		events:     NewEventHandler(api, d, cfg.BotUserID, cfg.Channels, logger),
		logger:     logger,
		life:       life,
		abort:      abort,
	}
}

// goSafe runs fn in a tracked goroutine, logging instead of crashing on
// panic. fn gets ctx's values but not its cancellation; its context ends
// only when a drain times out.
func (b *bridge) goSafe(ctx context.Context, name string, fn func(context.Context)) {
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(b.life, cancel)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer stop()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("goroutine panicked", "name", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn(work)
	}()
}

// drain waits for background work. After timeout the remaining work is
// cancelled and drain reports false once it has returned.
func (b *bridge) drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
	}
	b.logger.Warn("in-flight work cancelled at shutdown", "timeout", timeout)
	b.abort()
	<-done
	return false
}

// ackText is the immediate reply to a slash command.
func ackText(command string) string {
	return fmt.Sprintf("Processing your %s command... ⏳", command)
}

// command dispatches cmd in the background and delivers the result to its
// response_url.
func (b *bridge) command(ctx context.Context, cmd slack.SlashCommand) {
	inv := protocol.Invocation{
		ID:          uuid.NewString(),
		Command:     cmd.Command,
		Text:        cmd.Text,
		UserID:      cmd.UserID,
		ChannelID:   cmd.ChannelID,
		ResponseURL: cmd.ResponseURL,
	}
	b.logger.Info("slash command received", "invocation", inv.ID, "command", inv.Command, "user", inv.UserID, "channel", inv.ChannelID)
	b.goSafe(ctx, "command "+inv.Command, func(ctx context.Context) {
		resp := b.dispatcher.Dispatch(ctx, inv)
		if err := b.deliver.Deliver(ctx, inv.ResponseURL, resp); err != nil {
			b.logger.Warn("command response not delivered", "invocation", inv.ID, "error", err)
		}
	})
}

// interaction handles block_actions payloads. Other interaction types are
// ignored.
func (b *bridge) interaction(ctx context.Context, cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions {
		b.logger.Debug("ignoring interaction", "type", cb.Type)
		return
	}
	act, ok := actionFromCallback(cb)
	if !ok {
		return
	}
	act.ID = uuid.NewString()
	b.logger.Info("interaction received", "invocation", act.ID, "action", act.ActionID, "user", act.UserID)
	b.goSafe(ctx, "action "+act.ActionID, func(ctx context.Context) {
		resp := b.dispatcher.HandleAction(ctx, act)
		if err := b.deliver.Deliver(ctx, act.ResponseURL, resp); err != nil {
			b.logger.Warn("action response not delivered", "invocation", act.ID, "error", err)
		}
	})
}

// event handles an Events API callback in the background.
func (b *bridge) event(ctx context.Context, ev slackevents.EventsAPIEvent) {
	if ev.Type != slackevents.CallbackEvent {
		return
	}
	b.goSafe(ctx, "event "+ev.InnerEvent.Type, func(ctx context.Context) {
		b.events.Handle(ctx, ev.InnerEvent)
	})
}

// actionFromCallback extracts the first block action and any transcript
// ids chosen in the message's multi-selects.
func actionFromCallback(cb slack.InteractionCallback) (protocol.Action, bool) {
	if len(cb.ActionCallback.BlockActions) == 0 {
		return protocol.Action{}, false
	}
	a := cb.ActionCallback.BlockActions[0]
	act := protocol.Action{
		ActionID:    a.ActionID,
		Value:       a.Value,
		UserID:      cb.User.ID,
		ChannelID:   cb.Channel.ID,
		ResponseURL: cb.ResponseURL,
	}
	if isTranscriptSelect(a.ActionID) {
		act.SelectedIDs = optionValues(a.SelectedOptions)
		return act, true
	}
	if cb.BlockActionState != nil {
		for _, block := range cb.BlockActionState.Values {
			for actionID, state := range block {
				if isTranscriptSelect(actionID) {
					act.SelectedIDs = append(act.SelectedIDs, optionValues(state.SelectedOptions)...)
				}
			}
		}
	}
	return act, true
}

func isTranscriptSelect(actionID string) bool {
	return actionID == dispatch.ActionSelectTranscripts || actionID == dispatch.ActionInlineTranscripts
}

func optionValues(opts []slack.OptionBlockObject) []string {
	ids := make([]string, 0, len(opts))
	for _, o := range opts {
		if o.Value != "" {
			ids = append(ids, o.Value)
		}
	}
	return ids
}

// StripMention removes the <@BOTID> mention from message text.
func StripMention(text, botID string) string {
	mention := fmt.Sprintf("<@%s>", botID)
	text = strings.Replace(text, mention, "", 1)
	return strings.TrimSpace(text)
}
