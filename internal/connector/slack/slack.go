package slackconn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// NewClient builds the Web API client for cfg. opts are appended, which
// lets tests point it at a local server.
func NewClient(cfg Config, opts ...slack.Option) *slack.Client {
	if cfg.AppToken != "" {
		opts = append([]slack.Option{slack.OptionAppLevelToken(cfg.AppToken)}, opts...)
	}
	return slack.New(cfg.BotToken, opts...)
}

// resolveBotID fills cfg.BotUserID from auth.test when it is not configured.
func resolveBotID(ctx context.Context, api *slack.Client, cfg *Config, logger *slog.Logger) error {
	if cfg.BotUserID != "" {
		return nil
	}
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack bot authorized", "user", auth.User, "team", auth.Team)
	cfg.BotUserID = auth.UserID
	return nil
}

// Connector receives Slack traffic over Socket Mode.
type Connector struct {
	socket *socketmode.Client
	bridge *bridge
	logger *slog.Logger
	cancel context.CancelFunc
}

// New creates a Socket Mode connector.
func New(ctx context.Context, api *slack.Client, cfg Config, d Dispatcher, deliver Deliverer, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "slack", "mode", "socket")
	if err := resolveBotID(ctx, api, &cfg, logger); err != nil {
		return nil, err
	}

	return &Connector{
		socket: socketmode.New(api),
		bridge: newBridge(api, cfg, d, deliver, logger),
		logger: logger,
	}, nil
}

func (c *Connector) Name() string { return "socket" }

// Start begins listening for events via Socket Mode. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// Stop cancels the socket and waits up to DrainTimeout for in-flight
// commands.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.bridge.drain(DrainTimeout)
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeConnected:
				c.logger.Info("socket mode connected")
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeSlashCommand:
				c.handleSlashCommand(ctx, event)
			case socketmode.EventTypeInteractive:
				c.handleInteractive(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	ev, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request)
	c.bridge.event(ctx, ev)
}

func (c *Connector) handleSlashCommand(ctx context.Context, event socketmode.Event) {
	cmd, ok := event.Data.(slack.SlashCommand)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request, slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         ackText(cmd.Command),
	})
	c.bridge.command(ctx, cmd)
}

func (c *Connector) handleInteractive(ctx context.Context, event socketmode.Event) {
	cb, ok := event.Data.(slack.InteractionCallback)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request)
	c.bridge.interaction(ctx, cb)
}
