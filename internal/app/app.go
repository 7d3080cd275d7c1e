// Package app builds the alphabot component graph from a Config. The daemon
// and the operator CLI share it so a locally run command behaves exactly as
// one arriving from Slack.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/slack-go/slack"

	"github.com/alpha-machine/alphabot/internal/assembler"
	"github.com/alpha-machine/alphabot/internal/config"
	slackconn "github.com/alpha-machine/alphabot/internal/connector/slack"
	"github.com/alpha-machine/alphabot/internal/connector/webhook"
	"github.com/alpha-machine/alphabot/internal/dispatch"
	"github.com/alpha-machine/alphabot/internal/events"
	"github.com/alpha-machine/alphabot/internal/ingest"
	"github.com/alpha-machine/alphabot/internal/linear"
	"github.com/alpha-machine/alphabot/internal/prompts"
	"github.com/alpha-machine/alphabot/internal/provider"
	"github.com/alpha-machine/alphabot/internal/state"
	"github.com/alpha-machine/alphabot/internal/transcript"
)

// WebhookEndpoint is the ingestion endpoint name under /api/webhook/.
const WebhookEndpoint = "transcripts"

// App holds the wired components.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Slack       *slack.Client
	SlackConfig slackconn.Config
	Linear      *linear.Client
	Transcripts transcript.Store
	State       state.Store
	Sessions    *state.Sessions
	Context     *assembler.Assembler
	Events      events.Publisher
	Dispatcher  *dispatch.Dispatcher
	Responder   *dispatch.Responder
	Ingestor    *ingest.Ingestor
	Webhook     *webhook.Handler
}

// Build opens every store and client named by cfg. On error anything
// already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("app: data dir: %w", err)
		}
	}

	set, err := loadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	gen := provider.NewGenerator(newProvider(cfg.Provider), logger.With("component", "provider"))
	logger.Info("provider initialized", "type", cfg.Provider.Type, "model", cfg.Provider.Model)

	a.Linear = newLinear(cfg.Linear, logger)

	ts, err := openTranscripts(ctx, cfg.Transcripts)
	if err != nil {
		return nil, err
	}
	a.Transcripts = ts
	st, err := openState(ctx, cfg.State)
	if err != nil {
		return nil, err
	}
	a.State = st
	a.Sessions = state.NewSessions(a.State, time.Duration(cfg.State.TTLMinutes)*time.Minute)
	a.Sessions.SetLogger(logger.With("component", "state"))

	pub, err := openEvents(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	a.Events = pub

	a.Context = assembler.New(a.Transcripts, a.Linear,
		assembler.WithCache(time.Duration(cfg.Context.CacheMinutes)*time.Minute),
		assembler.WithLogger(logger.With("component", "assembler")),
	)

	a.SlackConfig = slackconn.Config{
		BotToken:      cfg.Slack.BotToken,
		AppToken:      cfg.Slack.AppToken,
		SigningSecret: cfg.Slack.SigningSecret,
		BotUserID:     cfg.Slack.BotUserID,
		Channels:      cfg.Slack.Channels,
	}
	a.Slack = slackconn.NewClient(a.SlackConfig)

	deps := dispatch.Deps{
		LLM:             gen,
		Tracker:         a.Linear,
		Context:         a.Context,
		Transcripts:     a.Transcripts,
		Prompts:         set,
		Sessions:        a.Sessions,
		Events:          a.Events,
		DefaultAssignee: cfg.Linear.DefaultAssignee,
	}
	if cfg.Slack.BotToken != "" {
		deps.History = slackconn.NewHistory(a.Slack)
	}
	a.Dispatcher = dispatch.New(deps, logger)
	a.Responder = dispatch.NewResponder(logger)

	opts := []ingest.Option{ingest.WithOnSave(a.Context.Invalidate)}
	if cfg.Ingest.Filter {
		opts = append(opts, ingest.WithFilter(gen, set))
	}
	a.Ingestor = ingest.New(a.Transcripts, a.Events, logger, opts...)
	a.Webhook = webhook.New(webhook.Config{
		Endpoints: map[string]webhook.EndpointConfig{
			WebhookEndpoint: {Secret: cfg.Ingest.Secret, BearerToken: cfg.Ingest.BearerToken},
		},
	}, a.Ingestor, logger)

	return a, nil
}

// Close releases stores and connections.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		a.Events.Close()
	}
	if a.State != nil {
		errs = append(errs, a.State.Close())
	}
	if a.Transcripts != nil {
		errs = append(errs, a.Transcripts.Close())
	}
	return errors.Join(errs...)
}

func loadPrompts(path string) (*prompts.Set, error) {
	if path == "" {
		return prompts.Default()
	}
	return prompts.Load(path)
}

func newProvider(cfg config.ProviderConfig) provider.Provider {
	switch cfg.Type {
	case "anthropic":
		var opts []provider.AnthropicOption
		if cfg.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(cfg.Model))
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, provider.WithAnthropicMaxTokens(cfg.MaxTokens))
		}
		opts = append(opts, provider.WithAnthropicTemperature(cfg.Temperature))
		return provider.NewAnthropic(cfg.APIKey, opts...)
	default:
		var opts []provider.OpenAIOption
		if cfg.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, provider.WithModel(cfg.Model))
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, provider.WithMaxTokens(cfg.MaxTokens))
		}
		opts = append(opts, provider.WithTemperature(cfg.Temperature))
		return provider.NewOpenAI(cfg.APIKey, opts...)
	}
}

func newLinear(cfg config.LinearConfig, logger *slog.Logger) *linear.Client {
	opts := []linear.Option{
		linear.WithTeam(cfg.TeamName),
		linear.WithTestMode(cfg.TestMode),
		linear.WithLogger(logger.With("component", "linear")),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, linear.WithEndpoint(cfg.Endpoint))
	}
	return linear.New(cfg.APIKey, opts...)
}

func openTranscripts(ctx context.Context, cfg config.TranscriptsConfig) (transcript.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return transcript.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "sqlite":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return transcript.NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("app: unknown transcripts backend %q", cfg.Backend)
	}
}

func openState(ctx context.Context, cfg config.StateConfig) (state.Store, error) {
	switch cfg.Backend {
	case "memory":
		return state.NewMemoryStore(), nil
	case "sqlite":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return state.NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		return state.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("app: unknown state backend %q", cfg.Backend)
	}
}

func openEvents(cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return events.Nop{}, nil
	}
	return events.NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, logger)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("app: create %s: %w", filepath.Dir(path), err)
	}
	return nil
}
