package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	apiPkg "github.com/alpha-machine/alphabot/internal/api"
	"github.com/alpha-machine/alphabot/internal/app"
	"github.com/alpha-machine/alphabot/internal/config"
	"github.com/alpha-machine/alphabot/internal/connector"
	slackconn "github.com/alpha-machine/alphabot/internal/connector/slack"
	"github.com/alpha-machine/alphabot/internal/logbuf"
	"github.com/alpha-machine/alphabot/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file (default: environment only)")
	timezone := flag.String("tz", os.Getenv("ALPHABOT_TZ"), "Time zone for scheduled jobs (default: local)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	loc := time.Local
	if *timezone != "" {
		if loc, err = time.LoadLocation(*timezone); err != nil {
			logger.Error("invalid time zone", "tz", *timezone, "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("alphabotd starting",
		"slack_mode", cfg.Slack.Mode,
		"transcripts", cfg.Transcripts.Backend,
		"state", cfg.State.Backend,
		"test_mode", cfg.Linear.TestMode,
	)

	// 1. Stores, clients and the dispatcher
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	logger.Info("dispatcher ready", "commands", a.Dispatcher.Commands())

	// 2. Slack ingress
	var (
		inbound connector.Inbound
		mounts  = apiPkg.Mounts{Webhook: a.Webhook, Logs: logBuf}
	)
	switch cfg.Slack.Mode {
	case "socket":
		conn, err := slackconn.New(ctx, a.Slack, a.SlackConfig, a.Dispatcher, a.Responder, logger)
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		inbound = conn
	default:
		h, err := slackconn.NewHTTPHandler(ctx, a.Slack, a.SlackConfig, a.Dispatcher, a.Responder, logger)
		if err != nil {
			logger.Error("failed to init slack handler", "error", err)
			os.Exit(1)
		}
		inbound = h
		mounts.Slack = h
	}

	// 3. Scheduled jobs
	sched := scheduler.New(loc, logger)
	if expr := cfg.Schedule.WeeklySummaryCron; expr != "" {
		job := scheduler.WeeklySummaryJob(a.Dispatcher, a.Slack, cfg.Schedule.WeeklySummaryChannel, a.Events)
		if err := sched.AddJob("weekly-summary", expr, job); err != nil {
			logger.Error("invalid weekly summary schedule", "cron", expr, "error", err)
			os.Exit(1)
		}
	}
	for _, j := range sched.ListJobs() {
		logger.Info("job scheduled", "name", j.Name, "schedule", j.Schedule, "channel", cfg.Schedule.WeeklySummaryChannel)
	}

	// 4. API server
	apiSrv := apiPkg.NewServer(apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, mounts, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(safeGo(logger, "slack-"+inbound.Name(), func() error { return inbound.Start(gctx) }))
	g.Go(safeGo(logger, "api-server", func() error { return apiSrv.Start(gctx) }))
	if sched.JobCount() > 0 {
		g.Go(safeGo(logger, "scheduler", func() error { return sched.Start(gctx) }))
	}
	logger.Info("alphabotd started", "port", cfg.API.Port, "jobs", sched.JobCount())

	// 5. Graceful shutdown
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component failed", "error", err)
	}
	logger.Info("shutting down")
	if err := inbound.Stop(); err != nil {
		logger.Warn("slack stop", "error", err)
	}
	logger.Info("alphabotd stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// safeGo wraps fn with panic recovery for use in an errgroup. A recovered
// panic is logged and returned as an error so the group shuts down.
func safeGo(logger *slog.Logger, name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		return fn()
	}
}
