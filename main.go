package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"

	"mercora/backend/features/reindex"
	"mercora/backend/internal/app"
	"mercora/backend/internal/config"
	"mercora/backend/internal/logger"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 2. Infrastructure
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// 3. Features
	application, err := app.New(cfg, deps.DB, deps.Index, deps.Publisher())
	if err != nil {
		return err
	}
	defer application.Close()

	// 4. Worker (Reindex Consumer)
	if deps.NSQProducer != nil && cfg.NSQLookupd != "" {
		consumer, err := startReindexConsumer(cfg, application, log)
		if err != nil {
			slog.Error("failed to start NSQ reindex consumer", "error", err)
		} else {
			defer consumer.Stop()
		}
	}

	if cfg.ReindexOnStartup {
		go func() {
			report, err := application.Reindex.Run(ctx, reindex.TriggerStartup)
			if err != nil {
				slog.Warn("startup reindex skipped", "error", err)
				return
			}
			slog.Info("startup reindex finished", "run_id", report.RunID, "success", report.Success)
		}()
	}

	// 5. Start Server
	return application.Run(ctx)
}

func startReindexConsumer(cfg *config.Config, application *app.App, log *slog.Logger) (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = 1
	nsqCfg.MaxAttempts = 5
	// nsqd caps message timeouts at 15m by default.
	timeout := min(time.Duration(cfg.ReindexTimeoutMinutes)*time.Minute, 15*time.Minute)
	if timeout > nsqCfg.MsgTimeout {
		nsqCfg.MsgTimeout = timeout
	}

	consumer, err := nsq.NewConsumer(config.TopicReindex, config.ChannelReindexWorker, nsqCfg)
	if err != nil {
		return nil, err
	}
	consumer.SetLogger(slog.NewLogLogger(log.Handler(), slog.LevelWarn), nsq.LogLevelWarning)
	consumer.AddHandler(application.ReindexConsumer)

	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return nil, errors.Join(errors.New("failed to connect to NSQLookupd"), err)
	}
	slog.Info("NSQ reindex consumer connected", "topic", config.TopicReindex)
	return consumer, nil
}
