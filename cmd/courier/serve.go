package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/courier/internal/api"
	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/directory"
	"github.com/mattjoyce/courier/internal/dispatch"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/lock"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/notify"
	"github.com/mattjoyce/courier/internal/queue"
	"github.com/mattjoyce/courier/internal/scheduler"
	"github.com/mattjoyce/courier/internal/storage"
	"github.com/mattjoyce/courier/internal/store"
	"github.com/mattjoyce/courier/internal/trigger"
	"github.com/mattjoyce/courier/internal/webhook"
)

func serveCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook gateway, relay trigger and admin API in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

// openStorage opens the configured backend. For SQLite it also takes the
// single-instance lock; release must be called on shutdown.
func openStorage(ctx context.Context, cfg *config.Config) (*sql.DB, storage.Dialect, func(), error) {
	release := func() {}
	if cfg.Storage.Driver == string(storage.DialectSQLite) {
		pidLock, err := lock.AcquirePIDLock(lock.PathFor(cfg.Storage.Path))
		if err != nil {
			return nil, "", nil, fmt.Errorf("another instance may be running: %w", err)
		}
		release = func() { _ = pidLock.Release() }
	}

	db, dialect, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		release()
		return nil, "", nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	return db, dialect, func() {
		_ = db.Close()
		release()
	}, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("courier starting", "version", version, "config", cfg.SourcePath, "storage", cfg.Storage.Driver)

	db, dialect, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	base := log.Get()
	hub := events.NewHub(256)
	q := queue.New(db, dialect, cfg.Trigger.Retry.MaxAttempts)
	dir := directory.New(db, dialect, base)

	var outbox store.Outbox
	if cfg.Trigger.Enabled {
		outbox = q
	}
	st := store.New(db, dialect, outbox, hub, base)

	if cfg.Slack.BotToken == "" {
		logger.Warn("slack.bot_token not configured; direct delivery will fail and fall back to the relay trigger")
	}
	sender := &notify.Retrying{
		Next: notify.NewSlackSender(cfg.Slack.BotToken, notify.SlackOptions{
			APIURL:  cfg.Slack.APIURL,
			Timeout: cfg.Slack.Timeout,
		}),
		MaxAttempts: cfg.Slack.Retry.MaxAttempts,
		BackoffBase: cfg.Slack.Retry.BackoffBase,
		Logger:      log.WithComponent("notify"),
	}
	relay := webhook.NewRelay(dir, st, notify.Formatter{FallbackChannel: cfg.Slack.FallbackChannel}, sender, base)

	webhookConfig, err := webhook.FromGlobalConfig(cfg.Webhook)
	if err != nil {
		return fmt.Errorf("configure webhook: %w", err)
	}
	webhookServer := webhook.New(webhookConfig, relay, base)

	sched := scheduler.New(cfg, q, st, hub, base)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var components sync.WaitGroup
	errCh := make(chan error, 3)
	run := func(name string, start func(context.Context) error) {
		components.Go(func() {
			err := start(ctx)
			if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		})
	}

	run("webhook", webhookServer.Start)

	if cfg.Trigger.Enabled {
		tr := trigger.New(st, notify.NewWebhookSender(cfg.Trigger.WebhookURL, cfg.Trigger.Timeout), cfg.Trigger.SettleAfter, base)
		disp := dispatch.New(q, tr, hub, dispatch.Options{
			PollInterval: cfg.Trigger.PollInterval,
			Timeout:      cfg.Trigger.Timeout,
			BackoffBase:  cfg.Trigger.Retry.BackoffBase,
		})
		run("dispatcher", disp.Start)
		logger.Info("relay trigger enabled", "settle_after", cfg.Trigger.SettleAfter, "max_attempts", cfg.Trigger.Retry.MaxAttempts)
	} else {
		logger.Warn("relay trigger disabled; undelivered events are only stored")
	}

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}, dir, st, q, hub, base)
		run("api", apiServer.Start)
		logger.Info("admin API enabled", "listen", cfg.API.Listen)
	}

	logger.Info("courier running (press Ctrl+C to stop)")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
		logger.Error("component failed", "error", runErr)
	}
	cancel()
	components.Wait()

	if !webhookServer.Drain(webhookConfig.ProcessTimeout) {
		logger.Warn("in-flight webhook processing did not finish before shutdown", "timeout", webhookConfig.ProcessTimeout)
	}

	logger.Info("courier stopped")
	return runErr
}
