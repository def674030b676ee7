package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vthunder/lifeos/internal/config"
	"github.com/vthunder/lifeos/internal/effectors"
	"github.com/vthunder/lifeos/internal/executive"
	"github.com/vthunder/lifeos/internal/gateway"
	"github.com/vthunder/lifeos/internal/integrations/openai"
	"github.com/vthunder/lifeos/internal/integrations/telegram"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/scheduler"
	"github.com/vthunder/lifeos/internal/senses"
	"github.com/vthunder/lifeos/internal/session"
	"github.com/vthunder/lifeos/internal/state"
	"github.com/vthunder/lifeos/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant on Telegram or Discord with the reminder scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	started := time.Now()

	cfg, err := loadConfig(config.ModeServe)
	if err != nil {
		return err
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	logging.Info("main", "lifeos starting (transport=%s, timezone=%s)", cfg.Transport, cfg.Location)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logging.Info("main", "Database ready at %s", db.Path())

	loop := newLoop(cfg, db)

	transport, notifier, err := newTransport(cfg)
	if err != nil {
		return err
	}

	inspector := state.NewInspector(db, db.Path(), started)
	handler := session.NewHandler(loop, transport, session.Config{
		PrincipalID: cfg.PrincipalID,
		Inspector:   inspector,
	})
	if notifier == nil {
		notifier = handler
	}

	sched := scheduler.New(scheduler.Config{
		Store:         db,
		Notifier:      notifier,
		Interval:      time.Duration(cfg.PollInterval),
		DefaultChatID: cfg.ReminderChatID(),
	})
	inspector.SetSchedulerClock(sched.LastCycle)

	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if err := handler.Run(ctx); err != nil {
		return fmt.Errorf("transport failed: %w", err)
	}
	logging.Info("main", "Shutting down")
	return nil
}

// newLoop wires the model provider to the execute_sql gateway
func newLoop(cfg *config.Config, db *store.DB) *executive.Loop {
	gw := gateway.New(db, gateway.Options{})
	provider := openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	logging.Info("main", "Using model %s", provider.Model())

	return executive.New(provider, []executive.ToolRunner{gw}, executive.Config{
		MaxTurns:        cfg.Agent.MaxTurns,
		ProviderTimeout: time.Duration(cfg.Agent.ProviderTimeout),
		HistoryLimit:    cfg.Agent.HistoryLimit,
		Schema:          gw.Schema(),
		Location:        cfg.Location,
	})
}

// newTransport builds the chat transport. The notifier is non-nil only when
// reminders need something other than the handler's default delivery.
func newTransport(cfg *config.Config) (session.Transport, scheduler.Notifier, error) {
	switch cfg.Transport {
	case config.TransportTelegram:
		client := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIRoot)
		return session.NewTransport(
			senses.NewTelegramSense(client, senses.DefaultLongPollTimeout),
			effectors.NewTelegramEffector(client),
		), nil, nil

	case config.TransportDiscord:
		sense, err := senses.NewDiscordSense(senses.DiscordConfig{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
		})
		if err != nil {
			return nil, nil, err
		}
		effector := effectors.NewDiscordEffector(sense.Session())

		// without a channel, reminders go to a DM with the principal
		notifier := scheduler.NotifierFunc(func(ctx context.Context, chatID, text string) error {
			if chatID == "" {
				dm, err := effector.ResolveDM(cfg.PrincipalID)
				if err != nil {
					return err
				}
				chatID = dm
			}
			return effector.Send(ctx, chatID, text)
		})
		return session.NewTransport(sense, effector), notifier, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
