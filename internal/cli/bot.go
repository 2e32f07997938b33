package cli

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"medquiz-service/internal/config"
	"medquiz-service/internal/transport/telegram"
)

// NewBotCmd runs the bot with long polling, for deployments without a public https URL.
func NewBotCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot with long polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *configPath)
		},
	}
}

func runBot(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("telegram token not configured (TELEGRAM_BOT_TOKEN)")
	}
	if cfg.Postgres.URL == "" {
		log.Printf("telegram: no postgres configured, accounts created by the bot will not be visible to the web server")
	} else if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return telegram.NewBot(api, svc.botDeps(), cfg.Server.PublicBaseURL).Poll(ctx, api)
}
