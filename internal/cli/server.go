package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"medquiz-service/internal/config"
	transport "medquiz-service/internal/transport/http"
	"medquiz-service/internal/transport/telegram"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API and the bot webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go svc.hub.Run(hubCtx)

	var webhook http.Handler
	if cfg.Telegram.Token != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Printf("telegram: bot disabled: %v", err)
		} else {
			bot := telegram.NewBot(api, svc.botDeps(), cfg.Server.PublicBaseURL)
			webhook = bot.WebhookHandler()
			hookURL := cfg.Telegram.WebhookURL
			if hookURL == "" {
				hookURL = cfg.Server.PublicBaseURL
			}
			if err := telegram.RegisterWebhook(api, hookURL); err != nil {
				log.Printf("telegram: webhook setup failed: %v", err)
			}
		}
	} else {
		log.Printf("telegram: TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	api := transport.NewAPI(transport.Services{
		Accounts:  svc.accounts,
		Catalog:   svc.catalog,
		Sessions:  svc.sessions,
		Engine:    svc.engine,
		Stats:     svc.stats,
		Tutor:     svc.tutor,
		Handshake: svc.handshake,
	}, svc.codec, transport.Options{
		PageLimit:    cfg.Quiz.PageLimit,
		SecureCookie: cfg.Auth.SecureCookie,
	})
	router := transport.NewRouter(api, transport.NewWSHandler(svc.hub, svc.engine), webhook)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // covers the tutor timeout
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *services) botDeps() telegram.Deps {
	return telegram.Deps{
		Accounts:  s.accounts,
		Handshake: s.handshake,
		Stats:     s.stats,
		Catalog:   s.catalog,
		Tutor:     s.tutor,
	}
}
