package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// WebhookHandler returns the endpoint the platform posts updates to.
// It always answers 200 so the platform does not retry malformed or failed updates.
func (b *Bot) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			log.Printf("telegram: decode webhook update: %v", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		b.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})
}

// WebhookPath is where the HTTP router mounts WebhookHandler.
const WebhookPath = "/api/telegram/webhook"

// RegisterWebhook points the platform at baseURL+WebhookPath and publishes the command menu.
// Non-https URLs are skipped since the platform rejects them.
func RegisterWebhook(api *tgbotapi.BotAPI, baseURL string) error {
	if !strings.HasPrefix(baseURL, "https://") {
		log.Printf("telegram: webhook url %q is not https, skipping registration", baseURL)
		return nil
	}
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	hook, err := tgbotapi.NewWebhook(strings.TrimRight(baseURL, "/") + WebhookPath)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	if _, err := api.Request(hook); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if _, err := api.Request(tgbotapi.NewSetMyCommands(Commands...)); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	log.Printf("telegram: webhook set to %s%s", strings.TrimRight(baseURL, "/"), WebhookPath)
	return nil
}

// Poll consumes updates with long polling until ctx is done.
func (b *Bot) Poll(ctx context.Context, api *tgbotapi.BotAPI) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if _, err := api.Request(tgbotapi.NewSetMyCommands(Commands...)); err != nil {
		log.Printf("telegram: set commands: %v", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := api.GetUpdatesChan(cfg)
	log.Printf("telegram: polling as @%s", api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}
