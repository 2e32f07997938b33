package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"medquiz-service/internal/app"
	"medquiz-service/internal/domain"
)

const authPrefix = "auth_"

const (
	genericFailure = "Sorry, there was an error processing your request. Please try again."
	thinking       = "Thinking... I'll have an answer for you shortly."
)

// Sender is the part of *tgbotapi.BotAPI the dispatcher needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Deps are the services the bot commands call into.
type Deps struct {
	Accounts  *app.AccountService
	Handshake *app.HandshakeCoordinator
	Stats     *app.StatsService
	Catalog   *app.Catalog
	Tutor     *app.Tutor
}

// Bot dispatches bot commands to the quiz services.
type Bot struct {
	sender Sender
	deps   Deps
	webURL string
}

func NewBot(sender Sender, deps Deps, publicBaseURL string) *Bot {
	return &Bot{sender: sender, deps: deps, webURL: strings.TrimRight(publicBaseURL, "/")}
}

// Commands is the menu registered with the platform.
var Commands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Start the bot"},
	{Command: "stats", Description: "View your stats"},
	{Command: "categories", Description: "Browse quiz categories"},
	{Command: "help", Description: "Get help"},
	{Command: "ask", Description: "Ask the AI medical tutor"},
	{Command: "web", Description: "Open web interface"},
}

// HandleUpdate processes one update. Failures are logged and answered with an apology.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}

	var err error
	switch msg.Command() {
	case "start":
		err = b.handleStart(ctx, msg)
	case "web":
		err = b.handleWeb(ctx, msg)
	case "help":
		err = b.handleHelp(ctx, msg)
	case "categories":
		err = b.handleCategories(ctx, msg)
	case "stats":
		err = b.handleStats(ctx, msg)
	case "ask":
		err = b.handleAsk(ctx, msg)
	default:
		return
	}
	if err != nil {
		log.Printf("telegram: /%s from %d: %v", msg.Command(), msg.From.ID, err)
		b.reply(msg.Chat.ID, genericFailure, nil)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	arg := strings.TrimSpace(msg.CommandArguments())
	if token, ok := strings.CutPrefix(arg, authPrefix); ok && token != "" {
		link, err := b.deps.Handshake.ClaimHandshake(ctx, token, msg.From.ID)
		if errors.Is(err, domain.ErrHandshakeInvalid) {
			b.reply(msg.Chat.ID, "This login link has expired. Please start the login again from the website.", nil)
			return nil
		}
		if err != nil {
			return err
		}
		b.reply(msg.Chat.ID,
			"*Linking Your Telegram Account*\n\n"+
				"We're connecting your Telegram account to the web interface.\n\n"+
				"Click the button below to complete the authentication:",
			urlKeyboard(button{"Complete Authentication", link}))
		return nil
	}

	if _, _, err := b.deps.Accounts.EnsureExternalUser(ctx, msg.From.ID, profileOf(msg.From)); err != nil {
		return err
	}
	name := tgbotapi.EscapeText(tgbotapi.ModeMarkdown, msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("*Hi, %s! Welcome to MedQuiz*\n\n", name)+
		"Your interactive medical learning companion!\n\n"+
		"*Quick commands*\n"+
		"/stats - Your performance\n"+
		"/categories - Browse topics\n"+
		"/help - Get assistance\n"+
		"/ask - Ask medical questions\n"+
		"/web - Open the web interface\n\n"+
		"*Ready to test your medical knowledge?*", nil)
	return nil
}

func (b *Bot) handleWeb(ctx context.Context, msg *tgbotapi.Message) error {
	link, err := b.deps.Handshake.IssueLoginLink(ctx, msg.From.ID, "")
	if err != nil {
		return err
	}
	b.reply(msg.Chat.ID,
		"*Access the Web Interface*\n\n"+
			"Continue your learning on the web platform with more features and a better viewing experience.",
		urlKeyboard(button{"Open Web Interface", b.webURL}, button{"Login Automatically", link}))
	return nil
}

func (b *Bot) handleHelp(ctx context.Context, msg *tgbotapi.Message) error {
	link, err := b.deps.Handshake.IssueLoginLink(ctx, msg.From.ID, "")
	if err != nil {
		return err
	}
	b.reply(msg.Chat.ID,
		"*Help*\n\n"+
			"/stats - View your learning statistics\n"+
			"/categories - Browse quiz categories\n"+
			"/ask [question] - Ask the AI tutor a medical question\n"+
			"/web - Access the web interface\n"+
			"/help - Show this help message\n\n"+
			"*Example:*\n/ask What are the branches of the facial nerve?\n\n"+
			"The web interface adds image quizzes and detailed statistics:",
		urlKeyboard(button{"Open Web Interface", link}))
	return nil
}

func (b *Bot) handleCategories(ctx context.Context, msg *tgbotapi.Message) error {
	var sb strings.Builder
	sb.WriteString("*Medical Quiz Categories*\n\nChoose a category to test your knowledge:\n\n")
	for _, c := range b.deps.Catalog.Categories() {
		fmt.Fprintf(&sb, "• *%s* (%d topics)\n", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, c.Name), len(c.Subcategories))
	}
	sb.WriteString("\nFor subcategories and detailed content, use the web interface:")

	link, err := b.deps.Handshake.IssueLoginLink(ctx, msg.From.ID, "/categories")
	if err != nil {
		return err
	}
	b.reply(msg.Chat.ID, sb.String(), urlKeyboard(button{"Open Web Interface", link}))
	return nil
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := b.deps.Accounts.FindExternalUser(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(msg.Chat.ID, "*User not found*\n\nIt seems like you haven't started any quizzes yet.\n"+
			"Use the /categories command to browse topics and start learning!", nil)
		return nil
	}

	overview, err := b.deps.Stats.Overview(ctx, user.ID)
	if errors.Is(err, domain.ErrStatsNotFound) {
		b.reply(msg.Chat.ID, "*Your Statistics*\n\nYou haven't attempted any quizzes yet.\n"+
			"Use the /categories command to start learning!", nil)
		return nil
	}
	if err != nil {
		return err
	}

	text := fmt.Sprintf("*Your Learning Statistics*\n\n"+
		"Total Quizzes: *%d*\n"+
		"Correct Answers: *%d*\n"+
		"Accuracy: *%d%%*\n"+
		"Current Streak: *%d*\n"+
		"Best Streak: *%d*\n\n"+
		"Keep up the good work! Regular practice is key to mastering medical knowledge.",
		overview.TotalQuizzes, overview.CorrectAnswers, overview.Accuracy, overview.CurrentStreak, overview.BestStreak)

	link, err := b.deps.Handshake.IssueLoginLink(ctx, msg.From.ID, "/stats")
	if err != nil {
		return err
	}
	b.reply(msg.Chat.ID, text, urlKeyboard(button{"View Detailed Stats on Web", link}))
	return nil
}

func (b *Bot) handleAsk(ctx context.Context, msg *tgbotapi.Message) error {
	question := strings.TrimSpace(msg.CommandArguments())
	if question == "" {
		b.reply(msg.Chat.ID, "Please provide a medical question after the /ask command.\n\n"+
			"Example: /ask What are the branches of the brachial plexus?", nil)
		return nil
	}
	b.reply(msg.Chat.ID, thinking, nil)

	var userID int64
	if user, ok, err := b.deps.Accounts.FindExternalUser(ctx, msg.From.ID); err != nil {
		log.Printf("telegram: lookup %d for /ask: %v", msg.From.ID, err)
	} else if ok {
		userID = user.ID
	}

	answer, err := b.deps.Tutor.Ask(ctx, userID, question)
	if err != nil {
		return err
	}
	// Model output is not guaranteed to be valid Markdown, so it goes out as plain text.
	out := tgbotapi.NewMessage(msg.Chat.ID, answer)
	b.send(out)
	return nil
}

type button struct {
	text string
	url  string
}

func urlKeyboard(buttons ...button) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(btn.text, btn.url)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (b *Bot) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	out := tgbotapi.NewMessage(chatID, text)
	out.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		out.ReplyMarkup = *keyboard
	}
	b.send(out)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.sender.Send(c); err != nil {
		log.Printf("telegram: send: %v", err)
	}
}

func profileOf(u *tgbotapi.User) app.ExternalProfile {
	return app.ExternalProfile{FirstName: u.FirstName, LastName: u.LastName}
}
