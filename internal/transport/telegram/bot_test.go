package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"medquiz-service/internal/app"
	"medquiz-service/internal/domain"
	"medquiz-service/internal/infra/memory"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatalf("no message sent")
	}
	return s.sent[len(s.sent)-1]
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type botEnv struct {
	bot    *Bot
	sender *fakeSender
	store  *memory.Store
	hs     *app.HandshakeCoordinator
	acc    *app.AccountService
}

func newBotEnv(t *testing.T) *botEnv {
	t.Helper()
	store := memory.NewStore()
	accounts := app.NewAccountService(store, store, 4)
	hs := app.NewHandshakeCoordinator(accounts, memory.NewTokenStore(), app.HandshakeConfig{
		BotName:       "MedQuizBot",
		PublicBaseURL: "https://quiz.example.com",
	})
	sender := &fakeSender{}
	bot := NewBot(sender, Deps{
		Accounts:  accounts,
		Handshake: hs,
		Stats:     app.NewStatsService(store, store, store),
		Catalog:   app.NewCatalog(store, nil),
		Tutor:     app.NewTutor(nil, store, time.Second),
	}, "https://quiz.example.com/")
	return &botEnv{bot: bot, sender: sender, store: store, hs: hs, acc: accounts}
}

func command(fromID int64, text string) tgbotapi.Update {
	cmd := text
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmd = text[:i]
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: fromID, FirstName: "Sam"},
		Chat:     &tgbotapi.Chat{ID: fromID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func buttonURLs(t *testing.T, m tgbotapi.MessageConfig) []string {
	t.Helper()
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", m.ReplyMarkup)
	}
	var urls []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.URL != nil {
				urls = append(urls, *btn.URL)
			}
		}
	}
	return urls
}

func TestStartWithAuthTokenClaimsHandshake(t *testing.T) {
	env := newBotEnv(t)
	ctx := context.Background()

	h, _, err := env.hs.BeginHandshake(ctx, "web-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	env.bot.HandleUpdate(ctx, command(555, "/start auth_"+h.Token))

	urls := buttonURLs(t, env.sender.last(t))
	if len(urls) != 1 || !strings.Contains(urls[0], "state="+h.Token) || !strings.Contains(urls[0], "id=555") {
		t.Fatalf("unexpected callback button %v", urls)
	}

	res, err := env.hs.CompleteHandshake(ctx, "555", h.Token, "/stats")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Created || res.Redirect != "/stats" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestStartWithUnknownTokenApologises(t *testing.T) {
	env := newBotEnv(t)
	env.bot.HandleUpdate(context.Background(), command(555, "/start auth_deadbeef"))
	if !strings.Contains(env.sender.last(t).Text, "expired") {
		t.Fatalf("unexpected reply %q", env.sender.last(t).Text)
	}
}

func TestPlainStartCreatesUser(t *testing.T) {
	env := newBotEnv(t)
	ctx := context.Background()
	env.bot.HandleUpdate(ctx, command(777, "/start"))

	if !strings.Contains(env.sender.last(t).Text, "Hi, Sam!") {
		t.Fatalf("unexpected welcome %q", env.sender.last(t).Text)
	}
	user, ok, err := env.acc.FindExternalUser(ctx, 777)
	if err != nil || !ok {
		t.Fatalf("expected user to be created, ok=%v err=%v", ok, err)
	}
	if user.Username != "telegram_777" || user.FirstName != "Sam" {
		t.Fatalf("unexpected user %+v", user)
	}

	env.bot.HandleUpdate(ctx, command(777, "/start"))
	again, _, err := env.acc.FindExternalUser(ctx, 777)
	if err != nil || again.ID != user.ID {
		t.Fatalf("second /start must reuse user %d, got %+v err=%v", user.ID, again, err)
	}
}

func TestStartEscapesMarkdownInName(t *testing.T) {
	env := newBotEnv(t)
	upd := command(778, "/start")
	upd.Message.From.FirstName = "dr_*house*"
	env.bot.HandleUpdate(context.Background(), upd)

	m := env.sender.last(t)
	if m.ParseMode != tgbotapi.ModeMarkdown {
		t.Fatalf("parse mode = %q", m.ParseMode)
	}
	if !strings.Contains(m.Text, `Hi, dr\_\*house\*!`) {
		t.Fatalf("name not escaped: %q", m.Text)
	}
}

func TestStatsCommand(t *testing.T) {
	env := newBotEnv(t)
	ctx := context.Background()

	env.bot.HandleUpdate(ctx, command(900, "/stats"))
	if !strings.Contains(env.sender.last(t).Text, "User not found") {
		t.Fatalf("unexpected reply %q", env.sender.last(t).Text)
	}

	user, _, err := env.acc.EnsureExternalUser(ctx, 900, app.ExternalProfile{})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := env.store.UpdateStats(ctx, user.ID, func(s *domain.UserStats) {
		s.RecordAnswer("Anatomy-Thorax", true, "2026-03-14")
		s.RecordAnswer("Anatomy-Thorax", false, "2026-03-14")
	}); err != nil {
		t.Fatalf("update stats: %v", err)
	}

	env.bot.HandleUpdate(ctx, command(900, "/stats"))
	m := env.sender.last(t)
	if !strings.Contains(m.Text, "Total Quizzes: *2*") || !strings.Contains(m.Text, "Accuracy: *50%*") {
		t.Fatalf("unexpected stats text %q", m.Text)
	}
	urls := buttonURLs(t, m)
	if len(urls) != 1 || !strings.Contains(urls[0], "redirect=%2Fstats") {
		t.Fatalf("unexpected stats button %v", urls)
	}
}

func TestWebCommandIssuesUsableLoginLink(t *testing.T) {
	env := newBotEnv(t)
	ctx := context.Background()
	env.bot.HandleUpdate(ctx, command(321, "/web"))

	urls := buttonURLs(t, env.sender.last(t))
	if len(urls) != 2 || urls[0] != "https://quiz.example.com" {
		t.Fatalf("unexpected buttons %v", urls)
	}
	req := httptest.NewRequest(http.MethodGet, urls[1], nil)
	q := req.URL.Query()
	if _, err := env.hs.CompleteHandshake(ctx, q.Get("id"), q.Get("state"), q.Get("redirect")); err != nil {
		t.Fatalf("login link should complete: %v", err)
	}
}

func TestCategoriesCommand(t *testing.T) {
	env := newBotEnv(t)
	env.bot.HandleUpdate(context.Background(), command(12, "/categories"))
	m := env.sender.last(t)
	if !strings.Contains(m.Text, "*Anatomy*") || !strings.Contains(m.Text, "*Physiology*") {
		t.Fatalf("unexpected categories text %q", m.Text)
	}
	if urls := buttonURLs(t, m); !strings.Contains(urls[0], "redirect=%2Fcategories") {
		t.Fatalf("unexpected button %v", urls)
	}
}

func TestAskCommand(t *testing.T) {
	env := newBotEnv(t)
	ctx := context.Background()

	env.bot.HandleUpdate(ctx, command(44, "/ask"))
	if !strings.Contains(env.sender.last(t).Text, "Please provide a medical question") {
		t.Fatalf("unexpected reply %q", env.sender.last(t).Text)
	}

	user, _, err := env.acc.EnsureExternalUser(ctx, 44, app.ExternalProfile{})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	before := env.sender.count()
	env.bot.HandleUpdate(ctx, command(44, "/ask What is the sinoatrial node?"))
	if env.sender.count() != before+2 {
		t.Fatalf("expected thinking and answer messages, got %d", env.sender.count()-before)
	}
	if env.sender.last(t).Text != app.TutorFallback {
		t.Fatalf("expected fallback answer, got %q", env.sender.last(t).Text)
	}

	records, err := env.store.ListActivity(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(records) != 1 || records[0].Kind != domain.ActivityAskAI {
		t.Fatalf("expected one ask_ai record, got %+v", records)
	}
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	env := newBotEnv(t)
	h := env.bot.WebhookHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{not json")))
	if rec.Code != http.StatusOK {
		t.Fatalf("malformed update status %d", rec.Code)
	}

	body := `{"update_id":1,"message":{"message_id":1,"from":{"id":5,"first_name":"Ada"},"chat":{"id":5,"type":"private"},"text":"/start","entities":[{"type":"bot_command","offset":0,"length":6}]}}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d", rec.Code)
	}
	if _, ok, _ := env.acc.FindExternalUser(context.Background(), 5); !ok {
		t.Fatalf("webhook /start should create the user")
	}
}
