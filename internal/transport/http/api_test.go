package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"medquiz-service/internal/domain"
)

func TestGuestUser(t *testing.T) {
	env := newTestEnv(t)
	status, body, _ := env.do(t, env.newClient(t), http.MethodGet, "/api/user", nil)
	if status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	u := decode[userView](t, body)
	if !u.IsGuest || u.ID != 0 || u.Name != "Guest User" {
		t.Fatalf("unexpected guest view %+v", u)
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "ana")

	_, body, _ := env.do(t, c, http.MethodGet, "/api/user", nil)
	if u := decode[userView](t, body); u.IsGuest || u.Username != "ana" {
		t.Fatalf("expected ana to be logged in, got %+v", u)
	}

	status, body, _ := env.do(t, env.newClient(t), http.MethodPost, "/api/register", map[string]string{"username": "ana", "password": "x"})
	if status != http.StatusConflict {
		t.Fatalf("duplicate register status %d: %s", status, body)
	}

	status, _, _ = env.do(t, c, http.MethodPost, "/api/logout", nil)
	if status != http.StatusOK {
		t.Fatalf("logout status %d", status)
	}
	_, body, _ = env.do(t, c, http.MethodGet, "/api/user", nil)
	if u := decode[userView](t, body); !u.IsGuest {
		t.Fatalf("expected guest after logout, got %+v", u)
	}

	status, body, _ = env.do(t, c, http.MethodPost, "/api/login", map[string]string{"username": "ana", "password": "wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad login status %d", status)
	}
	if msg := decode[errorBody](t, body).Message; msg == "" {
		t.Fatalf("expected error message")
	}
	status, _, _ = env.do(t, c, http.MethodPost, "/api/login", map[string]string{"username": "ana", "password": "secret"})
	if status != http.StatusOK {
		t.Fatalf("login status %d", status)
	}
}

func TestQuizFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "ben")

	status, body, _ := env.do(t, c, http.MethodGet, "/api/quiz", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("missing category status %d", status)
	}

	_, body, _ = env.do(t, c, http.MethodGet, "/api/quiz?category=Anatomy", nil)
	if strings.Contains(string(body), `"answer"`) {
		t.Fatalf("question list leaks answers: %s", body)
	}
	qs := decode[struct {
		Questions []questionView `json:"questions"`
	}](t, body)
	if len(qs.Questions) != 1 {
		t.Fatalf("expected 1 anatomy question, got %d", len(qs.Questions))
	}

	status, body, _ = env.do(t, c, http.MethodPost, "/api/quiz/start", map[string]string{"category": "Anatomy", "subcategory": "Thorax"})
	if status != http.StatusOK {
		t.Fatalf("start status %d: %s", status, body)
	}
	started := decode[map[string]int64](t, body)
	if started["sessionId"] == 0 {
		t.Fatalf("missing session id: %s", body)
	}

	qid := qs.Questions[0].ID
	status, body, _ = env.do(t, c, http.MethodPost, "/api/quiz/answer", map[string]any{"questionId": qid, "answer": true})
	if status != http.StatusOK {
		t.Fatalf("answer status %d: %s", status, body)
	}
	if v := decode[domain.Verdict](t, body); !v.IsCorrect || v.CorrectAnswer != true {
		t.Fatalf("unexpected verdict %+v", v)
	}

	status, _, _ = env.do(t, c, http.MethodPost, "/api/quiz/answer", map[string]any{"questionId": qid, "answer": true})
	if status != http.StatusConflict {
		t.Fatalf("duplicate answer status %d", status)
	}

	_, body, _ = env.do(t, c, http.MethodGet, "/api/session/current", nil)
	cur := decode[sessionView](t, body)
	if cur.Completed != 1 || cur.Total != domain.DefaultTotalQuestions || cur.Title != "Thorax Quiz" {
		t.Fatalf("unexpected current session %+v", cur)
	}

	_, body, _ = env.do(t, c, http.MethodGet, "/api/stats", nil)
	if !strings.Contains(string(body), `"totalQuizzes":1`) {
		t.Fatalf("stats not updated: %s", body)
	}

	_, body, _ = env.do(t, c, http.MethodGet, "/api/activity?limit=1", nil)
	if !strings.Contains(string(body), "Completed Quiz") {
		t.Fatalf("activity feed missing entry: %s", body)
	}

	status, _, _ = env.do(t, c, http.MethodPost, "/api/quiz/end", nil)
	if status != http.StatusOK {
		t.Fatalf("end status %d", status)
	}
	_, body, _ = env.do(t, c, http.MethodGet, "/api/session/current", nil)
	if strings.TrimSpace(string(body)) != "null" {
		t.Fatalf("expected no session, got %s", body)
	}
}

func TestImageQuizAcceptsStringIDs(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "cy")

	_, body, _ := env.do(t, c, http.MethodGet, "/api/image-quiz/images?category=Thorax", nil)
	images := decode[struct {
		Images []imageView `json:"images"`
	}](t, body)
	if len(images.Images) != 1 {
		t.Fatalf("expected one image, got %s", body)
	}

	status, body, _ := env.do(t, c, http.MethodPost, "/api/image-quiz/start", map[string]string{"category": "Anatomy"})
	if status != http.StatusOK {
		t.Fatalf("start status %d: %s", status, body)
	}
	_, body, _ = env.do(t, c, http.MethodGet, "/api/session/current", nil)
	if cur := decode[sessionView](t, body); cur.Category != domain.ImageQuizCategory || cur.Subcategory != "Anatomy" {
		t.Fatalf("unexpected image session %+v", cur)
	}

	status, body, _ = env.do(t, c, http.MethodPost, "/api/image-quiz/answer", map[string]string{"imageId": images.Images[0].ID, "answer": "aorta"})
	if status != http.StatusOK {
		t.Fatalf("answer status %d: %s", status, body)
	}
	v := decode[domain.Verdict](t, body)
	if v.IsCorrect || v.CorrectAnswer != "Aorta" {
		t.Fatalf("matching must be case-sensitive, got %+v", v)
	}
}

func TestAnswerRequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	status, _, _ := env.do(t, env.newClient(t), http.MethodPost, "/api/quiz/answer", map[string]any{"questionId": 1, "answer": true})
	if status != http.StatusUnauthorized {
		t.Fatalf("status %d", status)
	}
}

func TestAskWithoutModelFallsBack(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)
	status, _, _ := env.do(t, c, http.MethodPost, "/api/ask", map[string]string{"question": ""})
	if status != http.StatusBadRequest {
		t.Fatalf("empty question status %d", status)
	}
	status, body, _ := env.do(t, c, http.MethodPost, "/api/ask", map[string]string{"question": "What does the aorta do?"})
	if status != http.StatusOK {
		t.Fatalf("ask status %d", status)
	}
	if decode[map[string]string](t, body)["response"] == "" {
		t.Fatalf("expected a response, got %s", body)
	}
}

func TestTelegramHandshake(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	status, _, hdr := env.do(t, c, http.MethodGet, "/api/telegram/login", nil)
	if status != http.StatusFound {
		t.Fatalf("login status %d", status)
	}
	loc, err := url.Parse(hdr.Get("Location"))
	if err != nil || loc.Host != "t.me" {
		t.Fatalf("unexpected deep link %q", hdr.Get("Location"))
	}
	token := strings.TrimPrefix(loc.Query().Get("start"), "auth_")
	if token == "" {
		t.Fatalf("deep link carries no token: %s", loc)
	}

	if _, err := env.hs.ClaimHandshake(context.Background(), token, 555); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// The state comes from the cookie when the query omits it.
	status, _, hdr = env.do(t, c, http.MethodGet, "/api/telegram/callback?id=555&redirect=//evil.com", nil)
	if status != http.StatusFound {
		t.Fatalf("callback status %d", status)
	}
	if got := hdr.Get("Location"); got != "/" {
		t.Fatalf("expected redirect to /, got %q", got)
	}

	_, body, _ := env.do(t, c, http.MethodGet, "/api/user", nil)
	u := decode[userView](t, body)
	if u.IsGuest || u.Username != "telegram_555" {
		t.Fatalf("unexpected user after handshake %+v", u)
	}

	// Tokens are single use.
	status, _, _ = env.do(t, env.newClient(t), http.MethodGet, "/api/telegram/callback?id=555&state="+token, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("replayed token status %d", status)
	}
}

func TestTelegramCallbackValidatesID(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"", "?id=abc"} {
		status, _, _ := env.do(t, env.newClient(t), http.MethodGet, "/api/telegram/callback"+q, nil)
		if status != http.StatusBadRequest {
			t.Fatalf("callback%s status %d", q, status)
		}
	}
}

func TestWebhookAlwaysOK(t *testing.T) {
	env := newTestEnv(t)
	status, _, _ := env.do(t, env.newClient(t), http.MethodPost, "/api/telegram/webhook", map[string]string{"junk": "x"})
	if status != http.StatusOK {
		t.Fatalf("webhook status %d", status)
	}
}

func TestCategoriesAndLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "dee")
	env.do(t, c, http.MethodPost, "/api/quiz/answer", map[string]any{"questionId": 1, "answer": true})

	_, body, _ := env.do(t, c, http.MethodGet, "/api/categories", nil)
	cats := decode[map[string][]string](t, body)
	if len(cats["Anatomy"]) != 7 || len(cats["Physiology"]) != 11 {
		t.Fatalf("unexpected categories %v", cats)
	}

	_, body, _ = env.do(t, c, http.MethodGet, "/api/leaderboard", nil)
	entries := decode[[]domain.LeaderboardEntry](t, body)
	if len(entries) != 1 || entries[0].Username != "dee" || entries[0].Accuracy != 100 {
		t.Fatalf("unexpected leaderboard %+v", entries)
	}
}
