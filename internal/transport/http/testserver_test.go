package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"medquiz-service/internal/app"
	"medquiz-service/internal/auth"
	"medquiz-service/internal/domain"
	"medquiz-service/internal/infra/memory"
)

type testEnv struct {
	server *httptest.Server
	store  *memory.Store
	hs     *app.HandshakeCoordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	err := store.Seed(context.Background(), []domain.Question{
		{Prompt: "The heart has four chambers.", Answer: true, Explanation: "Two atria, two ventricles.", Category: "Anatomy", Subcategory: "Thorax"},
		{Prompt: "Insulin raises blood glucose.", Answer: false, Category: "Physiology", Subcategory: "Endocrine"},
	}, []domain.ImageItem{
		{Category: "Anatomy", Subcategory: "Thorax", ImageURL: "/img/1.png", CorrectAnswer: "Aorta", Options: []string{"Aorta", "Trachea"}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	accounts := app.NewAccountService(store, store, 4)
	stats := app.NewStatsService(store, store, store)
	hub := app.NewLeaderboardHub(stats)
	hubCtx, stopHub := context.WithCancel(context.Background())
	t.Cleanup(stopHub)
	go hub.Run(hubCtx)
	sessions := app.NewSessionManager(store)
	engine := app.NewScoringEngine(memory.NewItemCache(store, time.Minute), store, sessions, store, hub)
	hs := app.NewHandshakeCoordinator(accounts, memory.NewTokenStore(), app.HandshakeConfig{
		BotName:       "MedQuizBot",
		PublicBaseURL: "https://quiz.example.com",
	})

	api := NewAPI(Services{
		Accounts:  accounts,
		Catalog:   app.NewCatalog(store, nil),
		Sessions:  sessions,
		Engine:    engine,
		Stats:     stats,
		Tutor:     app.NewTutor(nil, store, time.Second),
		Handshake: hs,
	}, auth.NewSessionCodec("test-secret", time.Hour), Options{})

	srv := httptest.NewServer(NewRouter(api, NewWSHandler(hub, engine), nil))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: store, hs: hs}
}

// newClient returns a browser-like client that keeps cookies and does not follow redirects.
func (e *testEnv) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path string, body any) (int, []byte, http.Header) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data, resp.Header
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func (e *testEnv) registerClient(t *testing.T, username string) *http.Client {
	t.Helper()
	c := e.newClient(t)
	status, body, _ := e.do(t, c, http.MethodPost, "/api/register", map[string]string{
		"username":  username,
		"password":  "secret",
		"firstName": username,
	})
	if status != http.StatusCreated {
		t.Fatalf("register status %d: %s", status, body)
	}
	return c
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}
