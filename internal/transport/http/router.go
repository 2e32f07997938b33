package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the REST API, the leaderboard websocket and the optional bot webhook.
func NewRouter(api *API, ws *WSHandler, webhook http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if ws != nil {
		r.With(api.withSession).Get("/ws/leaderboard", ws.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		if webhook != nil {
			r.Method(http.MethodPost, "/telegram/webhook", webhook)
		} else {
			r.Post("/telegram/webhook", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(api.withSession)

			r.Get("/user", api.handleUser)
			r.Post("/register", api.handleRegister)
			r.Post("/login", api.handleLogin)
			r.Post("/logout", api.handleLogout)

			r.Get("/categories", api.handleCategories)
			r.Get("/stats", api.handleStats)
			r.Get("/stats/category", api.handleCategoryStats)
			r.Get("/progress", api.handleProgress)
			r.Get("/leaderboard", api.handleLeaderboard)
			r.Get("/activity", api.handleActivity)
			r.Post("/ask", api.handleAsk)

			r.Get("/quiz", api.handleQuestions)
			r.Post("/quiz/start", api.handleStartQuiz)
			r.Post("/quiz/answer", api.handleAnswer)
			r.Post("/quiz/end", api.handleEndQuiz)
			r.Get("/session/current", api.handleCurrentSession)

			r.Get("/image-quiz/categories", api.handleImageCategories)
			r.Get("/image-quiz/images", api.handleImages)
			r.Post("/image-quiz/start", api.handleStartImageQuiz)
			r.Post("/image-quiz/answer", api.handleImageAnswer)

			r.Get("/telegram/login", api.handleTelegramLogin)
			r.Get("/telegram/callback", api.handleTelegramCallback)
		})
	})

	return r
}
