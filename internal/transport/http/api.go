package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"medquiz-service/internal/app"
	"medquiz-service/internal/auth"
	"medquiz-service/internal/domain"
)

// API exposes the quiz services over JSON.
type API struct {
	accounts     *app.AccountService
	catalog      *app.Catalog
	sessions     *app.SessionManager
	engine       *app.ScoringEngine
	stats        *app.StatsService
	tutor        *app.Tutor
	handshake    *app.HandshakeCoordinator
	codec        *auth.SessionCodec
	pageLimit    int
	secureCookie bool
}

// Services groups the collaborators the API depends on.
type Services struct {
	Accounts  *app.AccountService
	Catalog   *app.Catalog
	Sessions  *app.SessionManager
	Engine    *app.ScoringEngine
	Stats     *app.StatsService
	Tutor     *app.Tutor
	Handshake *app.HandshakeCoordinator
}

// Options tunes presentation details.
type Options struct {
	PageLimit    int
	SecureCookie bool
}

func NewAPI(svc Services, codec *auth.SessionCodec, opts Options) *API {
	if opts.PageLimit <= 0 {
		opts.PageLimit = domain.DefaultTotalQuestions
	}
	return &API{
		accounts:     svc.Accounts,
		catalog:      svc.Catalog,
		sessions:     svc.Sessions,
		engine:       svc.Engine,
		stats:        svc.Stats,
		tutor:        svc.Tutor,
		handshake:    svc.Handshake,
		codec:        codec,
		pageLimit:    opts.PageLimit,
		secureCookie: opts.SecureCookie,
	}
}

var (
	errMissingAnswer = fmt.Errorf("%w: item id and answer are required", domain.ErrBadRequest)
	errInvalidLimit  = fmt.Errorf("%w: invalid limit", domain.ErrBadRequest)
)

type userView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	IsGuest   bool   `json:"isGuest"`
}

func viewOf(u domain.User) userView {
	return userView{
		ID:        u.ID,
		Name:      u.DisplayName(),
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
	}
}

var guestView = userView{ID: 0, Name: "Guest User", IsGuest: true}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	if !s.LoggedIn() {
		writeJSON(w, http.StatusOK, guestView)
		return
	}
	user, err := a.accounts.GetUser(r.Context(), s.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		writeJSON(w, http.StatusOK, guestView)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(user))
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in app.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !a.login(w, r, user.ID) {
		return
	}
	v := viewOf(user)
	writeJSON(w, http.StatusCreated, v)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.accounts.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !a.login(w, r, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(user))
}

// login binds the current session to userID and rewrites the cookie.
func (a *API) login(w http.ResponseWriter, r *http.Request, userID int64) bool {
	s := currentSession(r)
	s.UserID = userID
	s.Pending = ""
	if err := a.saveSession(w, s); err != nil {
		writeError(w, r, domain.Internal("save session", err))
		return false
	}
	return true
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.clearSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]string)
	for _, c := range a.catalog.Categories() {
		out[c.Name] = c.Subcategories
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	overview, err := a.stats.Overview(r.Context(), currentSession(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *API) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	if !s.LoggedIn() {
		writeError(w, r, domain.ErrNotLoggedIn)
		return
	}
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, r, domain.ErrMissingCategory)
		return
	}
	out, err := a.stats.CategoryStats(r.Context(), s.UserID, category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	out, err := a.stats.Progress(r.Context(), currentSession(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.stats.Leaderboard(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board.Entries)
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := app.DefaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, errInvalidLimit)
			return
		}
		limit = n
	}
	feed, err := a.stats.RecentActivity(r.Context(), currentSession(r).UserID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

type askRequest struct {
	Question string `json:"question"`
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	var in askRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	answer, err := a.tutor.Ask(r.Context(), currentSession(r).UserID, in.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": answer})
}

// questionView omits the answer so clients must submit to be graded.
type questionView struct {
	ID          int64  `json:"id"`
	Prompt      string `json:"question"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
}

func (a *API) handleQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	questions, err := a.catalog.ListQuestions(r.Context(), q.Get("category"), q.Get("subcategory"), a.pageLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]questionView, 0, len(questions))
	for _, qs := range questions {
		out = append(out, questionView{ID: qs.ID, Prompt: qs.Prompt, Category: qs.Category, Subcategory: qs.Subcategory})
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": out})
}

type startRequest struct {
	Category       string `json:"category"`
	Subcategory    string `json:"subcategory"`
	TotalQuestions int    `json:"totalQuestions"`
}

func (a *API) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	var in startRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := a.sessions.StartSession(r.Context(), currentSession(r).UserID, in.Category, in.Subcategory, in.TotalQuestions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"sessionId": session.ID})
}

func (a *API) handleStartImageQuiz(w http.ResponseWriter, r *http.Request) {
	var in startRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := a.sessions.StartSession(r.Context(), currentSession(r).UserID, domain.ImageQuizCategory, in.Category, in.TotalQuestions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"sessionId": session.ID})
}

type answerRequest struct {
	QuestionID *itemID `json:"questionId"`
	Answer     *bool   `json:"answer"`
}

func (a *API) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	if !s.LoggedIn() {
		writeError(w, r, domain.ErrNotLoggedIn)
		return
	}
	var in answerRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.QuestionID == nil || in.Answer == nil {
		writeError(w, r, errMissingAnswer)
		return
	}
	verdict, err := a.engine.SubmitAnswer(r.Context(), s.UserID, int64(*in.QuestionID), *in.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type imageAnswerRequest struct {
	ImageID *itemID `json:"imageId"`
	Answer  string  `json:"answer"`
}

func (a *API) handleImageAnswer(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	if !s.LoggedIn() {
		writeError(w, r, domain.ErrNotLoggedIn)
		return
	}
	var in imageAnswerRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.ImageID == nil || in.Answer == "" {
		writeError(w, r, errMissingAnswer)
		return
	}
	verdict, err := a.engine.SubmitImageAnswer(r.Context(), s.UserID, int64(*in.ImageID), in.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (a *API) handleEndQuiz(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.EndSession(r.Context(), currentSession(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Quiz session ended"})
}

type sessionView struct {
	ID          int64  `json:"id"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	Title       string `json:"title"`
}

func (a *API) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	session, ok, err := a.sessions.GetActiveSession(r.Context(), currentSession(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{
		ID:          session.ID,
		Category:    session.Category,
		Subcategory: session.Subcategory,
		Completed:   session.QuestionsCompleted,
		Total:       session.TotalQuestions,
		Title:       session.Title(),
	})
}

func (a *API) handleImageCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.catalog.ImageCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

type imageView struct {
	ID       string   `json:"id"`
	ImageURL string   `json:"imageUrl"`
	Options  []string `json:"options"`
	Category string   `json:"category"`
}

func (a *API) handleImages(w http.ResponseWriter, r *http.Request) {
	items, err := a.catalog.ListImageItems(r.Context(), r.URL.Query().Get("category"), a.pageLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]imageView, 0, len(items))
	for _, it := range items {
		opts := it.Options
		if opts == nil {
			opts = []string{}
		}
		out = append(out, imageView{
			ID:       strconv.FormatInt(it.ID, 10),
			ImageURL: it.ImageURL,
			Options:  opts,
			Category: it.Category,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": out})
}

// handleTelegramLogin starts a handshake for this browser and sends it to the bot deep link.
func (a *API) handleTelegramLogin(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	hs, link, err := a.handshake.BeginHandshake(r.Context(), s.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Pending = hs.Token
	if err := a.saveSession(w, s); err != nil {
		writeError(w, r, domain.Internal("save session", err))
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

// handleTelegramCallback completes a handshake claimed by the bot and logs the browser in.
func (a *API) handleTelegramCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("state")
	s := currentSession(r)
	if token == "" {
		token = s.Pending
	}
	res, err := a.handshake.CompleteHandshake(r.Context(), q.Get("id"), token, q.Get("redirect"))
	if err != nil {
		if errors.Is(err, domain.ErrInternal) {
			writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Authentication failed"})
			return
		}
		writeError(w, r, err)
		return
	}
	s.UserID = res.User.ID
	s.Pending = ""
	if err := a.saveSession(w, s); err != nil {
		writeError(w, r, domain.Internal("save session", err))
		return
	}
	http.Redirect(w, r, res.Redirect, http.StatusFound)
}

// itemID accepts both 7 and "7".
type itemID int64

func (id *itemID) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		return errors.New("empty id")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("item id %q: %w", raw, err)
	}
	*id = itemID(n)
	return nil
}

var _ json.Unmarshaler = (*itemID)(nil)
