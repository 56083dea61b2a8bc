package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appI18n "github.com/pavelanni/recap/internal/i18n"
	"github.com/pavelanni/recap/internal/llm"
	"github.com/pavelanni/recap/internal/model"
	"github.com/pavelanni/recap/internal/session"
	"github.com/pavelanni/recap/internal/store"
)

const testCSRF = "test-csrf-token"

const mixedQuiz = `{
  "quiz_title": "Geography",
  "questions": [
    {"type": "multiple_choice", "question": "Capital of France?",
     "options": [{"text": "Berlin", "correct": false}, {"text": "Paris", "correct": true}]},
    {"type": "free_answer", "question": "Why is the sky blue?", "answer": "Rayleigh scattering"}
  ]
}`

const gradeReply = `{"expectedAnswer":"Rayleigh scattering","isCorrect":true,"feedback":"Well explained."}`

// chatServer replies to chat completion calls with canned answers in order.
type chatServer struct {
	mu       sync.Mutex
	replies  []string
	calls    int
	requests [][]chatMessage
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Messages []chatMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	c.calls++
	c.requests = append(c.requests, body.Messages)
	reply := "{}"
	if len(c.replies) > 0 {
		reply = c.replies[0]
		c.replies = c.replies[1:]
	}
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  model.DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": reply},
			"finish_reason": "stop",
		}},
	})
}

type testEnv struct {
	h      *Handler
	router http.Handler
	store  *store.Store
	chat   *chatServer
}

func newTestEnv(t *testing.T, apiKey string, cfg model.QuizConfig, replies ...string) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	chat := &chatServer{replies: replies}
	srv := httptest.NewServer(chat)
	t.Cleanup(srv.Close)

	gw := llm.New(llm.Config{APIKey: apiKey, Model: model.DefaultModel, BaseURL: srv.URL})
	h, err := New(s, gw, cfg)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testEnv{h: h, router: r, store: s, chat: chat}
}

func (e *testEnv) get(t *testing.T, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) post(t *testing.T, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", testCSRF)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{})

	rec := env.get(t, "/")
	expectStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	if !strings.Contains(body, "Generate quiz") {
		t.Error("expected recap form")
	}
	if strings.Contains(body, "Set your API key") {
		t.Error("did not expect the not-configured notice")
	}
	if !strings.Contains(body, `name="csrf_token" value="`) {
		t.Error("expected CSRF field in form")
	}
}

func TestIndexNotConfigured(t *testing.T) {
	env := newTestEnv(t, "", model.QuizConfig{})

	rec := env.get(t, "/")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Set your API key") {
		t.Error("expected the not-configured notice")
	}

	rec = env.post(t, "/recap", url.Values{"notes": {"photosynthesis"}})
	expectStatus(t, rec, http.StatusPreconditionFailed)
	if env.chat.calls != 0 {
		t.Errorf("expected no model calls, got %d", env.chat.calls)
	}
}

func TestCSRFRequired(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{})

	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader("api_key=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusForbidden)
}

func startQuiz(t *testing.T, env *testEnv) string {
	t.Helper()
	return startQuizWith(t, env, "Paris is the capital of France. The sky is blue.")
}

func startQuizWith(t *testing.T, env *testEnv, notes string) string {
	t.Helper()
	rec := env.post(t, "/recap", url.Values{
		"notes":    {notes},
		"count":    {"2"},
		"language": {"en"},
	})
	expectStatus(t, rec, http.StatusSeeOther)
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/quiz/") {
		t.Fatalf("expected redirect to quiz, got %q", loc)
	}
	return loc
}

func TestQuizFlow(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{}, mixedQuiz, gradeReply)
	quiz := startQuiz(t, env)

	rec := env.get(t, quiz)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Capital of France?") {
		t.Fatal("expected first question")
	}
	if !strings.Contains(rec.Body.String(), "Question 1 of 2") {
		t.Error("expected progress line")
	}

	// Answer the multiple-choice question correctly.
	expectStatus(t, env.post(t, quiz+"/option/1", nil), http.StatusSeeOther)
	expectStatus(t, env.post(t, quiz+"/submit", nil), http.StatusSeeOther)
	rec = env.get(t, quiz)
	if !strings.Contains(rec.Body.String(), "Correct!") {
		t.Error("expected correct verdict")
	}
	if !strings.Contains(rec.Body.String(), "Review the correct and incorrect options.") {
		t.Error("expected multiple-choice feedback")
	}

	// Selection is locked once graded.
	expectStatus(t, env.post(t, quiz+"/option/0", nil), http.StatusConflict)

	expectStatus(t, env.post(t, quiz+"/next", nil), http.StatusSeeOther)

	// Free answer graded by the model.
	expectStatus(t, env.post(t, quiz+"/answer", url.Values{"answer": {"Light scatters"}}), http.StatusSeeOther)
	rec = env.get(t, quiz)
	if !strings.Contains(rec.Body.String(), "Well explained.") {
		t.Errorf("expected grading feedback, got %s", rec.Body.String())
	}

	expectStatus(t, env.post(t, quiz+"/next", nil), http.StatusSeeOther)
	rec = env.get(t, quiz)
	if !strings.Contains(rec.Body.String(), "You scored 2 of 2.") {
		t.Errorf("expected summary, got %s", rec.Body.String())
	}

	count, err := env.store.ResultCount()
	if err != nil {
		t.Fatalf("ResultCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 saved result, got %d", count)
	}
	if env.chat.calls != 2 {
		t.Errorf("expected 2 model calls, got %d", env.chat.calls)
	}

	// Finished quizzes reject further moves and are saved only once.
	expectStatus(t, env.post(t, quiz+"/next", nil), http.StatusConflict)
	count, _ = env.store.ResultCount()
	if count != 1 {
		t.Errorf("expected result saved once, got %d", count)
	}

	results, _ := env.store.ListResults()
	rec = env.get(t, "/history/"+results[0].ID)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Light scatters") {
		t.Error("expected stored answer on result page")
	}
}

func TestFreeAnswerGradingFailure(t *testing.T) {
	free := `{"quiz_title":"Sky","questions":[{"type":"free_answer","question":"Why is the sky blue?"}]}`
	env := newTestEnv(t, "key", model.QuizConfig{}, free, "this is not json")
	quiz := startQuiz(t, env)

	expectStatus(t, env.post(t, quiz+"/answer", url.Values{"answer": {"Because"}}), http.StatusSeeOther)
	rec := env.get(t, quiz)
	body := rec.Body.String()
	if !strings.Contains(body, "Grading failed") {
		t.Errorf("expected grading error, got %s", body)
	}
	// The question stays answerable.
	if !strings.Contains(body, `name="answer" rows="5">`) {
		t.Error("expected editable answer field")
	}
	expectStatus(t, env.post(t, quiz+"/next", nil), http.StatusConflict)
}

func TestEmptyAnswerRejected(t *testing.T) {
	free := `{"quiz_title":"Sky","questions":[{"type":"free_answer","question":"Why?"}]}`
	env := newTestEnv(t, "key", model.QuizConfig{}, free)
	quiz := startQuiz(t, env)

	expectStatus(t, env.post(t, quiz+"/answer", url.Values{"answer": {"   "}}), http.StatusBadRequest)
	if env.chat.calls != 1 {
		t.Errorf("expected only the generation call, got %d", env.chat.calls)
	}
}

func TestRecapUndecodableReply(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{}, "Sorry, I can't <b>do</b> that.")

	rec := env.post(t, "/recap", url.Values{"notes": {"notes"}})
	expectStatus(t, rec, http.StatusBadGateway)
	body := rec.Body.String()
	if !strings.Contains(body, "Sorry, I can&#39;t &lt;b&gt;do&lt;/b&gt; that.") {
		t.Errorf("expected escaped raw reply, got %s", body)
	}
	if env.h.sessions.Len() != 0 {
		t.Error("expected no session")
	}
}

func TestRecapNothingToDo(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{})

	rec := env.post(t, "/recap", url.Values{"notes": {"  "}})
	expectStatus(t, rec, http.StatusBadRequest)
	if env.chat.calls != 0 {
		t.Errorf("expected no model calls, got %d", env.chat.calls)
	}
}

func TestRecapBadURL(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{})

	rec := env.post(t, "/recap", url.Values{"notes": {"x"}, "urls": {"ftp://example.com/a"}})
	expectStatus(t, rec, http.StatusBadRequest)
}

func entryFor(t *testing.T, env *testEnv, quiz string) *session.Entry {
	t.Helper()
	id, err := uuid.Parse(strings.TrimPrefix(quiz, "/quiz/"))
	if err != nil {
		t.Fatalf("parse quiz ID: %v", err)
	}
	e := env.h.sessions.Get(id)
	if e == nil {
		t.Fatalf("no session for %s", quiz)
	}
	return e
}

func TestDismiss(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{}, mixedQuiz)
	quiz := startQuiz(t, env)

	conv := entryFor(t, env, quiz).Conversation
	if conv.Len() == 0 {
		t.Fatal("expected conversation history after generation")
	}
	rec := env.post(t, quiz+"/dismiss", nil)
	expectStatus(t, rec, http.StatusSeeOther)
	if rec.Header().Get("Location") != "/" {
		t.Errorf("expected redirect to /, got %q", rec.Header().Get("Location"))
	}
	if conv.Len() != 0 {
		t.Error("expected conversation reset")
	}
	expectStatus(t, env.get(t, quiz), http.StatusNotFound)
}

func TestDismissKeepsOtherQuizContext(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{}, mixedQuiz, mixedQuiz, gradeReply)
	first := startQuizWith(t, env, "Notes about rivers.")
	second := startQuizWith(t, env, "Notes about the sky.")

	if n := len(env.chat.requests[1]); n != 1 {
		t.Errorf("second generation carried %d messages, want 1", n)
	}

	expectStatus(t, env.post(t, first+"/dismiss", nil), http.StatusSeeOther)
	if n := entryFor(t, env, second).Conversation.Len(); n != 2 {
		t.Fatalf("second quiz context length = %d, want 2", n)
	}

	expectStatus(t, env.post(t, second+"/option/1", nil), http.StatusSeeOther)
	expectStatus(t, env.post(t, second+"/submit", nil), http.StatusSeeOther)
	expectStatus(t, env.post(t, second+"/next", nil), http.StatusSeeOther)
	expectStatus(t, env.post(t, second+"/answer", url.Values{"answer": {"Light scatters"}}), http.StatusSeeOther)
	if !strings.Contains(env.get(t, second).Body.String(), "Well explained.") {
		t.Fatal("expected grading feedback")
	}

	grading := env.chat.requests[2]
	if len(grading) != 3 {
		t.Fatalf("grading request carried %d messages, want 3", len(grading))
	}
	if !strings.Contains(grading[0].Content, "Notes about the sky.") {
		t.Errorf("grading context is not the second quiz: %q", grading[0].Content)
	}
}

func TestRecapAlwaysAsksForQuiz(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{}, mixedQuiz)

	body := env.get(t, "/").Body.String()
	if strings.Contains(body, "quiz_mode") {
		t.Error("recap form should not offer a non-quiz mode")
	}
	rec := env.post(t, "/recap", url.Values{"notes": {"notes"}, "quiz_mode": {""}})
	expectStatus(t, rec, http.StatusSeeOther)
	if !strings.Contains(env.chat.requests[0][0].Content, "quiz_title") {
		t.Error("generation prompt should carry the quiz schema")
	}
}

func TestIndexShowsHistoryCount(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{})

	if strings.Contains(env.get(t, "/").Body.String(), "in your history") {
		t.Error("empty history should not be announced")
	}
	sum := model.Summary{Title: "Saved", Score: 1, Total: 1}
	if _, err := env.store.SaveResult(sum, model.ResultMeta{Model: model.DefaultModel, Language: "en"}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if !strings.Contains(env.get(t, "/").Body.String(), "1 quiz in your history") {
		t.Error("expected the history count on the index page")
	}
}

func TestQuizLookup(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{})

	expectStatus(t, env.get(t, "/quiz/not-a-uuid"), http.StatusBadRequest)
	expectStatus(t, env.get(t, "/quiz/"+uuid.NewString()), http.StatusNotFound)
	expectStatus(t, env.get(t, "/history/missing"), http.StatusNotFound)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, "", model.QuizConfig{})

	rec := env.get(t, "/settings")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), model.DefaultModel) {
		t.Error("expected default model in form")
	}

	rec = env.post(t, "/settings", url.Values{"api_key": {" new-key "}, "model": {model.ModelGeminiFlash}})
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Settings saved.") {
		t.Error("expected saved notice")
	}

	st, err := env.store.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if st.APIKey != "new-key" || st.ModelName != model.ModelGeminiFlash {
		t.Errorf("unexpected stored settings: %+v", st)
	}
	if !env.h.gateway.IsReady() {
		t.Error("expected gateway ready")
	}
	if env.h.gateway.Model() != model.ModelGeminiFlash {
		t.Errorf("expected gateway model %q, got %q", model.ModelGeminiFlash, env.h.gateway.Model())
	}
}

func TestSettingsUnknownModel(t *testing.T) {
	env := newTestEnv(t, "", model.QuizConfig{})

	rec := env.post(t, "/settings", url.Values{"api_key": {"k"}, "model": {"gpt-4"}})
	expectStatus(t, rec, http.StatusBadRequest)
	st, _ := env.store.LoadSettings()
	if st.APIKey != "" {
		t.Error("expected nothing stored")
	}
}

func TestAccessPassword(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{AccessPassword: "secret"})

	rec := env.get(t, "/")
	expectStatus(t, rec, http.StatusSeeOther)
	if rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %q", rec.Header().Get("Location"))
	}

	rec = env.post(t, "/login", url.Values{"password": {"wrong"}})
	expectStatus(t, rec, http.StatusUnauthorized)
	if !strings.Contains(rec.Body.String(), "Wrong password.") {
		t.Error("expected login error")
	}

	rec = env.post(t, "/login", url.Values{"password": {"secret"}})
	expectStatus(t, rec, http.StatusSeeOther)
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("expected session cookie")
	}

	rec = env.get(t, "/", session)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Log out") {
		t.Error("expected logout button for logged-in user")
	}

	expectStatus(t, env.post(t, "/logout", nil, session), http.StatusSeeOther)
	expectStatus(t, env.get(t, "/", session), http.StatusSeeOther)
}

func TestBasePath(t *testing.T) {
	env := newTestEnv(t, "key", model.QuizConfig{BasePath: "/recap-app"}, mixedQuiz)

	rec := env.get(t, "/")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `action="/recap-app/recap"`) {
		t.Error("expected form action under base path")
	}

	rec = env.post(t, "/recap", url.Values{"notes": {"x"}})
	expectStatus(t, rec, http.StatusSeeOther)
	if !strings.HasPrefix(rec.Header().Get("Location"), "/recap-app/quiz/") {
		t.Errorf("expected redirect under base path, got %q", rec.Header().Get("Location"))
	}
}
