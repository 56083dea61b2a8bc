package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/recap/internal/handler/views"
	appI18n "github.com/pavelanni/recap/internal/i18n"
	"github.com/pavelanni/recap/internal/llm"
	"github.com/pavelanni/recap/internal/media"
	"github.com/pavelanni/recap/internal/model"
	"github.com/pavelanni/recap/internal/session"
	"github.com/pavelanni/recap/internal/store"
)

const maxUploadMemory = 32 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store        *store.Store
	gateway      *llm.Gateway
	sessions     *session.Registry
	config       model.QuizConfig
	passwordHash []byte
}

// New creates a new Handler. A non-empty access password enables the login page.
func New(s *store.Store, g *llm.Gateway, cfg model.QuizConfig) (*Handler, error) {
	h := &Handler{store: s, gateway: g, sessions: session.NewRegistry(), config: cfg}
	if cfg.AccessPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AccessPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash access password: %w", err)
		}
		h.passwordHash = hash
	}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			if h.passwordHash != nil {
				r.Use(h.requireAuth)
			}
			r.Post("/logout", h.handleLogout)
			r.Get("/", h.handleIndex)
			r.Post("/recap", h.handleRecap)
			r.Get("/quiz/{id}", h.handleQuizPage)
			r.Post("/quiz/{id}/option/{index}", h.handleToggleOption)
			r.Post("/quiz/{id}/answer", h.handleAnswer)
			r.Post("/quiz/{id}/submit", h.handleSubmit)
			r.Post("/quiz/{id}/next", h.handleNext)
			r.Post("/quiz/{id}/dismiss", h.handleDismiss)
			r.Get("/settings", h.handleSettingsPage)
			r.Post("/settings", h.handleSaveSettings)
			r.Get("/history", h.handleHistory)
			r.Get("/history/{id}", h.handleResultPage)
		})
	})
}

// BasePathMiddleware stores the configured URL prefix in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) questionCount() int {
	if h.config.QuestionCount > 0 {
		return h.config.QuestionCount
	}
	return model.DefaultQuestionCount
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderRecap(w, r, http.StatusOK, views.RecapForm{
		QuestionCount: h.questionCount(),
		Language:      h.config.Language,
	})
}

func (h *Handler) renderRecap(w http.ResponseWriter, r *http.Request, status int, f views.RecapForm) {
	f.Ready = h.gateway.IsReady()
	n, err := h.store.ResultCount()
	if err != nil {
		slog.Error("failed to count quiz results", "error", err)
	}
	f.HistoryCount = n
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.RecapPage(f).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleRecap(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	form := views.RecapForm{
		Notes:         r.FormValue("notes"),
		URLs:          r.FormValue("urls"),
		QuestionCount: h.questionCount(),
		Language:      r.FormValue("language"),
	}
	if form.Language == "" {
		form.Language = h.config.Language
	}
	if n, err := strconv.Atoi(r.FormValue("count")); err == nil && n > 0 {
		form.QuestionCount = n
	}

	urls, err := media.NormalizeURLs(strings.Split(form.URLs, "\n"))
	if err != nil {
		form.Error = err.Error()
		h.renderRecap(w, r, http.StatusBadRequest, form)
		return
	}
	var images []media.Image
	if r.MultipartForm != nil {
		images, err = media.FromMultipart(r.Context(), r.MultipartForm.File["images"])
		if err != nil {
			form.Error = err.Error()
			h.renderRecap(w, r, http.StatusBadRequest, form)
			return
		}
	}
	if strings.TrimSpace(form.Notes) == "" && len(urls) == 0 && len(images) == 0 {
		form.Error = "nothing to recap: add notes, links or images"
		h.renderRecap(w, r, http.StatusBadRequest, form)
		return
	}

	conv := &llm.Conversation{}
	raw, err := h.gateway.Chat(conv).GenerateQuiz(r.Context(), llm.GenerateRequest{
		Text:          form.Notes,
		URLs:          urls,
		Images:        images,
		QuestionCount: form.QuestionCount,
		Language:      appI18n.EnglishName(form.Language),
		QuizMode:      true,
	})
	if err != nil {
		form.Error = err.Error()
		h.renderRecap(w, r, gatewayStatus(err), form)
		return
	}

	quiz, err := model.DecodeQuiz(raw)
	if err != nil {
		slog.Warn("quiz reply not decodable", "error", err)
		form.Raw = raw
		h.renderRecap(w, r, http.StatusBadGateway, form)
		return
	}
	sess, err := session.New(quiz)
	if err != nil {
		form.Error = err.Error()
		form.Raw = raw
		h.renderRecap(w, r, http.StatusBadGateway, form)
		return
	}

	id := h.sessions.Put(&session.Entry{
		Session:      sess,
		Conversation: conv,
		Model:        h.gateway.Model(),
		Language:     form.Language,
	})
	slog.Info("quiz generated", "id", id, "title", quiz.Title, "questions", len(quiz.Questions),
		"context", conv.Len(), "active", h.sessions.Len())
	http.Redirect(w, r, h.path("/quiz/"+id.String()), http.StatusSeeOther)
}

func gatewayStatus(err error) int {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, llm.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, media.ErrTooManyImages):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// entry resolves the {id} URL parameter. It writes a 404 and returns nil
// when the session does not exist.
func (h *Handler) entry(w http.ResponseWriter, r *http.Request) (uuid.UUID, *session.Entry) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid quiz ID", http.StatusBadRequest)
		return uuid.Nil, nil
	}
	e := h.sessions.Get(id)
	if e == nil {
		http.Error(w, "quiz not found", http.StatusNotFound)
		return uuid.Nil, nil
	}
	return id, e
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	id, e := h.entry(w, r)
	if e == nil {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.QuizPage(id.String(), e.Session.Snapshot()).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) redirectToQuiz(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	http.Redirect(w, r, h.path("/quiz/"+id.String()), http.StatusSeeOther)
}

func (h *Handler) handleToggleOption(w http.ResponseWriter, r *http.Request) {
	id, e := h.entry(w, r)
	if e == nil {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid option index", http.StatusBadRequest)
		return
	}
	if err := e.Session.ToggleOption(index); err != nil {
		http.Error(w, err.Error(), sessionStatus(err))
		return
	}
	h.redirectToQuiz(w, r, id)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id, e := h.entry(w, r)
	if e == nil {
		return
	}
	if err := e.Session.SetFreeText(r.FormValue("answer")); err != nil {
		http.Error(w, err.Error(), sessionStatus(err))
		return
	}
	h.submit(w, r, id, e)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, e := h.entry(w, r)
	if e == nil {
		return
	}
	h.submit(w, r, id, e)
}

// submit grades the current answer. Grading failures are shown on the
// question page, so only state errors end in an HTTP error.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, id uuid.UUID, e *session.Entry) {
	err := e.Session.Submit(r.Context(), h.gateway.Chat(e.Conversation))
	if err != nil && !errors.Is(err, session.ErrStaleTicket) {
		http.Error(w, err.Error(), sessionStatus(err))
		return
	}
	h.redirectToQuiz(w, r, id)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	id, e := h.entry(w, r)
	if e == nil {
		return
	}
	if err := e.Session.Next(); err != nil {
		http.Error(w, err.Error(), sessionStatus(err))
		return
	}
	if e.Session.Finished() && h.sessions.MarkSaved(id) {
		meta := model.ResultMeta{Model: e.Model, Language: e.Language}
		if _, err := h.store.SaveResult(e.Session.Summary(), meta); err != nil {
			slog.Error("failed to save quiz result", "id", id, "error", err)
		}
	}
	h.redirectToQuiz(w, r, id)
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id, e := h.entry(w, r)
	if e == nil {
		return
	}
	h.sessions.Delete(id)
	slog.Info("quiz dismissed", "id", id, "active", h.sessions.Len())
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func sessionStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrOptionOutOfRange),
		errors.Is(err, session.ErrEmptyAnswer),
		errors.Is(err, session.ErrWrongKind):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrFinished),
		errors.Is(err, llm.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ListResults()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.HistoryPage(results).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleResultPage(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.GetResult(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "result not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResultPage(*result).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
