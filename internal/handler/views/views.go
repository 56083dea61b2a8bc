// Package views renders the HTML pages of the web UI. The pages are templ
// components: edit the .templ files and run `templ generate`.
package views

import (
	"context"
	"strings"

	appI18n "github.com/pavelanni/recap/internal/i18n"
	"github.com/pavelanni/recap/internal/model"
	"github.com/pavelanni/recap/internal/session"
)

const dateLayout = "2006-01-02 15:04"

// RecapForm is the state of the recap form.
type RecapForm struct {
	Ready         bool // an API key is configured
	Notes         string
	URLs          string
	QuestionCount int
	Language      string
	HistoryCount  int
	Error         string
	Raw           string // model reply that failed to decode
}

// path returns p under the configured base path.
func path(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

func pageTitle(ctx context.Context, title string) string {
	app := appI18n.T(ctx, "AppTitle")
	if title == "" {
		return app
	}
	return title + " - " + app
}

// optionState is the data-state of a choice button.
func optionState(o model.Option, v session.View) string {
	selected := v.Selected[o.Index]
	switch {
	case v.ShowAnswer && o.Correct:
		return "correct"
	case v.ShowAnswer && selected:
		return "wrong"
	case selected:
		return "selected"
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func resultMeta(ctx context.Context, r model.QuizResult) string {
	parts := []string{
		r.FinishedAt.Local().Format(dateLayout),
		appI18n.Tp(ctx, "QuestionsCount", r.Total),
	}
	if r.Language != "" {
		parts = append(parts, appI18n.LanguageName(r.Language))
	}
	if r.Model != "" {
		parts = append(parts, r.Model)
	}
	return strings.Join(parts, " · ")
}
