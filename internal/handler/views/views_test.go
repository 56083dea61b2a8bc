package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/recap/internal/i18n"
	"github.com/pavelanni/recap/internal/model"
	"github.com/pavelanni/recap/internal/session"
)

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func choiceView(phase session.Phase) session.View {
	return session.View{
		Title: "Geo <quiz>",
		Phase: phase,
		Total: 2,
		Question: model.Question{
			Kind:   model.KindMultipleChoice,
			Prompt: "Capital\nof France?",
			Options: []model.Option{
				{Index: 0, Text: "Berlin"},
				{Index: 1, Text: "Paris", Correct: true},
			},
		},
		Selected: map[int]bool{0: true},
		Grading:  session.GradingInitial{},
	}
}

func TestQuizPageAnswering(t *testing.T) {
	ctx := model.ContextWithBasePath(context.Background(), "/app")
	ctx = model.ContextWithCSRFToken(ctx, `tok"en`)
	body := render(t, ctx, QuizPage("abc", choiceView(session.PhaseAnswering)))

	for _, want := range []string{
		`<title>Geo &lt;quiz&gt; - Recap</title>`,
		`<h2 class="multiline">Capital
of France?</h2>`,
		`action="/app/quiz/abc/option/0"`,
		`data-state="selected">Berlin</button>`,
		`data-state="">Paris</button>`,
		`name="csrf_token" value="tok&#34;en"`,
		`action="/app/quiz/abc/submit"`,
		`>Dismiss</button>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in\n%s", want, body)
		}
	}
	if strings.Contains(body, "/next") {
		t.Error("next button shown before grading")
	}
	if strings.Contains(body, ">Log out<") {
		t.Error("logout shown without a login")
	}
}

func TestQuizPageGraded(t *testing.T) {
	v := choiceView(session.PhaseGraded)
	v.Index = 1
	v.ShowAnswer = true
	v.Grading = session.GradingSuccess{Result: model.GradingResult{
		IsCorrect:      false,
		ExpectedAnswer: "Paris",
		Feedback:       "Review <b>this</b>.",
	}}
	body := render(t, model.ContextWithAuthenticated(context.Background()), QuizPage("abc", v))

	for _, want := range []string{
		`data-state="wrong" disabled>Berlin</button>`,
		`data-state="correct" disabled>Paris</button>`,
		`<div class="verdict" data-correct="false"><strong>Incorrect</strong>`,
		`Expected answer: Paris`,
		`Feedback: Review &lt;b&gt;this&lt;/b&gt;.`,
		`action="/quiz/abc/next"`,
		`>Finish</button>`,
		`>Log out</button>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in\n%s", want, body)
		}
	}
	if strings.Contains(body, "/submit") {
		t.Error("submit shown after grading")
	}
}

func TestQuizPageGradingError(t *testing.T) {
	v := session.View{
		Title:    "Sky",
		Phase:    session.PhaseAnswering,
		Total:    1,
		Question: model.Question{Kind: model.KindFreeAnswer, Prompt: "Why?"},
		FreeText: "Because <light>",
		Grading:  session.GradingError{Message: "model said no"},
	}
	body := render(t, context.Background(), QuizPage("abc", v))

	for _, want := range []string{
		`name="answer" rows="5">Because &lt;light&gt;</textarea>`,
		`<strong>Grading failed`,
		`<p>model said no</p>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in\n%s", want, body)
		}
	}
}

func TestQuizPageSummary(t *testing.T) {
	expected := "Rayleigh scattering"
	v := session.View{
		Title: "Sky",
		Phase: session.PhaseFinished,
		Total: 1,
		Score: 1,
		Answers: []model.UserAnswer{{
			Question:      model.Question{Prompt: "Why blue?"},
			Answer:        []string{"scattering", "light"},
			IsCorrect:     true,
			CorrectAnswer: &expected,
		}},
	}
	body := render(t, context.Background(), QuizPage("abc", v))

	for _, want := range []string{
		"You scored 1 of 1.",
		"Your answer: scattering, light",
		"Expected answer: Rayleigh scattering",
		`data-correct="true"`,
		">New recap</button>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in\n%s", want, body)
		}
	}
}

func TestRecapPage(t *testing.T) {
	body := render(t, context.Background(), RecapPage(RecapForm{
		Notes:         "</textarea><script>",
		QuestionCount: 7,
		Language:      "ru",
		HistoryCount:  3,
	}))

	for _, want := range []string{
		`&lt;/textarea&gt;&lt;script&gt;</textarea>`,
		`value="7"`,
		`<option value="ru" selected>`,
		`3 quizzes in your history`,
		`<button type="submit" disabled>`,
		`Set your API key`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in\n%s", want, body)
		}
	}
}

func TestResultPage(t *testing.T) {
	r := model.QuizResult{
		ID:         "r1",
		Title:      "Rivers",
		Score:      1,
		Total:      2,
		Model:      model.ModelGeminiFlash,
		FinishedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local),
		Answers: []model.AnswerRecord{
			{Question: "Longest?", Answer: []string{"Nile"}, IsCorrect: true},
			{Question: "Widest?", Answer: []string{"Volga"}, CorrectAnswer: "Amazon"},
		},
	}
	body := render(t, context.Background(), ResultPage(r))

	for _, want := range []string{
		"2026-03-01 10:00 · 2 questions · " + model.ModelGeminiFlash,
		"You scored 1 of 2.",
		"Expected answer: Amazon",
		`href="/history"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in\n%s", want, body)
		}
	}

	list := render(t, context.Background(), HistoryPage([]model.QuizResult{r}))
	if !strings.Contains(list, `<a href="/history/r1">Rivers</a>`) || !strings.Contains(list, "1 / 2") {
		t.Errorf("unexpected history page\n%s", list)
	}
}

func TestOptionState(t *testing.T) {
	o := model.Option{Index: 0, Correct: true}
	tests := []struct {
		name     string
		selected bool
		show     bool
		correct  bool
		want     string
	}{
		{"idle", false, false, false, ""},
		{"selected", true, false, false, "selected"},
		{"correct shown", false, true, true, "correct"},
		{"wrong pick", true, true, false, "wrong"},
		{"missed wrong option", false, true, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o.Correct = tt.correct
			v := session.View{Selected: map[int]bool{0: tt.selected}, ShowAnswer: tt.show}
			if got := optionState(o, v); got != tt.want {
				t.Errorf("optionState() = %q, want %q", got, tt.want)
			}
		})
	}
}
