package model

import (
	"strings"

	"github.com/google/uuid"
)

// QuestionKind identifies how a question is answered.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindFreeAnswer     QuestionKind = "free_answer"
)

// Valid reports whether k is one of the known question kinds.
func (k QuestionKind) Valid() bool {
	return k == KindMultipleChoice || k == KindFreeAnswer
}

// Quiz is a generated quiz. It is not modified after decoding.
type Quiz struct {
	Title     string     `json:"quiz_title"`
	Questions []Question `json:"questions"`
}

// Question is a single quiz question.
// Options is non-empty exactly when Kind is KindMultipleChoice.
type Question struct {
	Kind            QuestionKind `json:"type"`
	Prompt          string       `json:"question"`
	Options         []Option     `json:"options,omitempty"`
	ReferenceAnswer *string      `json:"answer,omitempty"`
}

// Option is one choice of a multiple-choice question. Index is its position
// within the question and is the option's identity for selection.
type Option struct {
	Index   int    `json:"-"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// CorrectCount returns the number of options marked correct.
func (q Question) CorrectCount() int {
	n := 0
	for _, o := range q.Options {
		if o.Correct {
			n++
		}
	}
	return n
}

// MultiSelect reports whether the question is answered with independent
// toggles rather than an exclusive choice.
func (q Question) MultiSelect() bool {
	return q.Kind == KindMultipleChoice && q.CorrectCount() > 1
}

// CorrectAnswerText joins the text of all correct options.
func (q Question) CorrectAnswerText() string {
	var parts []string
	for _, o := range q.Options {
		if o.Correct {
			parts = append(parts, o.Text)
		}
	}
	return strings.Join(parts, ", ")
}

// GradingResult is the verdict for one submitted answer.
type GradingResult struct {
	ExpectedAnswer string `json:"expectedAnswer"`
	IsCorrect      bool   `json:"isCorrect"`
	Feedback       string `json:"feedback"`
}

// UserAnswer records a finalized question. Entries are never changed after
// they are appended to a session's answer log.
type UserAnswer struct {
	ID            uuid.UUID `json:"id"`
	Question      Question  `json:"question"`
	Answer        []string  `json:"answer"`
	IsCorrect     bool      `json:"is_correct"`
	CorrectAnswer *string   `json:"correct_answer,omitempty"`
	Feedback      string    `json:"feedback,omitempty"`
}

// Summary is the end-of-quiz report.
type Summary struct {
	Title   string       `json:"title"`
	Score   int          `json:"score"`
	Total   int          `json:"total"`
	Answers []UserAnswer `json:"answers"`
}

// Model identifiers accepted by the gateway.
const (
	ModelGeminiPro   = "gemini-1.5-pro"
	ModelGeminiFlash = "gemini-1.5-flash"

	DefaultModel = ModelGeminiPro
)

// AllowedModels lists the selectable models in display order.
var AllowedModels = []string{ModelGeminiPro, ModelGeminiFlash}

// IsAllowedModel reports whether id is in AllowedModels.
func IsAllowedModel(id string) bool {
	for _, m := range AllowedModels {
		if m == id {
			return true
		}
	}
	return false
}

// Settings are the persisted user preferences.
type Settings struct {
	APIKey    string
	ModelName string
}

// DefaultSettings returns the values used when nothing has been saved.
func DefaultSettings() Settings {
	return Settings{APIKey: "", ModelName: DefaultModel}
}

// QuizConfig holds runtime parameters set via CLI flags.
type QuizConfig struct {
	QuestionCount  int    // 0 means DefaultQuestionCount
	Language       string // language the quiz is written in
	AccessPassword string // empty disables the login page
	BasePath       string
	SecureCookies  bool
}

// DefaultQuestionCount is used when no count is requested.
const DefaultQuestionCount = 5
