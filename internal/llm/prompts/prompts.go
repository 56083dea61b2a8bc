package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/recap/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

const (
	maxNotesRunes  = 20000
	maxAnswerRunes = 10000
)

var (
	userNotesRegex  = regexp.MustCompile(`(?i)</?\s*user-notes\b[^>]*>`)
	userAnswerRegex = regexp.MustCompile(`(?i)</?\s*user-answer\b[^>]*>`)
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[string]*template.Template
)

// QuizData holds template data for quiz generation prompts.
type QuizData struct {
	Notes         string
	URLs          []string
	ImageCount    int
	Language      string
	QuestionCount int
}

// GradeData holds template data for free-answer grading prompts.
type GradeData struct {
	Question        string
	ReferenceAnswer string
	Answer          string
	Language        string
}

func load() error {
	loadOnce.Do(func() {
		templates = make(map[string]*template.Template)
		for _, name := range []string{"quiz", "follow", "grade"} {
			file := "templates/" + name + ".txt"
			content, err := templateFS.ReadFile(file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(name).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			templates[name] = tmpl
		}
	})
	return loadErr
}

func execute(name string, data any) (string, error) {
	if err := load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	var buf bytes.Buffer
	if err := templates[name].Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildQuizPrompt builds the prompt that asks for a quiz in the documented JSON shape.
func BuildQuizPrompt(d QuizData) (string, error) {
	if d.QuestionCount <= 0 {
		d.QuestionCount = model.DefaultQuestionCount
	}
	if d.Language == "" {
		d.Language = "English"
	}
	d.Notes = sanitize(d.Notes, userNotesRegex, maxNotesRunes)
	return execute("quiz", d)
}

// BuildFollowPrompt builds a plain request that tells the model to follow
// the JSON example embedded in the text.
func BuildFollowPrompt(d QuizData) (string, error) {
	d.Notes = strings.TrimSpace(d.Notes)
	return execute("follow", d)
}

// BuildGradePrompt builds the prompt that grades one free answer.
func BuildGradePrompt(q model.Question, answer, language string) (string, error) {
	if language == "" {
		language = "English"
	}
	d := GradeData{
		Question: q.Prompt,
		Answer:   sanitize(answer, userAnswerRegex, maxAnswerRunes),
		Language: language,
	}
	if q.ReferenceAnswer != nil {
		d.ReferenceAnswer = strings.TrimSpace(*q.ReferenceAnswer)
	}
	if d.Answer == "" {
		d.Answer = "[No answer provided]"
	}
	return execute("grade", d)
}

// sanitize strips delimiter tags so user text cannot close them early, and
// caps the text length.
func sanitize(s string, tags *regexp.Regexp, maxRunes int) string {
	s = tags.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxRunes {
		runes := []rune(s)
		s = string(runes[:maxRunes]) + "\n\n[Text truncated due to length]"
	}
	return s
}
