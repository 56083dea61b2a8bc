package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedQuiz is returned when a generation reply is not a quiz.
	ErrMalformedQuiz = errors.New("malformed quiz")
	// ErrMalformedGrading is returned when a grading reply is not a grading result.
	ErrMalformedGrading = errors.New("malformed grading result")
)

// MalformedError carries the raw model text that failed to decode so it can
// be shown to the user.
type MalformedError struct {
	Kind error
	Raw  string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *MalformedError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

type wireQuiz struct {
	Title     *string         `json:"quiz_title"`
	Questions *[]wireQuestion `json:"questions"`
}

type wireQuestion struct {
	Type     *string       `json:"type"`
	Question *string       `json:"question"`
	Options  *[]wireOption `json:"options"`
	Answer   *string       `json:"answer"`
}

type wireOption struct {
	Text    *string `json:"text"`
	Correct *bool   `json:"correct"`
}

type wireGrading struct {
	ExpectedAnswer *string `json:"expectedAnswer"`
	IsCorrect      *bool   `json:"isCorrect"`
	Feedback       *string `json:"feedback"`
}

// DecodeQuiz parses a generation reply into a Quiz and assigns option
// indices. Any missing or mistyped field fails the whole decode.
func DecodeQuiz(raw string) (*Quiz, error) {
	fail := func(err error) (*Quiz, error) {
		return nil, &MalformedError{Kind: ErrMalformedQuiz, Raw: raw, Err: err}
	}

	var w wireQuiz
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &w); err != nil {
		return fail(err)
	}
	if w.Title == nil {
		return fail(errors.New("missing quiz_title"))
	}
	if w.Questions == nil {
		return fail(errors.New("missing questions"))
	}
	if len(*w.Questions) == 0 {
		return fail(errors.New("no questions"))
	}

	quiz := &Quiz{Title: *w.Title, Questions: make([]Question, 0, len(*w.Questions))}
	for i, wq := range *w.Questions {
		q, err := decodeQuestion(wq)
		if err != nil {
			return fail(fmt.Errorf("question %d: %w", i+1, err))
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz, nil
}

func decodeQuestion(wq wireQuestion) (Question, error) {
	if wq.Type == nil {
		return Question{}, errors.New("missing type")
	}
	kind := QuestionKind(*wq.Type)
	if !kind.Valid() {
		return Question{}, fmt.Errorf("unknown type %q", *wq.Type)
	}
	if wq.Question == nil || strings.TrimSpace(*wq.Question) == "" {
		return Question{}, errors.New("missing question text")
	}

	q := Question{Kind: kind, Prompt: *wq.Question, ReferenceAnswer: wq.Answer}

	var opts []wireOption
	if wq.Options != nil {
		opts = *wq.Options
	}
	switch kind {
	case KindMultipleChoice:
		if len(opts) == 0 {
			return Question{}, errors.New("multiple choice question without options")
		}
		q.Options = make([]Option, 0, len(opts))
		for i, wo := range opts {
			if wo.Text == nil {
				return Question{}, fmt.Errorf("option %d: missing text", i+1)
			}
			if wo.Correct == nil {
				return Question{}, fmt.Errorf("option %d: missing correct", i+1)
			}
			q.Options = append(q.Options, Option{Index: i, Text: *wo.Text, Correct: *wo.Correct})
		}
	case KindFreeAnswer:
		if len(opts) > 0 {
			return Question{}, errors.New("free answer question with options")
		}
	}
	return q, nil
}

// DecodeGrading parses a grading reply.
func DecodeGrading(raw string) (*GradingResult, error) {
	fail := func(err error) (*GradingResult, error) {
		return nil, &MalformedError{Kind: ErrMalformedGrading, Raw: raw, Err: err}
	}

	var w wireGrading
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &w); err != nil {
		return fail(err)
	}
	switch {
	case w.ExpectedAnswer == nil:
		return fail(errors.New("missing expectedAnswer"))
	case w.IsCorrect == nil:
		return fail(errors.New("missing isCorrect"))
	case w.Feedback == nil:
		return fail(errors.New("missing feedback"))
	}
	return &GradingResult{
		ExpectedAnswer: *w.ExpectedAnswer,
		IsCorrect:      *w.IsCorrect,
		Feedback:       *w.Feedback,
	}, nil
}

// stripCodeFence removes a Markdown code fence around a reply, which models
// often add even when asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return s
	}
	body := strings.TrimSpace(s[nl+1:])
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
