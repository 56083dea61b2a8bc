package model

import (
	"errors"
	"testing"
)

func TestDecodeQuiz(t *testing.T) {
	raw := `{"quiz_title":"T","questions":[{"type":"multiple_choice","question":"Q1","options":[{"text":"A","correct":true},{"text":"B","correct":false}]}]}`

	quiz, err := DecodeQuiz(raw)
	if err != nil {
		t.Fatalf("DecodeQuiz: %v", err)
	}
	if quiz.Title != "T" {
		t.Errorf("Title = %q, want %q", quiz.Title, "T")
	}
	if len(quiz.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(quiz.Questions))
	}
	q := quiz.Questions[0]
	if q.Kind != KindMultipleChoice {
		t.Errorf("Kind = %q, want %q", q.Kind, KindMultipleChoice)
	}
	if len(q.Options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(q.Options))
	}
	if !q.Options[0].Correct || q.Options[1].Correct {
		t.Errorf("expected only the first option correct, got %+v", q.Options)
	}
	for i, o := range q.Options {
		if o.Index != i {
			t.Errorf("option %d has Index %d", i, o.Index)
		}
	}
}

func TestDecodeQuizFreeAnswer(t *testing.T) {
	raw := "```json\n" + `{"quiz_title":"History","questions":[
		{"type":"free_answer","question":"Why did Rome fall?","options":null,"answer":"Many reasons"},
		{"type":"free_answer","question":"Who was Caesar?"}
	]}` + "\n```"

	quiz, err := DecodeQuiz(raw)
	if err != nil {
		t.Fatalf("DecodeQuiz: %v", err)
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(quiz.Questions))
	}
	first := quiz.Questions[0]
	if first.Options != nil {
		t.Errorf("expected no options, got %v", first.Options)
	}
	if first.ReferenceAnswer == nil || *first.ReferenceAnswer != "Many reasons" {
		t.Errorf("ReferenceAnswer = %v, want 'Many reasons'", first.ReferenceAnswer)
	}
	if quiz.Questions[1].ReferenceAnswer != nil {
		t.Error("expected absent reference answer")
	}
}

func TestDecodeQuizMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "Sure! Here is your quiz."},
		{"empty", ""},
		{"missing questions", `{"quiz_title":"T"}`},
		{"missing title", `{"questions":[{"type":"free_answer","question":"Q"}]}`},
		{"empty questions", `{"quiz_title":"T","questions":[]}`},
		{"questions wrong shape", `{"quiz_title":"T","questions":"none"}`},
		{"unknown type", `{"quiz_title":"T","questions":[{"type":"essay","question":"Q"}]}`},
		{"missing question text", `{"quiz_title":"T","questions":[{"type":"free_answer"}]}`},
		{"choice without options", `{"quiz_title":"T","questions":[{"type":"multiple_choice","question":"Q"}]}`},
		{"free answer with options", `{"quiz_title":"T","questions":[{"type":"free_answer","question":"Q","options":[{"text":"A","correct":true}]}]}`},
		{"option missing correct", `{"quiz_title":"T","questions":[{"type":"multiple_choice","question":"Q","options":[{"text":"A"}]}]}`},
		{"trailing text", `{"quiz_title":"T","questions":[{"type":"free_answer","question":"Q"}]} hope this helps`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quiz, err := DecodeQuiz(tt.raw)
			if err == nil {
				t.Fatalf("expected error, got quiz %+v", quiz)
			}
			if !errors.Is(err, ErrMalformedQuiz) {
				t.Errorf("expected ErrMalformedQuiz, got %v", err)
			}
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatalf("expected *MalformedError, got %T", err)
			}
			if me.Raw != tt.raw {
				t.Errorf("Raw = %q, want %q", me.Raw, tt.raw)
			}
		})
	}
}

func TestDecodeGrading(t *testing.T) {
	res, err := DecodeGrading(`{"expectedAnswer":"Paris","isCorrect":false,"feedback":"Wrong city"}`)
	if err != nil {
		t.Fatalf("DecodeGrading: %v", err)
	}
	want := GradingResult{ExpectedAnswer: "Paris", IsCorrect: false, Feedback: "Wrong city"}
	if *res != want {
		t.Errorf("DecodeGrading() = %+v, want %+v", *res, want)
	}
}

func TestDecodeGradingMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"correct!",
		`{"isCorrect":true,"feedback":"ok"}`,
		`{"expectedAnswer":"x","feedback":"ok"}`,
		`{"expectedAnswer":"x","isCorrect":"yes","feedback":"ok"}`,
		`{"expectedAnswer":"x","isCorrect":true}`,
	} {
		_, err := DecodeGrading(raw)
		if !errors.Is(err, ErrMalformedGrading) {
			t.Errorf("DecodeGrading(%q) error = %v, want ErrMalformedGrading", raw, err)
		}
		if errors.Is(err, ErrMalformedQuiz) {
			t.Errorf("DecodeGrading(%q) should not match ErrMalformedQuiz", raw)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}\n", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"```", "```"},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuestionHelpers(t *testing.T) {
	single := Question{Kind: KindMultipleChoice, Options: []Option{
		{Index: 0, Text: "Paris", Correct: true},
		{Index: 1, Text: "Rome"},
	}}
	multi := Question{Kind: KindMultipleChoice, Options: []Option{
		{Index: 0, Text: "2", Correct: true},
		{Index: 1, Text: "3", Correct: true},
		{Index: 2, Text: "4"},
	}}
	none := Question{Kind: KindMultipleChoice, Options: []Option{{Index: 0, Text: "x"}}}

	if single.MultiSelect() {
		t.Error("single-answer question should not be multi-select")
	}
	if !multi.MultiSelect() {
		t.Error("two correct options should be multi-select")
	}
	if none.CorrectCount() != 0 {
		t.Errorf("CorrectCount() = %d, want 0", none.CorrectCount())
	}
	if got := multi.CorrectAnswerText(); got != "2, 3" {
		t.Errorf("CorrectAnswerText() = %q, want %q", got, "2, 3")
	}
	if (Question{Kind: KindFreeAnswer}).MultiSelect() {
		t.Error("free answer is never multi-select")
	}
}

func TestIsAllowedModel(t *testing.T) {
	if !IsAllowedModel(DefaultModel) {
		t.Error("default model must be allowed")
	}
	if !IsAllowedModel("gemini-1.5-flash") {
		t.Error("flash must be allowed")
	}
	if IsAllowedModel("gpt-4o") {
		t.Error("gpt-4o must not be allowed")
	}
}
