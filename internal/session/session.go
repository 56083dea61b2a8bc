// Package session implements the quiz-taking state machine: the current
// question, the user's selection, grading of each answer, and scoring.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/recap/internal/model"
)

// Phase is the position of a session in the quiz lifecycle.
type Phase string

const (
	PhaseAnswering Phase = "answering"
	PhaseGrading   Phase = "grading"
	PhaseGraded    Phase = "graded"
	PhaseFinished  Phase = "finished"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrWrongKind         = errors.New("operation does not apply to this question type")
	ErrEmptyAnswer       = errors.New("answer is empty")
	ErrOptionOutOfRange  = errors.New("option index out of range")
	ErrFinished          = errors.New("quiz is finished")
	ErrStaleTicket       = errors.New("grading reply is for a question no longer active")
	ErrNoQuestions       = errors.New("quiz has no questions")
)

// MultipleChoiceFeedback is the feedback attached to locally graded answers.
const MultipleChoiceFeedback = "Review the correct and incorrect options."

// GradingState is the grading status of the current question. It is one of
// GradingInitial, GradingLoading, GradingSuccess or GradingError.
type GradingState interface {
	gradingState()
}

type (
	GradingInitial struct{}
	GradingLoading struct{}
	GradingSuccess struct{ Result model.GradingResult }
	GradingError   struct{ Message string }
)

func (GradingInitial) gradingState() {}
func (GradingLoading) gradingState() {}
func (GradingSuccess) gradingState() {}
func (GradingError) gradingState()   {}

// Grader grades a free answer and returns the raw model reply.
type Grader interface {
	GradeFreeAnswer(ctx context.Context, q model.Question, answer string) (string, error)
}

// Ticket tags a grading request with the question it belongs to, so a late
// reply cannot overwrite the state of a different question.
type Ticket struct {
	Question int
	Seq      uint64
}

// Session is one run through a quiz. It is safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	quiz      *model.Quiz
	phase     Phase
	index     int
	selected  map[int]bool
	freeText  string
	score     int
	grading   GradingState
	answers   []model.UserAnswer
	seq       uint64
	abandoned bool
}

// New starts a session at the first question.
func New(quiz *model.Quiz) (*Session, error) {
	if quiz == nil || len(quiz.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	return &Session{
		quiz:     quiz,
		phase:    PhaseAnswering,
		selected: make(map[int]bool),
		grading:  GradingInitial{},
	}, nil
}

func (s *Session) current() model.Question {
	return s.quiz.Questions[s.index]
}

func (s *Session) checkActive() error {
	if s.abandoned || s.phase == PhaseFinished {
		return ErrFinished
	}
	return nil
}

// ToggleOption changes the selection of a multiple-choice question. When the
// question has more than one correct option the option is toggled; otherwise
// it replaces the selection.
func (s *Session) ToggleOption(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return err
	}
	if s.phase != PhaseAnswering {
		return fmt.Errorf("%w: toggle option in phase %s", ErrInvalidTransition, s.phase)
	}
	q := s.current()
	if q.Kind != model.KindMultipleChoice {
		return ErrWrongKind
	}
	if i < 0 || i >= len(q.Options) {
		return fmt.Errorf("%w: %d", ErrOptionOutOfRange, i)
	}

	if q.MultiSelect() {
		if s.selected[i] {
			delete(s.selected, i)
		} else {
			s.selected[i] = true
		}
		return nil
	}
	clear(s.selected)
	s.selected[i] = true
	return nil
}

// SetFreeText stores the current free-answer input.
func (s *Session) SetFreeText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return err
	}
	if s.phase != PhaseAnswering {
		return fmt.Errorf("%w: edit answer in phase %s", ErrInvalidTransition, s.phase)
	}
	if s.current().Kind != model.KindFreeAnswer {
		return ErrWrongKind
	}
	s.freeText = text
	return nil
}

// CanSubmit reports whether the current answer may be submitted.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSubmitLocked()
}

func (s *Session) canSubmitLocked() bool {
	if s.checkActive() != nil || s.phase != PhaseAnswering {
		return false
	}
	if s.current().Kind == model.KindMultipleChoice {
		return len(s.selected) > 0
	}
	return strings.TrimSpace(s.freeText) != ""
}

// SubmitChoice grades the current multiple-choice question locally. The
// answer is correct only when the selection equals the set of correct options.
func (s *Session) SubmitChoice() (model.GradingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return model.GradingResult{}, err
	}
	if s.phase != PhaseAnswering {
		return model.GradingResult{}, fmt.Errorf("%w: submit in phase %s", ErrInvalidTransition, s.phase)
	}
	q := s.current()
	if q.Kind != model.KindMultipleChoice {
		return model.GradingResult{}, ErrWrongKind
	}
	if len(s.selected) == 0 {
		return model.GradingResult{}, ErrEmptyAnswer
	}

	res := model.GradingResult{
		ExpectedAnswer: q.CorrectAnswerText(),
		IsCorrect:      gradeChoice(q, s.selected),
		Feedback:       MultipleChoiceFeedback,
	}
	s.phase = PhaseGraded
	s.grading = GradingSuccess{Result: res}
	return res, nil
}

func gradeChoice(q model.Question, selected map[int]bool) bool {
	if len(selected) != q.CorrectCount() {
		return false
	}
	for i := range selected {
		if !q.Options[i].Correct {
			return false
		}
	}
	return true
}

// BeginGrading moves a free-answer question into the grading phase and
// returns the ticket the reply must be completed with.
func (s *Session) BeginGrading() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return Ticket{}, err
	}
	if s.phase != PhaseAnswering {
		return Ticket{}, fmt.Errorf("%w: grade in phase %s", ErrInvalidTransition, s.phase)
	}
	if s.current().Kind != model.KindFreeAnswer {
		return Ticket{}, ErrWrongKind
	}
	if strings.TrimSpace(s.freeText) == "" {
		return Ticket{}, ErrEmptyAnswer
	}
	s.seq++
	s.phase = PhaseGrading
	s.grading = GradingLoading{}
	return Ticket{Question: s.index, Seq: s.seq}, nil
}

// CompleteGrading applies a grading reply. A reply whose ticket no longer
// matches the session is discarded with ErrStaleTicket. A failed call or an
// undecodable reply leaves the question answerable with the error shown.
func (s *Session) CompleteGrading(t Ticket, raw string, callErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned || s.phase != PhaseGrading || t.Question != s.index || t.Seq != s.seq {
		slog.Debug("discarding stale grading reply", "question", t.Question, "seq", t.Seq)
		return ErrStaleTicket
	}

	if callErr != nil {
		s.phase = PhaseAnswering
		s.grading = GradingError{Message: callErr.Error()}
		return nil
	}
	res, err := model.DecodeGrading(raw)
	if err != nil {
		s.phase = PhaseAnswering
		s.grading = GradingError{Message: "Failed to grade response: " + err.Error()}
		return nil
	}
	s.phase = PhaseGraded
	s.grading = GradingSuccess{Result: *res}
	return nil
}

// SubmitFreeAnswer grades the current free answer with g. The session lock
// is not held while g runs.
func (s *Session) SubmitFreeAnswer(ctx context.Context, g Grader) error {
	t, err := s.BeginGrading()
	if err != nil {
		return err
	}
	s.mu.Lock()
	q := s.current()
	answer := s.freeText
	s.mu.Unlock()

	raw, callErr := g.GradeFreeAnswer(ctx, q, answer)
	return s.CompleteGrading(t, raw, callErr)
}

// Submit grades the current question with the method its type requires.
func (s *Session) Submit(ctx context.Context, g Grader) error {
	s.mu.Lock()
	kind := s.current().Kind
	s.mu.Unlock()
	if kind == model.KindMultipleChoice {
		_, err := s.SubmitChoice()
		return err
	}
	return s.SubmitFreeAnswer(ctx, g)
}

// Next records the graded answer and moves to the following question, or
// finishes the quiz after the last one.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return err
	}
	if s.phase != PhaseGraded {
		return fmt.Errorf("%w: next in phase %s", ErrInvalidTransition, s.phase)
	}
	success, ok := s.grading.(GradingSuccess)
	if !ok {
		return fmt.Errorf("%w: graded without a result", ErrInvalidTransition)
	}
	res := success.Result
	q := s.current()

	expected := res.ExpectedAnswer
	s.answers = append(s.answers, model.UserAnswer{
		ID:            uuid.New(),
		Question:      q,
		Answer:        s.answerTextLocked(q),
		IsCorrect:     res.IsCorrect,
		CorrectAnswer: &expected,
		Feedback:      res.Feedback,
	})
	if res.IsCorrect {
		s.score++
	}

	if s.index+1 < len(s.quiz.Questions) {
		s.index++
		s.phase = PhaseAnswering
		clear(s.selected)
		s.freeText = ""
		s.grading = GradingInitial{}
		return nil
	}
	s.phase = PhaseFinished
	slog.Info("quiz finished", "title", s.quiz.Title, "score", s.score, "total", len(s.quiz.Questions))
	return nil
}

func (s *Session) answerTextLocked(q model.Question) []string {
	if q.Kind == model.KindFreeAnswer {
		return []string{s.freeText}
	}
	var out []string
	for _, o := range q.Options {
		if s.selected[o.Index] {
			out = append(out, o.Text)
		}
	}
	return out
}

// Abandon ends the session without finishing it. Later operations fail with ErrFinished.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = true
}

// Finished reports whether the last question has been recorded.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseFinished
}

// Summary returns the score and answer log.
func (s *Session) Summary() model.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Summary{
		Title:   s.quiz.Title,
		Score:   s.score,
		Total:   len(s.quiz.Questions),
		Answers: slices.Clone(s.answers),
	}
}

// View is a read-only snapshot of a session for rendering.
type View struct {
	Title      string
	Phase      Phase
	Index      int
	Total      int
	Question   model.Question
	Selected   map[int]bool
	FreeText   string
	ShowAnswer bool
	CanSubmit  bool
	Grading    GradingState
	Score      int
	Answers    []model.UserAnswer
}

// Snapshot copies the session state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.current()
	sel := make(map[int]bool, len(s.selected))
	for k, v := range s.selected {
		sel[k] = v
	}
	return View{
		Title:      s.quiz.Title,
		Phase:      s.phase,
		Index:      s.index,
		Total:      len(s.quiz.Questions),
		Question:   q,
		Selected:   sel,
		FreeText:   s.freeText,
		ShowAnswer: s.phase == PhaseGraded && q.Kind == model.KindMultipleChoice,
		CanSubmit:  s.canSubmitLocked(),
		Grading:    s.grading,
		Score:      s.score,
		Answers:    slices.Clone(s.answers),
	}
}
