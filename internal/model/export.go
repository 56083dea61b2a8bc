package model

import "time"

// HistoryExport is the top-level JSON structure for `recap export`.
type HistoryExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Results    []QuizResult `json:"results"`
}

// QuizResult is a finished quiz as stored in history.
type QuizResult struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Score      int            `json:"score"`
	Total      int            `json:"total"`
	Model      string         `json:"model"`
	Language   string         `json:"language"`
	FinishedAt time.Time      `json:"finished_at"`
	Answers    []AnswerRecord `json:"answers,omitempty"`
}

// AnswerRecord holds one answered question of a stored result.
type AnswerRecord struct {
	Position      int          `json:"position"`
	Question      string       `json:"question"`
	Kind          QuestionKind `json:"kind"`
	Answer        []string     `json:"answer"`
	IsCorrect     bool         `json:"is_correct"`
	CorrectAnswer string       `json:"correct_answer"`
	Feedback      string       `json:"feedback,omitempty"`
}

// ResultMeta describes the circumstances of a finished quiz.
type ResultMeta struct {
	Model    string
	Language string
}
