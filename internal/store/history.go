package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/recap/internal/model"
)

// SaveResult stores a finished quiz and its answer log.
func (s *Store) SaveResult(sum model.Summary, meta model.ResultMeta) (string, error) {
	id := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO quiz_results (id, title, score, total, model, language, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sum.Title, sum.Score, sum.Total, meta.Model, meta.Language, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("insert result: %w", err)
	}

	for i, a := range sum.Answers {
		answer, err := json.Marshal(a.Answer)
		if err != nil {
			return "", fmt.Errorf("encode answer %d: %w", i, err)
		}
		var correct string
		if a.CorrectAnswer != nil {
			correct = *a.CorrectAnswer
		}
		_, err = tx.Exec(
			`INSERT INTO quiz_answers (id, result_id, position, question, kind, answer, is_correct, correct_answer, feedback)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID.String(), id, i, a.Question.Prompt, a.Question.Kind, string(answer), a.IsCorrect, correct, a.Feedback,
		)
		if err != nil {
			return "", fmt.Errorf("insert answer %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Info("saved quiz result", "id", id, "score", sum.Score, "total", sum.Total)
	return id, nil
}

// ListResults returns stored results without answers, newest first.
func (s *Store) ListResults() ([]model.QuizResult, error) {
	rows, err := s.db.Query(
		`SELECT id, title, score, total, model, language, finished_at
		 FROM quiz_results ORDER BY finished_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.QuizResult
	for rows.Next() {
		var r model.QuizResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Score, &r.Total, &r.Model, &r.Language, &r.FinishedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetResult returns a stored result with its answers, or nil if not found.
func (s *Store) GetResult(id string) (*model.QuizResult, error) {
	var r model.QuizResult
	err := s.db.QueryRow(
		`SELECT id, title, score, total, model, language, finished_at
		 FROM quiz_results WHERE id = ?`, id,
	).Scan(&r.ID, &r.Title, &r.Score, &r.Total, &r.Model, &r.Language, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	answers, err := s.getAnswers(id)
	if err != nil {
		return nil, err
	}
	r.Answers = answers
	return &r, nil
}

func (s *Store) getAnswers(resultID string) ([]model.AnswerRecord, error) {
	rows, err := s.db.Query(
		`SELECT position, question, kind, answer, is_correct, correct_answer, feedback
		 FROM quiz_answers WHERE result_id = ? ORDER BY position`, resultID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.AnswerRecord
	for rows.Next() {
		var (
			a   model.AnswerRecord
			raw string
		)
		if err := rows.Scan(&a.Position, &a.Question, &a.Kind, &raw, &a.IsCorrect, &a.CorrectAnswer, &a.Feedback); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &a.Answer); err != nil {
			return nil, fmt.Errorf("decode answer of %s/%d: %w", resultID, a.Position, err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ResultCount returns the number of stored results.
func (s *Store) ResultCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM quiz_results`).Scan(&count)
	return count, err
}
