package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/recap/internal/model"
)

// ExportAll builds an export of every stored result with its answers.
func (s *Store) ExportAll() (model.HistoryExport, error) {
	export := model.HistoryExport{ExportedAt: time.Now().UTC()}

	results, err := s.ListResults()
	if err != nil {
		return export, fmt.Errorf("list results: %w", err)
	}

	for _, r := range results {
		answers, err := s.getAnswers(r.ID)
		if err != nil {
			return export, fmt.Errorf("get answers of %s: %w", r.ID, err)
		}
		r.Answers = answers
		export.Results = append(export.Results, r)
	}
	return export, nil
}
