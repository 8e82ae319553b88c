package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/docexam/internal/model"
)

// ExportAllSessions builds export-ready results from all stored sessions.
func (s *Store) ExportAllSessions(now time.Time) (model.ExamExport, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("list sessions: %w", err)
	}

	results := make([]model.SessionResult, 0, len(sessions))
	for _, sum := range sessions {
		res, err := s.GetResult(sum.ID)
		if err != nil {
			return model.ExamExport{}, fmt.Errorf("get session %s: %w", sum.ID, err)
		}
		results = append(results, res)
	}

	return model.ExamExport{
		ExportedAt: now,
		Count:      len(results),
		Results:    results,
	}, nil
}
