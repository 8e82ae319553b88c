// Package store persists finished and in-progress examination results in
// SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/docexam/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no result is stored under an ID.
var ErrNotFound = errors.New("result not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exam_sessions (
		id TEXT PRIMARY KEY,
		document_title TEXT NOT NULL,
		document_type TEXT NOT NULL DEFAULT 'general',
		document_summary TEXT NOT NULL DEFAULT '',
		pages INTEGER NOT NULL DEFAULT 0,
		total_questions INTEGER NOT NULL DEFAULT 0,
		total_marks INTEGER NOT NULL DEFAULT 0,
		max_marks INTEGER NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'FAIL',
		lifelines_total INTEGER NOT NULL DEFAULT 0,
		final_evaluation TEXT NOT NULL DEFAULT '',
		models TEXT NOT NULL DEFAULT '[]',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		session_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		focus_area TEXT NOT NULL DEFAULT '',
		question TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		evaluation TEXT NOT NULL DEFAULT '',
		mark INTEGER,
		PRIMARY KEY (session_id, number),
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS lifeline_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question_index INTEGER NOT NULL,
		kind TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exam_sessions_started ON exam_sessions(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveResult inserts or replaces the stored result of a session.
func (s *Store) SaveResult(res model.SessionResult) error {
	if res.ID == "" {
		return errors.New("save result: empty session id")
	}
	models, err := json.Marshal(res.Models)
	if err != nil {
		return fmt.Errorf("encode models: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO exam_sessions (id, document_title, document_type, document_summary, pages,
			total_questions, total_marks, max_marks, percentage, status, lifelines_total,
			final_evaluation, models, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			document_title = excluded.document_title,
			document_type = excluded.document_type,
			document_summary = excluded.document_summary,
			pages = excluded.pages,
			total_questions = excluded.total_questions,
			total_marks = excluded.total_marks,
			max_marks = excluded.max_marks,
			percentage = excluded.percentage,
			status = excluded.status,
			lifelines_total = excluded.lifelines_total,
			final_evaluation = excluded.final_evaluation,
			models = excluded.models,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		res.ID, res.DocumentTitle, res.DocumentType, res.DocumentSummary, res.Pages,
		res.TotalQuestions, res.Score.TotalMarks, res.Score.MaxMarks, res.Score.Percentage, res.Score.Status,
		res.LifelinesTotal, res.FinalEvaluation, string(models), res.StartedAt, res.CompletedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", res.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM exam_questions WHERE session_id = ?`, res.ID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM lifeline_events WHERE session_id = ?`, res.ID); err != nil {
		return fmt.Errorf("clear lifelines: %w", err)
	}
	for _, q := range res.Questions {
		_, err := tx.Exec(
			`INSERT INTO exam_questions (session_id, number, focus_area, question, answer, evaluation, mark)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			res.ID, q.Number, q.FocusArea, q.Question, q.Answer, q.Evaluation, q.Mark,
		)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", q.Number, err)
		}
	}
	for _, l := range res.Lifelines {
		_, err := tx.Exec(
			`INSERT INTO lifeline_events (session_id, question_index, kind) VALUES (?, ?, ?)`,
			res.ID, l.QuestionIndex, l.Kind,
		)
		if err != nil {
			return fmt.Errorf("insert lifeline: %w", err)
		}
	}
	return tx.Commit()
}

// GetResult returns the stored result of a session.
func (s *Store) GetResult(id string) (model.SessionResult, error) {
	var res model.SessionResult
	var models string
	err := s.db.QueryRow(
		`SELECT id, document_title, document_type, document_summary, pages, total_questions,
			total_marks, max_marks, percentage, status, lifelines_total, final_evaluation,
			models, started_at, completed_at
		 FROM exam_sessions WHERE id = ?`, id,
	).Scan(&res.ID, &res.DocumentTitle, &res.DocumentType, &res.DocumentSummary, &res.Pages, &res.TotalQuestions,
		&res.Score.TotalMarks, &res.Score.MaxMarks, &res.Score.Percentage, &res.Score.Status, &res.LifelinesTotal,
		&res.FinalEvaluation, &models, &res.StartedAt, &res.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return res, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal([]byte(models), &res.Models); err != nil {
		return res, fmt.Errorf("decode models: %w", err)
	}

	if res.Questions, err = s.questions(id); err != nil {
		return res, err
	}
	if res.Lifelines, err = s.lifelines(id); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Store) questions(sessionID string) ([]model.QuestionResult, error) {
	rows, err := s.db.Query(
		`SELECT number, focus_area, question, answer, evaluation, mark
		 FROM exam_questions WHERE session_id = ? ORDER BY number`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	questions := []model.QuestionResult{}
	for rows.Next() {
		var q model.QuestionResult
		if err := rows.Scan(&q.Number, &q.FocusArea, &q.Question, &q.Answer, &q.Evaluation, &q.Mark); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) lifelines(sessionID string) ([]model.LifelineUse, error) {
	rows, err := s.db.Query(
		`SELECT question_index, kind FROM lifeline_events WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	uses := []model.LifelineUse{}
	for rows.Next() {
		var l model.LifelineUse
		if err := rows.Scan(&l.QuestionIndex, &l.Kind); err != nil {
			return nil, err
		}
		uses = append(uses, l)
	}
	return uses, rows.Err()
}

// ListSessions returns summaries of all stored sessions, newest first.
func (s *Store) ListSessions() ([]model.SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, document_title, document_type, total_questions, percentage, status, started_at, completed_at
		 FROM exam_sessions ORDER BY started_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.DocumentTitle, &sum.DocumentType, &sum.TotalQuestions,
			&sum.Percentage, &sum.Status, &sum.StartedAt, &sum.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// DeleteResult removes a stored session with its questions and lifelines.
func (s *Store) DeleteResult(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM exam_questions WHERE session_id = ?`,
		`DELETE FROM lifeline_events WHERE session_id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
	}
	res, err := tx.Exec(`DELETE FROM exam_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exam_sessions`).Scan(&n)
	return n, err
}
