package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Clarification is a blocking or advisory question raised during planning
// or execution that a human (or an automated default) must answer before a
// step can proceed (spec.md §4.G).
type Clarification struct {
	ID            int64
	Scope         string // "project", "protocol", or "step"
	ProjectID     int64
	ProtocolRunID int64 // 0 means unscoped to a protocol run
	StepRunID     int64 // 0 means unscoped to a step run
	Key           string
	Question      string
	Options       []string
	Recommended   string
	Blocking      bool
	Answer        string
	Status        string // "open", "answered", "dismissed"
	AnsweredAt    sql.NullTime
	AnsweredBy    string
	CreatedAt     string
	UpdatedAt     string
}

// CreateClarificationInput carries the fields needed to raise a clarification.
type CreateClarificationInput struct {
	Scope         string
	ProjectID     int64
	ProtocolRunID int64
	StepRunID     int64
	Key           string
	Question      string
	Options       []string
	Recommended   string
	Blocking      bool
}

// CreateClarification raises a new open clarification. A duplicate
// (scope, project_id, protocol_run_id, step_run_id, key) is returned as the
// existing row rather than erroring, so repeated planning passes over the
// same ambiguity are idempotent.
func (s *Store) CreateClarification(in CreateClarificationInput) (*Clarification, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" || in.Scope == "" {
		return nil, fmt.Errorf("%w: scope and key are required", ErrValidation)
	}
	options, err := json.Marshal(nonNilStrings(in.Options))
	if err != nil {
		return nil, fmt.Errorf("store: marshal options: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO clarifications (
			scope, project_id, protocol_run_id, step_run_id, key, question, options, recommended, blocking
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, project_id, protocol_run_id, step_run_id, key) DO NOTHING
	`, in.Scope, in.ProjectID, in.ProtocolRunID, in.StepRunID,
		key, in.Question, string(options), in.Recommended, in.Blocking)
	if err != nil {
		return nil, fmt.Errorf("store: create clarification: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil && id != 0 {
		if n, _ := res.RowsAffected(); n > 0 {
			return s.GetClarification(id)
		}
	}
	return s.getClarificationByKey(in.Scope, in.ProjectID, in.ProtocolRunID, in.StepRunID, key)
}

// GetClarification fetches a clarification by id.
func (s *Store) GetClarification(id int64) (*Clarification, error) {
	return scanClarification(s.db.QueryRow(`
		SELECT id, scope, project_id, protocol_run_id, step_run_id, key, question, options,
			recommended, blocking, answer, status, answered_at, answered_by, created_at, updated_at
		FROM clarifications WHERE id = ?
	`, id))
}

func (s *Store) getClarificationByKey(scope string, projectID, protocolRunID, stepRunID int64, key string) (*Clarification, error) {
	return scanClarification(s.db.QueryRow(`
		SELECT id, scope, project_id, protocol_run_id, step_run_id, key, question, options,
			recommended, blocking, answer, status, answered_at, answered_by, created_at, updated_at
		FROM clarifications
		WHERE scope = ? AND project_id = ? AND protocol_run_id = ? AND step_run_id = ? AND key = ?
	`, scope, projectID, protocolRunID, stepRunID, key))
}

// ListOpenClarifications returns open (unanswered, non-dismissed) clarifications for a protocol run.
func (s *Store) ListOpenClarifications(protocolRunID int64) ([]*Clarification, error) {
	rows, err := s.db.Query(`
		SELECT id, scope, project_id, protocol_run_id, step_run_id, key, question, options,
			recommended, blocking, answer, status, answered_at, answered_by, created_at, updated_at
		FROM clarifications WHERE protocol_run_id = ? AND status = 'open' ORDER BY id
	`, protocolRunID)
	if err != nil {
		return nil, fmt.Errorf("store: list open clarifications: %w", err)
	}
	defer rows.Close()

	var out []*Clarification
	for rows.Next() {
		c, err := scanClarificationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AnswerClarification records an answer and marks the clarification answered.
// Answering an already-answered clarification is rejected with ErrConflict.
func (s *Store) AnswerClarification(id int64, answer, answeredBy string) error {
	res, err := s.db.Exec(`
		UPDATE clarifications SET answer = ?, status = 'answered', answered_at = datetime('now'),
			answered_by = ?, updated_at = datetime('now')
		WHERE id = ? AND status = 'open'
	`, answer, answeredBy, id)
	if err != nil {
		return fmt.Errorf("store: answer clarification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: answer clarification: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: clarification %d is not open", ErrConflict, id)
	}
	return nil
}

func scanClarification(row *sql.Row) (*Clarification, error) {
	c, err := scanClarificationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: clarification", ErrNotFound)
	}
	return c, err
}

func scanClarificationRow(row rowScanner) (*Clarification, error) {
	var c Clarification
	var options string
	err := row.Scan(&c.ID, &c.Scope, &c.ProjectID, &c.ProtocolRunID, &c.StepRunID, &c.Key, &c.Question,
		&options, &c.Recommended, &c.Blocking, &c.Answer, &c.Status, &c.AnsweredAt, &c.AnsweredBy,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan clarification: %w", err)
	}
	_ = json.Unmarshal([]byte(options), &c.Options)
	return &c, nil
}
