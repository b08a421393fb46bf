package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StepRun is one unit of work inside a ProtocolRun's DAG.
type StepRun struct {
	ID             int64
	ProtocolRunID  int64
	StepIndex      int
	StepName       string
	StepType       string
	Status         StepStatus
	Retries        int
	Priority       int
	Model          string
	EngineID       string
	Policy         json.RawMessage
	RuntimeState   json.RawMessage
	DependsOn      []string
	ParallelGroup  string
	AssignedAgent  string
	Summary        string
	CreatedAt      string
	UpdatedAt      string
}

// CreateStepRunInput carries the fields needed to add one step to a protocol run.
type CreateStepRunInput struct {
	ProtocolRunID int64
	StepIndex     int
	StepName      string
	StepType      string
	Priority      int
	Model         string
	EngineID      string
	Policy        json.RawMessage
	DependsOn     []string
	ParallelGroup string
}

// CreateStepRun inserts a step in StepPending status. A duplicate step_index
// or step_name within the same protocol run yields ErrDuplicateStep.
func (s *Store) CreateStepRun(in CreateStepRunInput) (*StepRun, error) {
	name := strings.TrimSpace(in.StepName)
	if name == "" {
		return nil, fmt.Errorf("%w: step_name is required", ErrValidation)
	}
	if in.StepType == "" {
		in.StepType = "work"
	}
	policy := in.Policy
	if len(policy) == 0 {
		policy = json.RawMessage("{}")
	}
	deps, err := json.Marshal(nonNilStrings(in.DependsOn))
	if err != nil {
		return nil, fmt.Errorf("store: marshal depends_on: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO step_runs (
			protocol_run_id, step_index, step_name, step_type, status, priority,
			model, engine_id, policy, depends_on, parallel_group
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ProtocolRunID, in.StepIndex, name, in.StepType, string(StepPending), in.Priority,
		in.Model, in.EngineID, string(policy), string(deps), in.ParallelGroup)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, fmt.Errorf("%w: protocol %d already has step index %d or name %q",
				ErrDuplicateStep, in.ProtocolRunID, in.StepIndex, name)
		}
		return nil, fmt.Errorf("store: create step run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create step run: %w", err)
	}
	return s.GetStepRun(id)
}

// GetStepRun fetches a step run by id.
func (s *Store) GetStepRun(id int64) (*StepRun, error) {
	row := s.db.QueryRow(`
		SELECT id, protocol_run_id, step_index, step_name, step_type, status, retries, priority,
			model, engine_id, policy, runtime_state, depends_on, parallel_group, assigned_agent,
			summary, created_at, updated_at
		FROM step_runs WHERE id = ?
	`, id)
	return scanStepRun(row)
}

// ListStepRuns returns all steps for a protocol run ordered by step_index.
func (s *Store) ListStepRuns(protocolRunID int64) ([]*StepRun, error) {
	rows, err := s.db.Query(`
		SELECT id, protocol_run_id, step_index, step_name, step_type, status, retries, priority,
			model, engine_id, policy, runtime_state, depends_on, parallel_group, assigned_agent,
			summary, created_at, updated_at
		FROM step_runs WHERE protocol_run_id = ? ORDER BY step_index
	`, protocolRunID)
	if err != nil {
		return nil, fmt.Errorf("store: list step runs: %w", err)
	}
	defer rows.Close()

	var out []*StepRun
	for rows.Next() {
		sr, err := scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// TransitionStepStatus moves a step from `from` to `to`, checked atomically
// against the current row so two racing dispatchers cannot both win the
// same edge. retries is incremented by retryDelta (use 0 outside retry paths).
func (s *Store) TransitionStepStatus(id int64, from, to StepStatus, retryDelta int) error {
	if !stepTransitionAllowed(from, to) {
		return fmt.Errorf("%w: step %s -> %s", ErrIllegalTransition, from, to)
	}
	res, err := s.db.Exec(`
		UPDATE step_runs SET status = ?, retries = retries + ?, updated_at = datetime('now')
		WHERE id = ? AND status = ?
	`, string(to), retryDelta, id, string(from))
	if err != nil {
		return fmt.Errorf("store: transition step status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: transition step status: %w", err)
	}
	if n == 0 {
		current, getErr := s.GetStepRun(id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: step %d is %s, not %s", ErrIllegalTransition, id, current.Status, from)
	}
	return nil
}

// SetStepAssignment records which agent/engine a step was dispatched to.
func (s *Store) SetStepAssignment(id int64, engineID, assignedAgent string) error {
	res, err := s.db.Exec(`
		UPDATE step_runs SET engine_id = ?, assigned_agent = ?, updated_at = datetime('now') WHERE id = ?
	`, engineID, assignedAgent, id)
	if err != nil {
		return fmt.Errorf("store: set step assignment: %w", err)
	}
	return requireRowsAffected(res, "step_run", id)
}

// SetStepRuntimeState persists the opaque JSON blob an engine adapter uses to
// resume a multi-turn execution (e.g. IDE command-file correlation ids).
func (s *Store) SetStepRuntimeState(id int64, state json.RawMessage) error {
	if len(state) == 0 {
		state = json.RawMessage("{}")
	}
	res, err := s.db.Exec(`
		UPDATE step_runs SET runtime_state = ?, updated_at = datetime('now') WHERE id = ?
	`, string(state), id)
	if err != nil {
		return fmt.Errorf("store: set step runtime state: %w", err)
	}
	return requireRowsAffected(res, "step_run", id)
}

// SetStepSummary records the human-readable outcome summary for a finished step.
func (s *Store) SetStepSummary(id int64, summary string) error {
	res, err := s.db.Exec(`
		UPDATE step_runs SET summary = ?, updated_at = datetime('now') WHERE id = ?
	`, summary, id)
	if err != nil {
		return fmt.Errorf("store: set step summary: %w", err)
	}
	return requireRowsAffected(res, "step_run", id)
}

func scanStepRun(row rowScanner) (*StepRun, error) {
	var sr StepRun
	var status, policy, runtimeState, deps string
	var model, engineID, parallelGroup, assignedAgent, summary sql.NullString
	err := row.Scan(&sr.ID, &sr.ProtocolRunID, &sr.StepIndex, &sr.StepName, &sr.StepType, &status,
		&sr.Retries, &sr.Priority, &model, &engineID, &policy, &runtimeState, &deps,
		&parallelGroup, &assignedAgent, &summary, &sr.CreatedAt, &sr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: step_run", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan step run: %w", err)
	}
	sr.Status = StepStatus(status)
	sr.Model = model.String
	sr.EngineID = engineID.String
	sr.ParallelGroup = parallelGroup.String
	sr.AssignedAgent = assignedAgent.String
	sr.Summary = summary.String
	sr.Policy = json.RawMessage(policy)
	sr.RuntimeState = json.RawMessage(runtimeState)
	_ = json.Unmarshal([]byte(deps), &sr.DependsOn)
	return &sr, nil
}
