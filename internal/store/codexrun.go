package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CodexRun records one invocation of an engine adapter (plan/execute/qa) for
// auditing and cost accounting. The name CodexRun is kept from the
// entity's original role: one row per agent call, regardless of which
// engine served it.
type CodexRun struct {
	RunID         string
	JobType       string
	RunKind       string
	Status        string
	ProjectID     sql.NullInt64
	ProtocolRunID sql.NullInt64
	StepRunID     sql.NullInt64
	Queue         string
	Attempt       int
	WorkerID      string
	StartedAt     sql.NullTime
	FinishedAt    sql.NullTime
	PromptVersion string
	Params        json.RawMessage
	Result        json.RawMessage
	Error         string
	LogPath       string
	CostTokens    int64
	CostCents     int64
	CreatedAt     string
	UpdatedAt     string
}

// CreateCodexRunInput carries the fields needed to record a new engine invocation.
type CreateCodexRunInput struct {
	RunID         string
	JobType       string
	RunKind       string
	ProjectID     int64
	ProtocolRunID int64
	StepRunID     int64
	Queue         string
	PromptVersion string
	Params        json.RawMessage
}

// CreateCodexRun inserts a queued CodexRun row.
func (s *Store) CreateCodexRun(in CreateCodexRunInput) (*CodexRun, error) {
	if in.RunID == "" || in.JobType == "" {
		return nil, fmt.Errorf("%w: run_id and job_type are required", ErrValidation)
	}
	if in.Queue == "" {
		in.Queue = "default"
	}
	params := in.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	_, err := s.db.Exec(`
		INSERT INTO codex_runs (
			run_id, job_type, run_kind, status, project_id, protocol_run_id, step_run_id,
			queue, prompt_version, params
		) VALUES (?, ?, ?, 'queued', ?, ?, ?, ?, ?, ?)
	`, in.RunID, in.JobType, in.RunKind, nullableID(in.ProjectID), nullableID(in.ProtocolRunID),
		nullableID(in.StepRunID), in.Queue, in.PromptVersion, string(params))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, fmt.Errorf("%w: codex_run %s already exists", ErrConflict, in.RunID)
		}
		return nil, fmt.Errorf("store: create codex run: %w", err)
	}
	return s.GetCodexRun(in.RunID)
}

// GetCodexRun fetches a run by its run id.
func (s *Store) GetCodexRun(runID string) (*CodexRun, error) {
	return scanCodexRun(s.db.QueryRow(`
		SELECT run_id, job_type, run_kind, status, project_id, protocol_run_id, step_run_id,
			queue, attempt, worker_id, started_at, finished_at, prompt_version, params, result,
			error, log_path, cost_tokens, cost_cents, created_at, updated_at
		FROM codex_runs WHERE run_id = ?
	`, runID))
}

// MarkCodexRunStarted transitions a run to running, recording the worker and attempt number.
func (s *Store) MarkCodexRunStarted(runID, workerID string, attempt int) error {
	res, err := s.db.Exec(`
		UPDATE codex_runs SET status = 'running', worker_id = ?, attempt = ?,
			started_at = datetime('now'), updated_at = datetime('now')
		WHERE run_id = ?
	`, workerID, attempt, runID)
	if err != nil {
		return fmt.Errorf("store: mark codex run started: %w", err)
	}
	return requireRowsAffected(res, "codex_run", runID)
}

// TouchCodexRunHeartbeat bumps updated_at on a running CodexRun so the
// worker supervisor's dead-worker sweep can tell a slow job from a worker
// that stopped heartbeating.
func (s *Store) TouchCodexRunHeartbeat(runID string) error {
	res, err := s.db.Exec(`UPDATE codex_runs SET updated_at = datetime('now') WHERE run_id = ? AND status = 'running'`, runID)
	if err != nil {
		return fmt.Errorf("store: touch codex run heartbeat: %w", err)
	}
	return requireRowsAffected(res, "codex_run", runID)
}

// CompleteCodexRun records a terminal result for a run (status "succeeded" or "failed").
func (s *Store) CompleteCodexRun(runID, status string, result json.RawMessage, errMsg string, costTokens, costCents int64) error {
	if len(result) == 0 {
		result = json.RawMessage("{}")
	}
	res, err := s.db.Exec(`
		UPDATE codex_runs SET status = ?, result = ?, error = ?, cost_tokens = ?, cost_cents = ?,
			finished_at = datetime('now'), updated_at = datetime('now')
		WHERE run_id = ?
	`, status, string(result), errMsg, costTokens, costCents, runID)
	if err != nil {
		return fmt.Errorf("store: complete codex run: %w", err)
	}
	return requireRowsAffected(res, "codex_run", runID)
}

// ListCodexRunsByStep returns all engine invocations recorded for a step, oldest first.
func (s *Store) ListCodexRunsByStep(stepRunID int64) ([]*CodexRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, job_type, run_kind, status, project_id, protocol_run_id, step_run_id,
			queue, attempt, worker_id, started_at, finished_at, prompt_version, params, result,
			error, log_path, cost_tokens, cost_cents, created_at, updated_at
		FROM codex_runs WHERE step_run_id = ? ORDER BY created_at
	`, stepRunID)
	if err != nil {
		return nil, fmt.Errorf("store: list codex runs: %w", err)
	}
	defer rows.Close()

	var out []*CodexRun
	for rows.Next() {
		cr, err := scanCodexRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// ListRunningCodexRuns returns every CodexRun currently in status "running",
// for the worker supervisor's dead-worker sweep.
func (s *Store) ListRunningCodexRuns() ([]*CodexRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, job_type, run_kind, status, project_id, protocol_run_id, step_run_id,
			queue, attempt, worker_id, started_at, finished_at, prompt_version, params, result,
			error, log_path, cost_tokens, cost_cents, created_at, updated_at
		FROM codex_runs WHERE status = 'running' ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list running codex runs: %w", err)
	}
	defer rows.Close()

	var out []*CodexRun
	for rows.Next() {
		cr, err := scanCodexRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func scanCodexRun(row *sql.Row) (*CodexRun, error) {
	cr, err := scanCodexRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: codex_run", ErrNotFound)
	}
	return cr, err
}

func scanCodexRunRow(row rowScanner) (*CodexRun, error) {
	var cr CodexRun
	var params, result string
	err := row.Scan(&cr.RunID, &cr.JobType, &cr.RunKind, &cr.Status, &cr.ProjectID, &cr.ProtocolRunID,
		&cr.StepRunID, &cr.Queue, &cr.Attempt, &cr.WorkerID, &cr.StartedAt, &cr.FinishedAt,
		&cr.PromptVersion, &params, &result, &cr.Error, &cr.LogPath, &cr.CostTokens, &cr.CostCents,
		&cr.CreatedAt, &cr.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan codex run: %w", err)
	}
	cr.Params = json.RawMessage(params)
	cr.Result = json.RawMessage(result)
	return &cr, nil
}
