package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ProtocolRun is one execution of a protocol against a project.
type ProtocolRun struct {
	ID                  int64
	ProjectID           int64
	ProtocolName        string
	Status              ProtocolStatus
	BaseBranch          string
	WorktreePath        string
	ProtocolRoot        string
	Description         string
	TemplateConfig      json.RawMessage
	TemplateSource      string
	PolicyPackKey       string
	PolicyPackVersion   string
	PolicyEffectiveHash string
	PolicyEffectiveJSON json.RawMessage
	CreatedAt           string
	UpdatedAt           string
}

// CreateProtocolRunInput carries the fields needed to start a new protocol run.
type CreateProtocolRunInput struct {
	ProjectID         int64
	ProtocolName      string
	BaseBranch        string
	ProtocolRoot      string
	Description       string
	TemplateConfig    json.RawMessage
	TemplateSource    string
	PolicyPackKey     string
	PolicyPackVersion string
}

// CreateProtocolRun inserts a new protocol run in ProtocolPending status. A
// duplicate (project_id, protocol_name) yields ErrDuplicateProtocol.
func (s *Store) CreateProtocolRun(in CreateProtocolRunInput) (*ProtocolRun, error) {
	name := strings.TrimSpace(in.ProtocolName)
	if name == "" {
		return nil, fmt.Errorf("%w: protocol_name is required", ErrValidation)
	}
	tmpl := in.TemplateConfig
	if len(tmpl) == 0 {
		tmpl = json.RawMessage("{}")
	}

	res, err := s.db.Exec(`
		INSERT INTO protocol_runs (
			project_id, protocol_name, status, base_branch, protocol_root, description,
			template_config, template_source, policy_pack_key, policy_pack_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ProjectID, name, string(ProtocolPending), in.BaseBranch, in.ProtocolRoot, in.Description,
		string(tmpl), in.TemplateSource, in.PolicyPackKey, in.PolicyPackVersion)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, fmt.Errorf("%w: project %d already running protocol %q", ErrDuplicateProtocol, in.ProjectID, name)
		}
		return nil, fmt.Errorf("store: create protocol run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create protocol run: %w", err)
	}
	return s.GetProtocolRun(id)
}

// GetProtocolRun fetches a protocol run by id. Idempotent: repeated calls
// with the same id return the same row without side effects.
func (s *Store) GetProtocolRun(id int64) (*ProtocolRun, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, protocol_name, status, base_branch, worktree_path, protocol_root,
			description, template_config, template_source, policy_pack_key, policy_pack_version,
			policy_effective_hash, policy_effective_json, created_at, updated_at
		FROM protocol_runs WHERE id = ?
	`, id)
	return scanProtocolRun(row)
}

// ListProtocolRuns returns protocol runs for a project, optionally filtered by status.
func (s *Store) ListProtocolRuns(projectID int64, status ProtocolStatus) ([]*ProtocolRun, error) {
	query := `
		SELECT id, project_id, protocol_name, status, base_branch, worktree_path, protocol_root,
			description, template_config, template_source, policy_pack_key, policy_pack_version,
			policy_effective_hash, policy_effective_json, created_at, updated_at
		FROM protocol_runs WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list protocol runs: %w", err)
	}
	defer rows.Close()

	var out []*ProtocolRun
	for rows.Next() {
		pr, err := scanProtocolRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// TransitionProtocolStatus moves a protocol run from its current status to
// `to`, atomically re-checking the current status inside the update so two
// concurrent callers never both succeed on the same edge. Returns
// ErrIllegalTransition if the edge is not in protocolTransitions.
func (s *Store) TransitionProtocolStatus(id int64, from, to ProtocolStatus) error {
	if !protocolTransitionAllowed(from, to) {
		return fmt.Errorf("%w: protocol %s -> %s", ErrIllegalTransition, from, to)
	}
	res, err := s.db.Exec(`
		UPDATE protocol_runs SET status = ?, updated_at = datetime('now')
		WHERE id = ? AND status = ?
	`, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("store: transition protocol status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: transition protocol status: %w", err)
	}
	if n == 0 {
		// Either the row doesn't exist, or `from` no longer matches — a racing
		// writer got there first. Disambiguate for the caller.
		current, getErr := s.GetProtocolRun(id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: protocol %d is %s, not %s", ErrIllegalTransition, id, current.Status, from)
	}
	return nil
}

// SetProtocolTemplateConfig overwrites the run's template_config blob,
// e.g. to store the resolved ProtocolSpec under the "protocol_spec" key
// after planning.
func (s *Store) SetProtocolTemplateConfig(id int64, templateConfig json.RawMessage) error {
	if len(templateConfig) == 0 {
		templateConfig = json.RawMessage("{}")
	}
	res, err := s.db.Exec(`
		UPDATE protocol_runs SET template_config = ?, updated_at = datetime('now') WHERE id = ?
	`, string(templateConfig), id)
	if err != nil {
		return fmt.Errorf("store: set protocol template config: %w", err)
	}
	return requireRowsAffected(res, "protocol_run", id)
}

// SetProtocolWorktree records the worktree path allocated for a protocol run.
func (s *Store) SetProtocolWorktree(id int64, worktreePath string) error {
	res, err := s.db.Exec(`
		UPDATE protocol_runs SET worktree_path = ?, updated_at = datetime('now') WHERE id = ?
	`, worktreePath, id)
	if err != nil {
		return fmt.Errorf("store: set protocol worktree: %w", err)
	}
	return requireRowsAffected(res, "protocol_run", id)
}

// SetProtocolEffectivePolicy stores the computed effective policy and its hash.
func (s *Store) SetProtocolEffectivePolicy(id int64, effectiveJSON json.RawMessage, hash string) error {
	if len(effectiveJSON) == 0 {
		effectiveJSON = json.RawMessage("{}")
	}
	res, err := s.db.Exec(`
		UPDATE protocol_runs SET policy_effective_json = ?, policy_effective_hash = ?, updated_at = datetime('now')
		WHERE id = ?
	`, string(effectiveJSON), hash, id)
	if err != nil {
		return fmt.Errorf("store: set protocol effective policy: %w", err)
	}
	return requireRowsAffected(res, "protocol_run", id)
}

func scanProtocolRun(row rowScanner) (*ProtocolRun, error) {
	var pr ProtocolRun
	var status, tmplConfig, effJSON string
	var worktreePath sql.NullString
	err := row.Scan(&pr.ID, &pr.ProjectID, &pr.ProtocolName, &status, &pr.BaseBranch, &worktreePath,
		&pr.ProtocolRoot, &pr.Description, &tmplConfig, &pr.TemplateSource,
		&pr.PolicyPackKey, &pr.PolicyPackVersion, &pr.PolicyEffectiveHash, &effJSON,
		&pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: protocol_run", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan protocol run: %w", err)
	}
	pr.Status = ProtocolStatus(status)
	pr.WorktreePath = worktreePath.String
	pr.TemplateConfig = json.RawMessage(tmplConfig)
	pr.PolicyEffectiveJSON = json.RawMessage(effJSON)
	return &pr, nil
}
