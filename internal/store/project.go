package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Project is a git repository onboarded for protocol execution.
type Project struct {
	ID                     int64
	Name                   string
	GitURL                 string
	LocalPath              string
	BaseBranch             string
	CIProvider             string
	DefaultModels          []string
	PolicyPackKey          string
	PolicyPackVersion      string
	PolicyOverrides        json.RawMessage
	PolicyRepoLocalEnabled bool
	PolicyEffectiveHash    string
	PolicyEnforcementMode  string
	CreatedAt              string
	UpdatedAt              string
}

// CreateProjectInput carries the fields a caller may set when onboarding a project.
type CreateProjectInput struct {
	Name                   string
	GitURL                 string
	LocalPath              string
	BaseBranch             string
	CIProvider             string
	DefaultModels          []string
	PolicyPackKey          string
	PolicyPackVersion      string
	PolicyOverrides        json.RawMessage
	PolicyRepoLocalEnabled bool
	PolicyEnforcementMode  string
}

// CreateProject inserts a new project. Name must be unique; a duplicate
// yields ErrNameConflict.
func (s *Store) CreateProject(in CreateProjectInput) (*Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(in.GitURL) == "" {
		return nil, fmt.Errorf("%w: git_url is required", ErrValidation)
	}
	if in.BaseBranch == "" {
		in.BaseBranch = "main"
	}
	if in.PolicyEnforcementMode == "" {
		in.PolicyEnforcementMode = "warn"
	}
	models, err := json.Marshal(nonNilStrings(in.DefaultModels))
	if err != nil {
		return nil, fmt.Errorf("store: marshal default_models: %w", err)
	}
	overrides := in.PolicyOverrides
	if len(overrides) == 0 {
		overrides = json.RawMessage("{}")
	}

	res, err := s.db.Exec(`
		INSERT INTO projects (
			name, git_url, local_path, base_branch, ci_provider, default_models,
			policy_pack_key, policy_pack_version, policy_overrides,
			policy_repo_local_enabled, policy_enforcement_mode
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, name, in.GitURL, in.LocalPath, in.BaseBranch, in.CIProvider, string(models),
		in.PolicyPackKey, in.PolicyPackVersion, string(overrides),
		in.PolicyRepoLocalEnabled, in.PolicyEnforcementMode)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, fmt.Errorf("%w: project %q already exists", ErrNameConflict, name)
		}
		return nil, fmt.Errorf("store: create project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create project: %w", err)
	}
	return s.GetProject(id)
}

// GetProject fetches a project by id.
func (s *Store) GetProject(id int64) (*Project, error) {
	return s.scanProject(s.db.QueryRow(`
		SELECT id, name, git_url, local_path, base_branch, ci_provider, default_models,
			policy_pack_key, policy_pack_version, policy_overrides,
			policy_repo_local_enabled, policy_effective_hash, policy_enforcement_mode,
			created_at, updated_at
		FROM projects WHERE id = ?
	`, id))
}

// GetProjectByName fetches a project by its unique name.
func (s *Store) GetProjectByName(name string) (*Project, error) {
	return s.scanProject(s.db.QueryRow(`
		SELECT id, name, git_url, local_path, base_branch, ci_provider, default_models,
			policy_pack_key, policy_pack_version, policy_overrides,
			policy_repo_local_enabled, policy_effective_hash, policy_enforcement_mode,
			created_at, updated_at
		FROM projects WHERE name = ?
	`, name))
}

// ListProjects returns all onboarded projects ordered by name.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, git_url, local_path, base_branch, ci_provider, default_models,
			policy_pack_key, policy_pack_version, policy_overrides,
			policy_repo_local_enabled, policy_effective_hash, policy_enforcement_mode,
			created_at, updated_at
		FROM projects ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProjectPolicyEffectiveHash stores the most recently computed
// effective-policy hash, used to short-circuit re-evaluation (spec.md §6).
func (s *Store) UpdateProjectPolicyEffectiveHash(id int64, hash string) error {
	res, err := s.db.Exec(`
		UPDATE projects SET policy_effective_hash = ?, updated_at = datetime('now') WHERE id = ?
	`, hash, id)
	if err != nil {
		return fmt.Errorf("store: update project policy hash: %w", err)
	}
	return requireRowsAffected(res, "project", id)
}

func (s *Store) scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var models, overrides string
	err := row.Scan(&p.ID, &p.Name, &p.GitURL, &p.LocalPath, &p.BaseBranch, &p.CIProvider, &models,
		&p.PolicyPackKey, &p.PolicyPackVersion, &overrides,
		&p.PolicyRepoLocalEnabled, &p.PolicyEffectiveHash, &p.PolicyEnforcementMode,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan project: %w", err)
	}
	_ = json.Unmarshal([]byte(models), &p.DefaultModels)
	p.PolicyOverrides = json.RawMessage(overrides)
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProjectRow(row rowScanner) (*Project, error) {
	var p Project
	var models, overrides string
	err := row.Scan(&p.ID, &p.Name, &p.GitURL, &p.LocalPath, &p.BaseBranch, &p.CIProvider, &models,
		&p.PolicyPackKey, &p.PolicyPackVersion, &overrides,
		&p.PolicyRepoLocalEnabled, &p.PolicyEffectiveHash, &p.PolicyEnforcementMode,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan project: %w", err)
	}
	_ = json.Unmarshal([]byte(models), &p.DefaultModels)
	p.PolicyOverrides = json.RawMessage(overrides)
	return &p, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}

func requireRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, entity, id)
	}
	return nil
}
