// Package policy evaluates a protocol run against a layered policy pack:
// pack defaults, project overrides, and an optional repo-local file,
// deep-merged in that order and hashed for change detection.
package policy

import "encoding/json"

// Severity is how seriously a Finding should be treated.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityBlock   Severity = "block"
)

// Finding codes Evaluate can emit.
const (
	CodeMissingSection          = "policy.step.missing_section"
	CodeCIRequiredCheckMissing  = "policy.ci.required_check_missing"
	CodeCICheckNotExecutable    = "policy.ci.required_check_not_executable"
	CodeRepoLocalNoLocalPath    = "policy.repo_local.no_local_path"
)

// Finding is one policy evaluation result.
type Finding struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	StepName string   `json:"step_name,omitempty"`
}

// Pack is the raw policy document shape shared by pack/project/repo-local
// layers before merge. Unknown top-level keys are preserved through Raw so
// repo-local extensions survive round-tripping even though this package
// only interprets the keys it knows about.
type Pack struct {
	RequiredSections []string       `json:"required_sections,omitempty"`
	CI               CIPolicy       `json:"ci,omitempty"`
	Enforcement      Enforcement    `json:"enforcement,omitempty"`
	RepoLocal        RepoLocal      `json:"repo_local,omitempty"`
	Raw              map[string]any `json:"-"`
}

// CIPolicy names check files that must exist, and be executable, under the
// project's local path. Evaluate checks only for the files; it does not run
// them or look at CI results.
type CIPolicy struct {
	RequiredChecks []string `json:"required_checks,omitempty"`
}

// Enforcement controls how findings escalate in severity.
type Enforcement struct {
	Mode       string   `json:"mode,omitempty"` // "warn" or "block"
	BlockCodes []string `json:"block_codes,omitempty"`
}

// RepoLocal controls whether a repo-local policy file is consulted, and
// whether one is required to exist.
type RepoLocal struct {
	Enabled  bool `json:"enabled,omitempty"`
	Required bool `json:"required,omitempty"`
}

// Effective is the result of merging pack < project overrides < repo-local,
// plus the canonical hash of that merge.
type Effective struct {
	Pack Pack
	JSON json.RawMessage
	Hash string
}

// StepDescriptor is the minimal view of a step an evaluation needs.
type StepDescriptor struct {
	Name     string
	Sections []string // markdown section headers present in the step's spec
}

// EvaluationInput carries everything Evaluate needs for one protocol run.
type EvaluationInput struct {
	Effective      Effective
	Steps          []StepDescriptor
	CIChecks       map[string]CIStatus // check name -> observed status
	RepoLocalFound bool
}

// CIStatus describes whether a required CI check exists and is runnable.
type CIStatus struct {
	Exists     bool
	Executable bool
}
