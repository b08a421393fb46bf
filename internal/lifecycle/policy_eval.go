package lifecycle

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/antigravity-dev/protoctl/internal/policy"
	"github.com/antigravity-dev/protoctl/internal/specresolver"
	"github.com/antigravity-dev/protoctl/internal/store"
)

// loadRepoLocal reads the repo-local policy override file from a worktree,
// if repo-local policy is configured at all. A missing file is not an
// error — it just means RepoLocalFound is false.
func (c *Controller) loadRepoLocal(project *store.Project, worktree string) (data []byte, found bool) {
	if !project.PolicyRepoLocalEnabled || c.RepoLocalFileName == "" || worktree == "" {
		return nil, false
	}
	b, err := os.ReadFile(filepath.Join(worktree, c.RepoLocalFileName))
	if err != nil {
		return nil, false
	}
	return b, true
}

// extractMarkdownSections returns the text of every level-1/2 heading in a
// markdown file, used to satisfy a policy pack's required_sections check.
func extractMarkdownSections(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sections []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") {
			sections = append(sections, strings.TrimSpace(strings.TrimLeft(line, "# ")))
		}
	}
	return sections, scanner.Err()
}

// evaluateStepPolicy evaluates the effective policy pack against one step's
// resolved prompt, returning every finding with severities already
// escalated per the project's enforcement mode.
func (c *Controller) evaluateStepPolicy(project *store.Project, run *store.ProtocolRun, stepSpec specresolver.StepSpec, promptPath string) ([]policy.Finding, error) {
	repoLocalBytes, repoLocalFound := c.loadRepoLocal(project, run.WorktreePath)
	eff, err := c.effectivePolicy(project, run, repoLocalBytes)
	if err != nil {
		return nil, err
	}

	sections, err := extractMarkdownSections(promptPath)
	if err != nil {
		return nil, err
	}

	evaluator := policy.Evaluator{ProjectEnforcementMode: project.PolicyEnforcementMode}
	findings := evaluator.Evaluate(policy.EvaluationInput{
		Effective:      eff,
		Steps:          []policy.StepDescriptor{{Name: stepSpec.Name, Sections: sections}},
		CIChecks:       policy.ResolveCIChecks(project.LocalPath, eff.Pack.CI.RequiredChecks),
		RepoLocalFound: repoLocalFound,
	})
	return findings, nil
}

// hasBlockingFinding reports whether any finding escalated to block
// severity under the project's current enforcement mode.
func hasBlockingFinding(findings []policy.Finding) bool {
	for _, f := range findings {
		if f.Severity == policy.SeverityBlock {
			return true
		}
	}
	return false
}

// blockingFindingCodes returns the codes of every finding escalated to
// block severity, used to populate policy_blocked event metadata.
func blockingFindingCodes(findings []policy.Finding) []string {
	var codes []string
	for _, f := range findings {
		if f.Severity == policy.SeverityBlock {
			codes = append(codes, f.Code)
		}
	}
	return codes
}

// projectCIFindings evaluates the project-scope CI-required-check findings:
// the only part of policy evaluation that doesn't depend on a specific
// protocol run or step, since it only stats project.local_path.
func (c *Controller) projectCIFindings(project *store.Project) ([]policy.Finding, error) {
	packJSON, err := c.Packs.LoadPack(project.PolicyPackKey, project.PolicyPackVersion)
	if err != nil {
		return nil, err
	}
	eff, err := policy.ComputeEffective(packJSON, project.PolicyOverrides, nil)
	if err != nil {
		return nil, err
	}
	evaluator := policy.Evaluator{ProjectEnforcementMode: project.PolicyEnforcementMode}
	return evaluator.Evaluate(policy.EvaluationInput{
		Effective: eff,
		CIChecks:  policy.ResolveCIChecks(project.LocalPath, eff.Pack.CI.RequiredChecks),
	}), nil
}

// FindingsForProject evaluates every project-scope policy finding: today
// that's the CI-required-check existence/executable-bit check, independent
// of any specific protocol run (SPEC_FULL.md §4.F findings_for_project).
func (c *Controller) FindingsForProject(project *store.Project) ([]policy.Finding, error) {
	return c.projectCIFindings(project)
}

// FindingsForProtocol evaluates every policy finding in scope for a whole
// protocol run: the project-scope CI findings plus the run's effective
// policy (repo-local override presence) evaluated against its worktree
// (SPEC_FULL.md §4.F findings_for_protocol). Per-step findings (required
// sections) remain scoped to execute_step_job, where the step's resolved
// prompt is available to check against.
func (c *Controller) FindingsForProtocol(project *store.Project, run *store.ProtocolRun) ([]policy.Finding, error) {
	findings, err := c.projectCIFindings(project)
	if err != nil {
		return nil, err
	}
	repoLocalBytes, repoLocalFound := c.loadRepoLocal(project, run.WorktreePath)
	eff, err := c.effectivePolicy(project, run, repoLocalBytes)
	if err != nil {
		return nil, err
	}
	evaluator := policy.Evaluator{ProjectEnforcementMode: project.PolicyEnforcementMode}
	findings = append(findings, evaluator.Evaluate(policy.EvaluationInput{
		Effective:      eff,
		RepoLocalFound: repoLocalFound,
	})...)
	return findings, nil
}
