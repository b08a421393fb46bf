package policy

import "fmt"

// Evaluator runs the effective policy pack against one protocol run's
// observed state and produces findings, escalating severity per the
// pack's enforcement configuration.
type Evaluator struct {
	ProjectEnforcementMode string // "warn" or "block", overrides Pack.Enforcement.Mode when set
}

// Evaluate checks in.Effective against in.Steps/CIChecks/RepoLocalFound and
// returns every finding, severities already escalated.
func (e *Evaluator) Evaluate(in EvaluationInput) []Finding {
	var findings []Finding
	findings = append(findings, e.checkRequiredSections(in)...)
	findings = append(findings, e.checkCIChecks(in)...)
	findings = append(findings, e.checkRepoLocal(in)...)

	mode := in.Effective.Pack.Enforcement.Mode
	if e.ProjectEnforcementMode != "" {
		mode = e.ProjectEnforcementMode
	}
	blockCodes := toSet(in.Effective.Pack.Enforcement.BlockCodes)
	for i := range findings {
		if mode == "block" && blockCodes[findings[i].Code] && findings[i].Severity == SeverityWarning {
			findings[i].Severity = SeverityBlock
		}
	}
	return findings
}

func (e *Evaluator) checkRequiredSections(in EvaluationInput) []Finding {
	required := in.Effective.Pack.RequiredSections
	if len(required) == 0 {
		return nil
	}
	var findings []Finding
	for _, step := range in.Steps {
		present := toSet(step.Sections)
		for _, section := range required {
			if !present[section] {
				findings = append(findings, Finding{
					Code:     CodeMissingSection,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("step %q is missing required section %q", step.Name, section),
					StepName: step.Name,
				})
			}
		}
	}
	return findings
}

func (e *Evaluator) checkCIChecks(in EvaluationInput) []Finding {
	required := in.Effective.Pack.CI.RequiredChecks
	if len(required) == 0 {
		return nil
	}
	var findings []Finding
	for _, name := range required {
		status, seen := in.CIChecks[name]
		if !seen || !status.Exists {
			findings = append(findings, Finding{
				Code:     CodeCIRequiredCheckMissing,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("required CI check %q was not found", name),
			})
			continue
		}
		if !status.Executable {
			findings = append(findings, Finding{
				Code:     CodeCICheckNotExecutable,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("required CI check %q exists but is not executable", name),
			})
		}
	}
	return findings
}

func (e *Evaluator) checkRepoLocal(in EvaluationInput) []Finding {
	rl := in.Effective.Pack.RepoLocal
	if !rl.Enabled || !rl.Required {
		return nil
	}
	if in.RepoLocalFound {
		return nil
	}
	return []Finding{{
		Code:     CodeRepoLocalNoLocalPath,
		Severity: SeverityWarning,
		Message:  "repo-local policy is required but no local path was found",
	}}
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}
