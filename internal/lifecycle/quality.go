package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antigravity-dev/protoctl/internal/engine"
	"github.com/antigravity-dev/protoctl/internal/specresolver"
	"github.com/antigravity-dev/protoctl/internal/store"
)

const qaSystemPrompt = `You are a QA orchestrator. Validate the current protocol step. Follow the checklist and output Markdown only (no fences). If any blocking issue, verdict = FAIL.`

// RunQuality runs run_quality_job: builds a QA prompt from the step's
// surrounding context, invokes the engine read-only, and parses the
// verdict out of its report.
func (c *Controller) RunQuality(ctx context.Context, stepRunID int64) error {
	step, err := c.Store.GetStepRun(stepRunID)
	if err != nil {
		return err
	}
	if step.Status != store.StepNeedsQA && step.Status != store.StepRunning {
		return fmt.Errorf("lifecycle: step %d is %s, cannot run quality check", step.ID, step.Status)
	}
	run, err := c.Store.GetProtocolRun(step.ProtocolRunID)
	if err != nil {
		return err
	}
	project, err := c.Store.GetProject(run.ProjectID)
	if err != nil {
		return err
	}

	spec, err := decodeTemplateConfig(run.TemplateConfig)
	if err != nil {
		return err
	}
	stepSpec, err := findStepSpec(spec, step.StepName)
	if err != nil {
		return err
	}

	if cancelled, err := c.checkCancelled(run, project, step); err != nil {
		return err
	} else if cancelled {
		return nil
	}

	if stepSpec.QA.Policy == specresolver.QASkip {
		if err := c.Store.TransitionStepStatus(step.ID, step.Status, store.StepCompleted, 0); err != nil {
			return err
		}
		return c.appendEvent(run.ID, step.ID, project.ID, "qa_skipped", "QA policy is skip", nil)
	}

	protocolDir := filepath.Join(run.WorktreePath, ".protocols", run.ProtocolName)
	promptPath := filepath.Join(protocolDir, stepSpec.PromptRef)

	prompt, err := c.buildQAPrompt(protocolDir, promptPath, stepSpec)
	if err != nil {
		return err
	}
	promptFile := filepath.Join(protocolDir, fmt.Sprintf(".qa-prompt-%s.md", step.StepName))
	if err := os.WriteFile(promptFile, []byte(prompt), 0o644); err != nil {
		return fmt.Errorf("lifecycle: write QA prompt: %w", err)
	}
	defer os.Remove(promptFile)

	eng, err := c.Engines.Get(stepSpec.EngineID)
	if err != nil {
		eng, err = c.Engines.Default()
		if err != nil {
			return err
		}
	}
	model := stepSpec.QA.Model
	if model == "" {
		model = stepSpec.Model
	}

	res, err := eng.QA(ctx, engine.Request{
		ProjectID:     project.ID,
		ProtocolRunID: run.ID,
		StepRunID:     step.ID,
		Model:         model,
		PromptFiles:   []string{promptFile},
		WorkingDir:    run.WorktreePath,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("lifecycle: QA engine invocation failed: %s", res.Error)
	}

	if cancelled, cErr := c.checkCancelled(run, project, step); cErr != nil {
		return cErr
	} else if cancelled {
		return nil
	}

	verdict := determineVerdict(res.Stdout)

	if verdict == VerdictPass {
		if err := c.Store.TransitionStepStatus(step.ID, step.Status, store.StepCompleted, 0); err != nil {
			return err
		}
		if err := c.Store.SetStepSummary(step.ID, "QA passed"); err != nil {
			return err
		}
		if err := c.appendEvent(run.ID, step.ID, project.ID, "qa_passed", "QA passed", nil); err != nil {
			return err
		}
		return c.completeProtocolIfAllStepsTerminal(run, project)
	}

	reportPath := filepath.Join(protocolDir, "quality-report.md")
	if err := os.WriteFile(reportPath, []byte(res.Stdout), 0o644); err != nil {
		return fmt.Errorf("lifecycle: write quality report: %w", err)
	}
	if err := c.Store.TransitionStepStatus(step.ID, step.Status, store.StepFailed, 0); err != nil {
		return err
	}
	if err := c.Store.SetStepSummary(step.ID, "QA failed, see quality-report.md"); err != nil {
		return err
	}
	if err := c.appendEvent(run.ID, step.ID, project.ID, "qa_failed", "QA failed", map[string]any{
		"report_path": reportPath,
	}); err != nil {
		return err
	}
	return c.Store.TransitionProtocolStatus(run.ID, run.Status, store.ProtocolBlocked)
}

// buildQAPrompt assembles plan.md/context.md/log.md/step + git status/last
// commit around the QA system prompt, mirroring the original QA
// orchestrator's prompt shape.
func (c *Controller) buildQAPrompt(protocolDir, stepFile string, stepSpec specresolver.StepSpec) (string, error) {
	plan := readFileOrEmpty(filepath.Join(protocolDir, "plan.md"))
	context := readFileOrEmpty(filepath.Join(protocolDir, "context.md"))
	log := readFileOrEmpty(filepath.Join(protocolDir, "log.md"))
	step := readFileOrEmpty(stepFile)

	repoRoot := filepath.Dir(filepath.Dir(protocolDir))
	status, lastCommit, err := c.Git.StatusAndLastCommit(repoRoot)
	if err != nil {
		status = ""
		lastCommit = "(no commits yet)"
	}
	if lastCommit == "" {
		lastCommit = "(no commits yet)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", qaSystemPrompt)
	fmt.Fprintf(&b, "plan.md:\n%s\n\n", plan)
	fmt.Fprintf(&b, "context.md:\n%s\n\n", context)
	fmt.Fprintf(&b, "log.md (may be empty):\n%s\n\n", log)
	fmt.Fprintf(&b, "Step file (%s):\n%s\n\n", filepath.Base(stepFile), step)
	fmt.Fprintf(&b, "Git status (porcelain):\n%s\n\n", status)
	fmt.Fprintf(&b, "Latest commit message:\n%s\n", lastCommit)
	return b.String(), nil
}

func readFileOrEmpty(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

// completeProtocolIfAllStepsTerminal transitions the protocol to completed
// once every step has reached a terminal status.
func (c *Controller) completeProtocolIfAllStepsTerminal(run *store.ProtocolRun, project *store.Project) error {
	steps, err := c.Store.ListStepRuns(run.ID)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if !store.IsTerminalStepStatus(s.Status) {
			return nil
		}
	}
	if err := c.Store.TransitionProtocolStatus(run.ID, run.Status, store.ProtocolCompleted); err != nil {
		return err
	}
	return c.appendEvent(run.ID, 0, project.ID, "protocol_completed", "all steps terminal", nil)
}

// Verdict is the outcome of parsing a QA report.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// determineVerdict ports the original QA orchestrator's verdict parsing:
// the literal string "VERDICT: FAIL" anywhere in the (case-folded) report
// means FAIL; otherwise a trailing non-empty line starting with "VERDICT"
// and containing "FAIL" means FAIL; anything else is PASS.
func determineVerdict(reportText string) Verdict {
	upper := strings.ToUpper(reportText)
	if strings.Contains(upper, "VERDICT: FAIL") {
		return VerdictFail
	}
	var lastNonEmpty string
	for _, line := range strings.Split(reportText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lastNonEmpty = strings.ToUpper(trimmed)
	}
	if lastNonEmpty != "" && strings.HasPrefix(lastNonEmpty, "VERDICT") && strings.Contains(lastNonEmpty, "FAIL") {
		return VerdictFail
	}
	return VerdictPass
}
