package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antigravity-dev/protoctl/internal/engine"
	"github.com/antigravity-dev/protoctl/internal/policy"
	"github.com/antigravity-dev/protoctl/internal/queue"
	"github.com/antigravity-dev/protoctl/internal/specresolver"
	"github.com/antigravity-dev/protoctl/internal/store"
)

// Retryable classifies ExecuteStep failures the worker should requeue with
// backoff, versus ones that go straight to StepFailed.
type Retryable struct{ err error }

func (r *Retryable) Error() string { return r.err.Error() }
func (r *Retryable) Unwrap() error { return r.err }

func retryable(err error) error { return &Retryable{err: err} }

// NewRetryable wraps err as a Retryable, for callers outside this package
// (worker dispatch tests) that need to construct one.
func NewRetryable(err error) error { return retryable(err) }

// ExecuteStep runs execute_step_job: resolves the step's prompt, checks
// policy, invokes the engine, writes outputs, and transitions the step.
func (c *Controller) ExecuteStep(ctx context.Context, stepRunID int64) error {
	step, err := c.Store.GetStepRun(stepRunID)
	if err != nil {
		return err
	}
	if step.Status != store.StepPending && step.Status != store.StepFailed {
		return fmt.Errorf("lifecycle: step %d is %s, cannot execute", step.ID, step.Status)
	}
	run, err := c.Store.GetProtocolRun(step.ProtocolRunID)
	if err != nil {
		return err
	}
	project, err := c.Store.GetProject(run.ProjectID)
	if err != nil {
		return err
	}

	if cancelled, err := c.checkCancelled(run, project, step); err != nil {
		return err
	} else if cancelled {
		return nil
	}

	if step.Status == store.StepFailed {
		// Retry goes through pending per the step state machine: failed has
		// no direct edge to running.
		if err := c.Store.TransitionStepStatus(step.ID, store.StepFailed, store.StepPending, 0); err != nil {
			return err
		}
		step.Status = store.StepPending
	}

	// Spec resolution and policy evaluation happen while the step is still
	// pending: a policy block transitions pending -> blocked directly, and
	// the step state machine has no edge from running to blocked.
	spec, err := decodeTemplateConfig(run.TemplateConfig)
	if err != nil {
		return c.failStep(run, project, step, "spec_validation_error", err.Error())
	}
	stepSpec, err := findStepSpec(spec, step.StepName)
	if err != nil {
		return c.failStep(run, project, step, "spec_validation_error", err.Error())
	}
	resolution, err := specresolver.ResolveStep(stepSpec, filepath.Join(run.WorktreePath, ".protocols", run.ProtocolName),
		run.WorktreePath, spec, c.DefaultEngine, c.AutoQA)
	if err != nil {
		return c.failStep(run, project, step, "spec_validation_error", err.Error())
	}

	findings, err := c.evaluateStepPolicy(project, run, stepSpec, resolution.PromptPath)
	if err != nil {
		return err
	}
	if hasBlockingFinding(findings) && project.PolicyEnforcementMode == "block" {
		return c.blockStep(run, project, step, findings)
	}

	if err := c.Store.TransitionStepStatus(step.ID, step.Status, store.StepRunning, 0); err != nil {
		return err
	}
	step.Status = store.StepRunning
	if run.Status == store.ProtocolPlanned {
		if err := c.Store.TransitionProtocolStatus(run.ID, store.ProtocolPlanned, store.ProtocolRunning); err != nil {
			return err
		}
	}

	eng, err := c.Engines.Get(resolution.EngineID)
	if err != nil {
		return c.failStep(run, project, step, "spec_validation_error", err.Error())
	}
	if err := c.Store.SetStepAssignment(step.ID, resolution.EngineID, ""); err != nil {
		return err
	}

	res, err := eng.Execute(ctx, engine.Request{
		ProjectID:     project.ID,
		ProtocolRunID: run.ID,
		StepRunID:     step.ID,
		Model:         resolution.Model,
		PromptFiles:   []string{resolution.PromptPath},
		WorkingDir:    resolution.Workdir,
	})
	if err != nil || !res.Success || res.Stdout == "" {
		return c.handleExecuteFailure(run, project, step, res, err)
	}

	if cancelled, cErr := c.checkCancelled(run, project, step); cErr != nil {
		return cErr
	} else if cancelled {
		return nil
	}

	if err := c.writeStepOutputs(resolution, res.Stdout); err != nil {
		return err
	}
	if len(res.Metadata) > 0 {
		state, err := json.Marshal(res.Metadata)
		if err != nil {
			return fmt.Errorf("lifecycle: encode step runtime state: %w", err)
		}
		if err := c.Store.SetStepRuntimeState(step.ID, state); err != nil {
			return err
		}
	}

	nextStatus := store.StepCompleted
	eventType := "step_completed"
	if resolution.QA.Policy == specresolver.QAFull {
		nextStatus = store.StepNeedsQA
	}
	if err := c.Store.TransitionStepStatus(step.ID, store.StepRunning, nextStatus, 0); err != nil {
		return err
	}
	if err := c.Store.SetStepSummary(step.ID, summarize(res.Stdout)); err != nil {
		return err
	}
	if err := c.appendEvent(run.ID, step.ID, project.ID, eventType, "step execution finished", map[string]any{
		"protocol_output": resolution.ProtocolPath,
		"aux_outputs":      resolution.AuxPaths,
		"prompt_version":   resolution.PromptVersion,
		"spec_hash":        resolution.SpecHash,
	}); err != nil {
		return err
	}

	if nextStatus == store.StepNeedsQA && c.AutoQA {
		return c.enqueueRunQuality(ctx, step.ID)
	}
	return nil
}

func (c *Controller) writeStepOutputs(resolution specresolver.StepResolution, stdout string) error {
	if resolution.ProtocolPath != "" {
		if err := os.MkdirAll(filepath.Dir(resolution.ProtocolPath), 0o755); err != nil {
			return fmt.Errorf("lifecycle: create output dir: %w", err)
		}
		if err := os.WriteFile(resolution.ProtocolPath, []byte(stdout), 0o644); err != nil {
			return fmt.Errorf("lifecycle: write protocol output: %w", err)
		}
	}
	for _, auxPath := range resolution.AuxPaths {
		if err := os.MkdirAll(filepath.Dir(auxPath), 0o755); err != nil {
			return fmt.Errorf("lifecycle: create aux output dir: %w", err)
		}
		if err := os.WriteFile(auxPath, []byte(stdout), 0o644); err != nil {
			return fmt.Errorf("lifecycle: write aux output: %w", err)
		}
	}
	return nil
}

// handleExecuteFailure increments retries and either requeues with backoff
// or transitions the step to failed, per spec.md §4.H step 7.
func (c *Controller) handleExecuteFailure(run *store.ProtocolRun, project *store.Project, step *store.StepRun, res engine.Result, execErr error) error {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	msg := res.Error
	if execErr != nil {
		msg = execErr.Error()
	}
	if step.Retries+1 < maxRetries {
		if err := c.Store.TransitionStepStatus(step.ID, store.StepRunning, store.StepFailed, 1); err != nil {
			return err
		}
		if err := c.appendEvent(run.ID, step.ID, project.ID, "step_execute_retry", msg, map[string]any{
			"attempt": step.Retries + 1,
			"delay_seconds": queue.BackoffDelay(step.Retries+1, time.Second, 60*time.Second).Seconds(),
		}); err != nil {
			return err
		}
		return retryable(fmt.Errorf("lifecycle: step %d execute failed, will retry: %s", step.ID, msg))
	}
	return c.failStep(run, project, step, "step_failed", msg)
}

func (c *Controller) failStep(run *store.ProtocolRun, project *store.Project, step *store.StepRun, eventType, message string) error {
	from := step.Status
	if from == store.StepPending || from == store.StepFailed {
		// pending/failed have no direct edge to failed; step through running.
		if err := c.Store.TransitionStepStatus(step.ID, from, store.StepRunning, 0); err != nil {
			return err
		}
		from = store.StepRunning
	}
	if err := c.Store.TransitionStepStatus(step.ID, from, store.StepFailed, 0); err != nil {
		return err
	}
	if err := c.Store.SetStepSummary(step.ID, summarize(message)); err != nil {
		return err
	}
	return c.appendEvent(run.ID, step.ID, project.ID, eventType, message, nil)
}

// blockStep transitions a pending step to blocked after policy evaluation
// produced a blocking finding, recording the blocking codes on the
// policy_blocked event so callers can act on the specific check that failed.
func (c *Controller) blockStep(run *store.ProtocolRun, project *store.Project, step *store.StepRun, findings []policy.Finding) error {
	if err := c.Store.TransitionStepStatus(step.ID, step.Status, store.StepBlocked, 0); err != nil {
		return err
	}
	msg := fmt.Sprintf("%d blocking policy finding(s)", len(findings))
	if err := c.Store.SetStepSummary(step.ID, summarize(msg)); err != nil {
		return err
	}
	return c.appendEvent(run.ID, step.ID, project.ID, "policy_blocked", msg, map[string]any{
		"codes": blockingFindingCodes(findings),
	})
}

// summarize truncates text to a length suitable for StepRun.summary.
func summarize(text string) string {
	const maxLen = 240
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

func (c *Controller) enqueueRunQuality(ctx context.Context, stepRunID int64) error {
	if c.Queue == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]int64{"step_run_id": stepRunID})
	if err != nil {
		return fmt.Errorf("lifecycle: encode run_quality_job payload: %w", err)
	}
	_, err = c.Queue.Enqueue(ctx, queue.EnqueueInput{JobType: "run_quality_job", Payload: payload})
	return err
}
