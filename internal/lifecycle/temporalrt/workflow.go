package temporalrt

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ProtocolRunWorkflow drives one protocol run from setup through plan,
// execute+quality per step, to PR, mirroring the stage order
// internal/worker's polling dispatcher enforces via store transitions —
// this is an alternate front end onto the same lifecycle.Controller, not a
// different process.
func ProtocolRunWorkflow(ctx workflow.Context, req ProtocolRunRequest) (*ProtocolRunResult, error) {
	logger := workflow.GetLogger(ctx)

	setupOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	planOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	}
	execOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1}, // retries are step-level, driven by the controller
	}
	qaOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}

	var a *Activities
	result := &ProtocolRunResult{}

	if req.ProjectID != 0 {
		setupCtx := workflow.WithActivityOptions(ctx, setupOpts)
		if err := workflow.ExecuteActivity(setupCtx, a.ProjectSetupActivity, req.ProjectID, req.ProtocolRunID).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("project setup failed: %w", err)
		}
	}

	planCtx := workflow.WithActivityOptions(ctx, planOpts)
	if err := workflow.ExecuteActivity(planCtx, a.PlanProtocolActivity, req.ProtocolRunID).Get(ctx, nil); err != nil {
		return nil, fmt.Errorf("plan failed: %w", err)
	}

	var stepIDs []int64
	if err := workflow.ExecuteActivity(planCtx, a.ListStepsActivity, req.ProtocolRunID).Get(ctx, &stepIDs); err != nil {
		return nil, fmt.Errorf("listing steps failed: %w", err)
	}

	for _, stepID := range stepIDs {
		outcome := StepOutcome{StepRunID: stepID}

		execCtx := workflow.WithActivityOptions(ctx, execOpts)
		if err := workflow.ExecuteActivity(execCtx, a.ExecuteStepActivity, stepID).Get(ctx, nil); err != nil {
			logger.Warn("step execution failed", "step_run_id", stepID, "error", err)
			outcome.Err = err.Error()
			result.Steps = append(result.Steps, outcome)
			result.Escalated = true
			continue
		}
		outcome.Executed = true

		if req.AutoQA {
			qaCtx := workflow.WithActivityOptions(ctx, qaOpts)
			if err := workflow.ExecuteActivity(qaCtx, a.RunQualityActivity, stepID).Get(ctx, nil); err != nil {
				logger.Warn("step quality gate failed", "step_run_id", stepID, "error", err)
				outcome.Err = err.Error()
				result.Steps = append(result.Steps, outcome)
				result.Escalated = true
				continue
			}
			outcome.QARun = true
		}

		result.Steps = append(result.Steps, outcome)
	}

	if result.Escalated {
		logger.Warn("protocol run has failed steps, skipping PR", "protocol_run_id", req.ProtocolRunID)
		return result, nil
	}

	prCtx := workflow.WithActivityOptions(ctx, execOpts)
	if err := workflow.ExecuteActivity(prCtx, a.OpenPRActivity, req.ProtocolRunID).Get(ctx, nil); err != nil {
		return result, fmt.Errorf("open PR failed: %w", err)
	}
	result.PROpened = true

	return result, nil
}
