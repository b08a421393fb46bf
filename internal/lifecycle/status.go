package lifecycle

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/protoctl/internal/store"
)

// UpdateProtocolStatus implements the user-facing pause/resume/cancel
// operation (spec'd as update_protocol_status): validates the transition
// against the protocol state machine and records the matching event.
// Cancelling an already-terminal protocol is a no-op, not an error, since
// running jobs are not killed synchronously — they observe the cancellation
// cooperatively via checkCancelled.
func (c *Controller) UpdateProtocolStatus(ctx context.Context, protocolRunID int64, to store.ProtocolStatus) error {
	run, err := c.Store.GetProtocolRun(protocolRunID)
	if err != nil {
		return err
	}
	if to == store.ProtocolCancelled && store.IsTerminalProtocolStatus(run.Status) {
		return nil
	}
	if run.Status == to {
		return nil
	}

	project, err := c.Store.GetProject(run.ProjectID)
	if err != nil {
		return err
	}

	if err := c.Store.TransitionProtocolStatus(run.ID, run.Status, to); err != nil {
		return fmt.Errorf("lifecycle: update protocol status: %w", err)
	}

	eventType := map[store.ProtocolStatus]string{
		store.ProtocolPaused:    "protocol_paused",
		store.ProtocolRunning:   "protocol_resumed",
		store.ProtocolCancelled: "protocol_cancelled",
	}[to]
	if eventType == "" {
		eventType = "protocol_status_changed"
	}
	return c.appendEvent(run.ID, 0, project.ID, eventType, fmt.Sprintf("%s -> %s", run.Status, to), nil)
}

// checkCancelled re-reads the protocol's status and, if it has moved to
// cancelled since step was loaded, cooperatively cancels step and reports
// true so the caller can return without touching engine state further.
// This is the state-boundary check spec.md's pause/resume/cancel section
// requires execute_step_job and run_quality_job to perform.
func (c *Controller) checkCancelled(run *store.ProtocolRun, project *store.Project, step *store.StepRun) (bool, error) {
	fresh, err := c.Store.GetProtocolRun(run.ID)
	if err != nil {
		return false, err
	}
	if fresh.Status != store.ProtocolCancelled {
		return false, nil
	}
	from := step.Status
	if store.IsTerminalStepStatus(from) {
		return true, nil
	}
	if !store.CanTransitionStep(from, store.StepCancelled) {
		// needs_qa has no edge to cancelled (§4.A: needs_qa -> completed,
		// failed only); the protocol-level cancellation stands on its own
		// and the step finishes its QA pass/fail path undisturbed.
		return true, nil
	}
	if err := c.Store.TransitionStepStatus(step.ID, from, store.StepCancelled, 0); err != nil {
		return false, err
	}
	if err := c.appendEvent(run.ID, step.ID, project.ID, "step_cancelled", "protocol cancelled", nil); err != nil {
		return false, err
	}
	return true, nil
}
