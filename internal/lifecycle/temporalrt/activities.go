package temporalrt

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/antigravity-dev/protoctl/internal/store"
)

// Controller is the slice of lifecycle.Controller this runtime drives.
// Matches worker.Handlers exactly so both runtimes can front the same
// lifecycle package without it knowing which one is calling it.
type Controller interface {
	PlanProtocol(ctx context.Context, protocolRunID int64) error
	ExecuteStep(ctx context.Context, stepRunID int64) error
	RunQuality(ctx context.Context, stepRunID int64) error
	OpenPR(ctx context.Context, protocolRunID int64) error
	ProjectSetup(ctx context.Context, projectID, protocolRunID int64) error
}

// StepLister reads back the steps a PlanProtocol activity produced, so the
// workflow can fan out ExecuteStep/RunQuality without guessing step IDs.
type StepLister interface {
	ListStepRuns(protocolRunID int64) ([]*store.StepRun, error)
}

// Activities holds the dependencies Temporal activity methods close over.
type Activities struct {
	Controller Controller
	Steps      StepLister
}

func (a *Activities) ProjectSetupActivity(ctx context.Context, projectID, protocolRunID int64) error {
	activity.GetLogger(ctx).Info("project setup", "project_id", projectID, "protocol_run_id", protocolRunID)
	return a.Controller.ProjectSetup(ctx, projectID, protocolRunID)
}

func (a *Activities) PlanProtocolActivity(ctx context.Context, protocolRunID int64) error {
	activity.GetLogger(ctx).Info("planning protocol", "protocol_run_id", protocolRunID)
	return a.Controller.PlanProtocol(ctx, protocolRunID)
}

// ListStepsActivity returns the step run IDs a planned protocol produced, in
// step-index order, so the workflow knows what to execute.
func (a *Activities) ListStepsActivity(ctx context.Context, protocolRunID int64) ([]int64, error) {
	steps, err := a.Steps.ListStepRuns(protocolRunID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	return ids, nil
}

func (a *Activities) ExecuteStepActivity(ctx context.Context, stepRunID int64) error {
	activity.GetLogger(ctx).Info("executing step", "step_run_id", stepRunID)
	return a.Controller.ExecuteStep(ctx, stepRunID)
}

func (a *Activities) RunQualityActivity(ctx context.Context, stepRunID int64) error {
	activity.GetLogger(ctx).Info("running quality gates", "step_run_id", stepRunID)
	return a.Controller.RunQuality(ctx, stepRunID)
}

func (a *Activities) OpenPRActivity(ctx context.Context, protocolRunID int64) error {
	activity.GetLogger(ctx).Info("opening PR", "protocol_run_id", protocolRunID)
	return a.Controller.OpenPR(ctx, protocolRunID)
}
