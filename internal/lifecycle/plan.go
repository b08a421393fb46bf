package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/antigravity-dev/protoctl/internal/engine"
	"github.com/antigravity-dev/protoctl/internal/specresolver"
	"github.com/antigravity-dev/protoctl/internal/store"
)

// PlanProtocol runs plan_protocol_job: assigns a worktree, invokes the
// planning engine, derives a ProtocolSpec, and materializes its steps.
func (c *Controller) PlanProtocol(ctx context.Context, protocolRunID int64) error {
	run, err := c.Store.GetProtocolRun(protocolRunID)
	if err != nil {
		return err
	}
	if run.Status != store.ProtocolPending && run.Status != store.ProtocolPlanning {
		return fmt.Errorf("lifecycle: protocol %d is %s, cannot plan", run.ID, run.Status)
	}
	project, err := c.Store.GetProject(run.ProjectID)
	if err != nil {
		return err
	}

	if run.Status == store.ProtocolPending {
		if err := c.Store.TransitionProtocolStatus(run.ID, store.ProtocolPending, store.ProtocolPlanning); err != nil {
			return err
		}
		if err := c.appendEvent(run.ID, 0, project.ID, "planning_started", "planning started", nil); err != nil {
			return err
		}
	}

	worktree, err := c.Git.EnsureProtocolWorktree(project.LocalPath, run.ProtocolName, project.BaseBranch)
	if err != nil {
		worktree = filepath.Join(project.LocalPath, "..", "worktrees", run.ProtocolName)
		if ev := c.appendEvent(run.ID, 0, project.ID, "worktree_warning", err.Error(), nil); ev != nil {
			return ev
		}
	}
	if err := c.Store.SetProtocolWorktree(run.ID, worktree); err != nil {
		return err
	}

	protocolDir := filepath.Join(worktree, ".protocols", run.ProtocolName)
	if err := os.MkdirAll(protocolDir, 0o755); err != nil {
		return fmt.Errorf("lifecycle: create protocol dir: %w", err)
	}

	if _, err := c.invokePlanningEngine(ctx, project, run, worktree, protocolDir); err != nil {
		return err
	}

	spec, err := specresolver.ResolveDirectory(protocolDir, c.DefaultEngine)
	if err != nil {
		return fmt.Errorf("lifecycle: resolve protocol spec: %w", err)
	}
	if errs := specresolver.ValidateProtocolSpec(protocolDir, spec); len(errs) > 0 {
		return fmt.Errorf("lifecycle: protocol spec invalid: %v", errs)
	}

	created, err := specresolver.CreateStepsFromSpec(run.ID, spec, c.Store)
	if err != nil {
		return err
	}

	templateConfig, err := encodeTemplateConfig(spec)
	if err != nil {
		return err
	}
	if err := c.Store.SetProtocolTemplateConfig(run.ID, templateConfig); err != nil {
		return err
	}

	if err := c.Store.TransitionProtocolStatus(run.ID, store.ProtocolPlanning, store.ProtocolPlanned); err != nil {
		return err
	}
	if err := c.appendEvent(run.ID, 0, project.ID, "planned", "protocol planned", map[string]any{
		"steps_created": len(created),
	}); err != nil {
		return err
	}

	c.bestEffortOpenPR(ctx, project, run)

	return nil
}

// invokePlanningEngine runs the default engine's Plan operation and writes
// its stdout as plan.md under protocolDir, per the filesystem layout in
// spec.md §6.
func (c *Controller) invokePlanningEngine(ctx context.Context, project *store.Project, run *store.ProtocolRun, worktree, protocolDir string) (engine.Result, error) {
	eng, err := c.Engines.Default()
	if err != nil {
		return engine.Result{}, err
	}

	contextPath := filepath.Join(protocolDir, "context.md")
	if _, statErr := os.Stat(contextPath); statErr != nil {
		contents := fmt.Sprintf("# %s\n\n%s\n", run.ProtocolName, run.Description)
		if werr := os.WriteFile(contextPath, []byte(contents), 0o644); werr != nil {
			return engine.Result{}, fmt.Errorf("lifecycle: write context.md: %w", werr)
		}
	}

	res, err := eng.Plan(ctx, engine.Request{
		ProjectID:     project.ID,
		ProtocolRunID: run.ID,
		PromptFiles:   []string{contextPath},
		WorkingDir:    worktree,
	})
	if err != nil {
		return engine.Result{}, fmt.Errorf("lifecycle: invoke planning engine: %w", err)
	}
	if res.Success {
		if werr := os.WriteFile(filepath.Join(protocolDir, "plan.md"), []byte(res.Stdout), 0o644); werr != nil {
			return res, fmt.Errorf("lifecycle: write plan.md: %w", werr)
		}
	}
	return res, nil
}

// bestEffortOpenPR triggers OpenPR after a successful plan without letting
// push/PR/CI failures revert the protocol's planned status.
func (c *Controller) bestEffortOpenPR(ctx context.Context, project *store.Project, run *store.ProtocolRun) {
	if err := c.OpenPR(ctx, run.ID); err != nil {
		_ = c.appendEvent(run.ID, 0, project.ID, "open_pr_failed", err.Error(), nil)
	}
}
