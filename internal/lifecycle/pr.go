package lifecycle

import (
	"context"
	"fmt"
)

// OpenPR runs open_pr_job: push the protocol's branch and attempt to open a
// PR via the gh CLI. It makes no separate call to trigger CI. Every step is
// best-effort — failures append events rather than fail the job, except
// when the protocol has no worktree at all, which is a hard error.
func (c *Controller) OpenPR(ctx context.Context, protocolRunID int64) error {
	run, err := c.Store.GetProtocolRun(protocolRunID)
	if err != nil {
		return err
	}
	if run.WorktreePath == "" {
		return fmt.Errorf("lifecycle: protocol %d has no worktree to push", run.ID)
	}
	project, err := c.Store.GetProject(run.ProjectID)
	if err != nil {
		return err
	}

	if err := c.Git.PushBranch(run.WorktreePath, run.ProtocolName); err != nil {
		return c.appendEvent(run.ID, 0, project.ID, "push_failed", err.Error(), nil)
	}

	url, number, err := c.Git.CreatePR(run.WorktreePath, run.ProtocolName, project.BaseBranch,
		fmt.Sprintf("protoctl: %s", run.ProtocolName), run.Description)
	if err != nil {
		return c.appendEvent(run.ID, 0, project.ID, "open_pr_failed", err.Error(), nil)
	}

	return c.appendEvent(run.ID, 0, project.ID, "pr_opened", url, map[string]any{
		"pr_number": number,
		"pr_url":    url,
	})
}
