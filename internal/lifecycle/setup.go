package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const starterPolicyReadme = `# Protocol Assets

This directory holds per-protocol planning and execution artifacts
(plan.md, context.md, log.md, step files, and their outputs). It is
created by project setup and populated by plan_protocol_job.
`

// ProjectSetup runs project_setup_job: ensures the project's local clone
// exists (or reports blocked if AUTO_CLONE is off), provisions the
// .protocols scaffold, and configures the repo-local git identity.
// protocolRunID is optional context for event correlation; pass 0 when
// setup runs ahead of any specific protocol run.
func (c *Controller) ProjectSetup(ctx context.Context, projectID, protocolRunID int64) error {
	project, err := c.Store.GetProject(projectID)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(filepath.Join(project.LocalPath, ".git")); statErr != nil {
		if !c.AutoClone {
			return c.appendEvent(protocolRunID, 0, project.ID, "setup_blocked",
				fmt.Sprintf("local path %s has no git checkout and auto_clone is disabled", project.LocalPath), nil)
		}
		if err := c.Git.CloneRepo(project.GitURL, project.LocalPath); err != nil {
			return c.appendEvent(protocolRunID, 0, project.ID, "setup_failed", err.Error(), nil)
		}
		if err := c.appendEvent(protocolRunID, 0, project.ID, "setup_cloned", project.LocalPath, nil); err != nil {
			return err
		}
	}

	if err := c.provisionStarterAssets(project.LocalPath); err != nil {
		return c.appendEvent(protocolRunID, 0, project.ID, "setup_failed", err.Error(), nil)
	}

	if err := c.Git.ConfigureIdentity(project.LocalPath, "protoctl", "protoctl@localhost"); err != nil {
		return c.appendEvent(protocolRunID, 0, project.ID, "setup_failed", err.Error(), nil)
	}

	return c.appendEvent(protocolRunID, 0, project.ID, "setup_completed", "project setup finished", nil)
}

// provisionStarterAssets creates the .protocols scaffold a project needs
// before the first plan_protocol_job can write into it.
func (c *Controller) provisionStarterAssets(localPath string) error {
	protocolsDir := filepath.Join(localPath, ".protocols")
	if err := os.MkdirAll(protocolsDir, 0o755); err != nil {
		return fmt.Errorf("lifecycle: create .protocols scaffold: %w", err)
	}
	readmePath := filepath.Join(protocolsDir, "README.md")
	if _, err := os.Stat(readmePath); err != nil {
		if werr := os.WriteFile(readmePath, []byte(starterPolicyReadme), 0o644); werr != nil {
			return fmt.Errorf("lifecycle: write .protocols/README.md: %w", werr)
		}
	}
	return nil
}
