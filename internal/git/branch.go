package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// GetCurrentBranch returns the current branch name.
func GetCurrentBranch(workspace string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = workspace
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	return strings.TrimSpace(string(out)), nil
}

// BranchExists checks if a branch already exists.
func BranchExists(workspace, branch string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", fmt.Sprintf("refs/heads/%s", branch))
	cmd.Dir = workspace
	err := cmd.Run()
	if err != nil {
		// Exit code 1 means branch doesn't exist, other errors are real failures
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if branch %s exists: %w", branch, err)
	}

	return true, nil
}
