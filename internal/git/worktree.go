package git

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoRepo indicates the configured local path is not a usable git
// repository (missing, or git itself is unavailable). Callers record this
// as a warning rather than failing the job outright.
var ErrNoRepo = errors.New("git: no usable repository")

// EnsureProtocolWorktree creates (or reuses) a git worktree for protocolName
// at <projectLocalPath>/../worktrees/<protocolName>, checked out onto a
// branch of the same name. If repoPath is not a git repository, or the git
// binary is missing, it returns ErrNoRepo so the caller can record the gap
// as a warning and keep a stub path instead of failing the job outright.
func EnsureProtocolWorktree(repoPath, protocolName, baseBranch string) (string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", fmt.Errorf("%w: git binary not found", ErrNoRepo)
	}
	if info, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil || !info.IsDir() {
		if _, err2 := os.Stat(repoPath); err2 != nil {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoRepo, repoPath)
		}
		// repoPath may itself be a worktree/bare checkout without a .git dir;
		// probe with rev-parse before giving up.
		probe := exec.Command("git", "rev-parse", "--is-inside-work-tree")
		probe.Dir = repoPath
		if out, perr := probe.CombinedOutput(); perr != nil {
			return "", fmt.Errorf("%w: %s (%s)", ErrNoRepo, repoPath, strings.TrimSpace(string(out)))
		}
	}

	worktreePath := filepath.Join(repoPath, "..", "worktrees", protocolName)
	if info, err := os.Stat(worktreePath); err == nil && info.IsDir() {
		return worktreePath, nil
	}

	if baseBranch == "" {
		baseBranch = "main"
	}
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create worktrees directory: %w", err)
	}

	exists, err := BranchExists(repoPath, protocolName)
	if err != nil {
		return "", err
	}

	var cmd *exec.Cmd
	if exists {
		cmd = exec.Command("git", "worktree", "add", worktreePath, protocolName)
	} else {
		cmd = exec.Command("git", "worktree", "add", "-b", protocolName, worktreePath, baseBranch)
	}
	cmd.Dir = repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to add worktree for %s: %w (%s)", protocolName, err, strings.TrimSpace(string(out)))
	}

	return worktreePath, nil
}

// RemoveProtocolWorktree force-removes a protocol's worktree, e.g. after a
// cancelled or completed protocol run whose policy says to reclaim disk.
func RemoveProtocolWorktree(repoPath, worktreePath string) error {
	cmd := exec.Command("git", "worktree", "remove", "--force", worktreePath)
	cmd.Dir = repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to remove worktree %s: %w (%s)", worktreePath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// StatusAndLastCommit returns `git status --short` and the one-line subject
// of the last commit, for inclusion in a QA prompt's context section.
func StatusAndLastCommit(workspace string) (status, lastCommit string, err error) {
	statusCmd := exec.Command("git", "status", "--short")
	statusCmd.Dir = workspace
	out, err := statusCmd.CombinedOutput()
	if err != nil {
		return "", "", fmt.Errorf("failed to get git status: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	status = strings.TrimSpace(string(out))

	logCmd := exec.Command("git", "log", "-1", "--pretty=format:%H %s")
	logCmd.Dir = workspace
	out, err = logCmd.CombinedOutput()
	if err != nil {
		// A brand-new worktree with no commits yet is not an error condition.
		return status, "", nil
	}
	return status, strings.TrimSpace(string(out)), nil
}

// PushBranch pushes branch to origin, creating the upstream if absent.
func PushBranch(workspace, branch string) error {
	cmd := exec.Command("git", "push", "-u", "origin", branch)
	cmd.Dir = workspace
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to push branch %s: %w (%s)", branch, err, strings.TrimSpace(string(out)))
	}
	return nil
}
