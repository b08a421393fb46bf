package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CloneRepo clones gitURL into localPath if localPath does not already hold
// a git checkout. Returns nil without doing anything if it does.
func CloneRepo(gitURL, localPath string) error {
	if info, err := os.Stat(filepath.Join(localPath, ".git")); err == nil && info.IsDir() {
		return nil
	}
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git: binary not found: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("git: create parent of %s: %w", localPath, err)
	}
	cmd := exec.Command("git", "clone", gitURL, localPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to clone %s: %w (%s)", gitURL, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ConfigureIdentity sets the repo-local (not global) user.name/user.email,
// so commits made by the orchestrator on a project's behalf are attributable
// without touching the operator's global git config.
func ConfigureIdentity(localPath, name, email string) error {
	if err := runGitConfig(localPath, "user.name", name); err != nil {
		return err
	}
	return runGitConfig(localPath, "user.email", email)
}

func runGitConfig(localPath, key, value string) error {
	cmd := exec.Command("git", "config", "--local", key, value)
	cmd.Dir = localPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to set %s: %w (%s)", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}
