package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestProjectSetupBlocksWhenAutoCloneDisabled(t *testing.T) {
	git := &fakeGit{}
	s := newTestStore(t)
	c := New(s, newTestRegistry(&fakeEngine{id: "default"}), git, &fakePacks{raw: []byte(`{}`)}, nil, nil)
	c.AutoClone = false

	project := mustCreateProject(t, s, "acme", filepath.Join(t.TempDir(), "does-not-exist"))

	if err := c.ProjectSetup(context.Background(), project.ID, 0); err != nil {
		t.Fatalf("ProjectSetup: %v", err)
	}

	if len(git.clonedTo) != 0 {
		t.Fatalf("expected no clone attempt, got %v", git.clonedTo)
	}
}

func TestProjectSetupClonesWhenAutoCloneEnabled(t *testing.T) {
	git := &fakeGit{}
	s := newTestStore(t)
	c := New(s, newTestRegistry(&fakeEngine{id: "default"}), git, &fakePacks{raw: []byte(`{}`)}, nil, nil)
	c.AutoClone = true

	localPath := filepath.Join(t.TempDir(), "fresh-clone")
	project := mustCreateProject(t, s, "acme", localPath)

	if err := c.ProjectSetup(context.Background(), project.ID, 0); err != nil {
		t.Fatalf("ProjectSetup: %v", err)
	}

	if len(git.clonedTo) != 1 || git.clonedTo[0] != localPath {
		t.Fatalf("clonedTo = %v, want [%s]", git.clonedTo, localPath)
	}

	if _, err := os.Stat(filepath.Join(localPath, ".protocols", "README.md")); err != nil {
		t.Fatalf("expected .protocols scaffold to be provisioned: %v", err)
	}
}

func TestProjectSetupNotifiesOnCompletion(t *testing.T) {
	git := &fakeGit{}
	s := newTestStore(t)
	notifier := &countingNotifierLC{}
	c := New(s, newTestRegistry(&fakeEngine{id: "default"}), git, &fakePacks{raw: []byte(`{}`)}, notifier, nil)
	c.AutoClone = false

	localPath := t.TempDir()
	if err := os.MkdirAll(filepath.Join(localPath, ".git"), 0o755); err != nil {
		t.Fatalf("seed .git dir: %v", err)
	}
	project := mustCreateProject(t, s, "acme", localPath)

	if err := c.ProjectSetup(context.Background(), project.ID, 0); err != nil {
		t.Fatalf("ProjectSetup: %v", err)
	}

	notifier.mu.Lock()
	got := notifier.events
	notifier.mu.Unlock()
	if got != 1 {
		t.Fatalf("notifier.events = %d, want 1 (setup_completed)", got)
	}
}

func TestProjectSetupProvisionsStarterAssetsForExistingClone(t *testing.T) {
	git := &fakeGit{}
	s := newTestStore(t)
	c := New(s, newTestRegistry(&fakeEngine{id: "default"}), git, &fakePacks{raw: []byte(`{}`)}, nil, nil)
	c.AutoClone = false

	localPath := t.TempDir()
	if err := os.MkdirAll(filepath.Join(localPath, ".git"), 0o755); err != nil {
		t.Fatalf("seed .git dir: %v", err)
	}
	project := mustCreateProject(t, s, "acme", localPath)

	if err := c.ProjectSetup(context.Background(), project.ID, 0); err != nil {
		t.Fatalf("ProjectSetup: %v", err)
	}

	if len(git.clonedTo) != 0 {
		t.Fatalf("expected no clone for an already-checked-out repo, got %v", git.clonedTo)
	}
	if _, err := os.Stat(filepath.Join(localPath, ".protocols", "README.md")); err != nil {
		t.Fatalf("expected .protocols scaffold to be provisioned: %v", err)
	}
}
