package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/protoctl/internal/engine"
	"github.com/antigravity-dev/protoctl/internal/store"
)

var errBoom = errors.New("boom")

func newPlanController(t *testing.T, eng *fakeEngine) (*Controller, *fakeGit) {
	t.Helper()
	git := &fakeGit{}
	c := New(newTestStore(t), newTestRegistry(eng), git, &fakePacks{raw: []byte(`{"required_sections":[]}`)}, nil, nil)
	return c, git
}

func writeStepFiles(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"00-setup.md": "# Setup\nPrepare the workspace.",
		"01-work.md":  "# Work\nDo the thing.",
	}
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestPlanProtocolCreatesStepsAndTransitionsToPlanned(t *testing.T) {
	eng := &fakeEngine{id: "default", planResult: engine.Result{Success: true, Stdout: "# Plan\n1. setup\n2. work"}}
	c, _ := newPlanController(t, eng)
	s := c.Store.(*store.Store)

	projectDir := t.TempDir()
	project := mustCreateProject(t, s, "acme", projectDir)
	run := mustCreateProtocolRun(t, s, project.ID, "ship-feature")

	// PlanProtocol resolves the protocol directory from the worktree path
	// fakeGit hands back; pre-seed the step files there before planning.
	worktree := filepath.Join(projectDir, "..", "worktrees", run.ProtocolName)
	protocolDir := filepath.Join(worktree, ".protocols", run.ProtocolName)
	writeStepFiles(t, protocolDir)

	if err := c.PlanProtocol(context.Background(), run.ID); err != nil {
		t.Fatalf("PlanProtocol: %v", err)
	}

	got, err := s.GetProtocolRun(run.ID)
	if err != nil {
		t.Fatalf("GetProtocolRun: %v", err)
	}
	if got.Status != store.ProtocolPlanned {
		t.Fatalf("status = %s, want planned", got.Status)
	}
	if got.WorktreePath != worktree {
		t.Fatalf("worktree = %s, want %s", got.WorktreePath, worktree)
	}
	if len(got.TemplateConfig) == 0 || string(got.TemplateConfig) == "{}" {
		t.Fatalf("template_config not populated: %s", got.TemplateConfig)
	}

	steps, err := s.ListStepRuns(run.ID)
	if err != nil {
		t.Fatalf("ListStepRuns: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("len(steps) = %d, want 2", len(steps))
	}

	if _, err := os.Stat(filepath.Join(protocolDir, "plan.md")); err != nil {
		t.Fatalf("plan.md not written: %v", err)
	}
}

func TestPlanProtocolRecordsWarningOnWorktreeFailure(t *testing.T) {
	eng := &fakeEngine{id: "default", planResult: engine.Result{Success: true, Stdout: "plan"}}
	c, git := newPlanController(t, eng)
	git.worktreeErr = errBoom
	s := c.Store.(*store.Store)

	projectDir := t.TempDir()
	project := mustCreateProject(t, s, "acme", projectDir)
	run := mustCreateProtocolRun(t, s, project.ID, "ship-feature")

	fallback := filepath.Join(projectDir, "..", "worktrees", run.ProtocolName)
	writeStepFiles(t, filepath.Join(fallback, ".protocols", run.ProtocolName))

	if err := c.PlanProtocol(context.Background(), run.ID); err != nil {
		t.Fatalf("PlanProtocol: %v", err)
	}

	page, err := s.ListEvents(run.ID, 0, 100)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	found := false
	for _, ev := range page.Events {
		if ev.EventType == "worktree_warning" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a worktree_warning event, got %+v", page.Events)
	}
}

func TestPlanProtocolRejectsAlreadyPlannedRun(t *testing.T) {
	eng := &fakeEngine{id: "default"}
	c, _ := newPlanController(t, eng)
	s := c.Store.(*store.Store)

	project := mustCreateProject(t, s, "acme", t.TempDir())
	run := mustCreateProtocolRun(t, s, project.ID, "ship-feature")
	if err := s.TransitionProtocolStatus(run.ID, store.ProtocolPending, store.ProtocolPlanning); err != nil {
		t.Fatalf("seed transition: %v", err)
	}
	if err := s.TransitionProtocolStatus(run.ID, store.ProtocolPlanning, store.ProtocolPlanned); err != nil {
		t.Fatalf("seed transition: %v", err)
	}

	if err := c.PlanProtocol(context.Background(), run.ID); err == nil {
		t.Fatalf("expected error planning an already-planned run")
	}
}
