package lifecycle

import (
	"context"
	"testing"
)

func TestOpenPRPushesAndRecordsPRURL(t *testing.T) {
	git := &fakeGit{prURL: "https://example.test/pr/1", prNumber: 1}
	s := newTestStore(t)
	c := New(s, newTestRegistry(&fakeEngine{id: "default"}), git, &fakePacks{raw: []byte(`{}`)}, nil, nil)

	project := mustCreateProject(t, s, "acme", t.TempDir())
	run := mustCreateProtocolRun(t, s, project.ID, "ship-feature")
	if err := s.SetProtocolWorktree(run.ID, t.TempDir()); err != nil {
		t.Fatalf("SetProtocolWorktree: %v", err)
	}

	if err := c.OpenPR(context.Background(), run.ID); err != nil {
		t.Fatalf("OpenPR: %v", err)
	}

	if len(git.pushedBranches) != 1 || git.pushedBranches[0] != run.ProtocolName {
		t.Fatalf("pushedBranches = %v, want [%s]", git.pushedBranches, run.ProtocolName)
	}

	page, err := s.ListEvents(run.ID, 0, 100)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	found := false
	for _, ev := range page.Events {
		if ev.EventType == "pr_opened" && ev.Message == "https://example.test/pr/1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pr_opened event, got %+v", page.Events)
	}
}

func TestOpenPRRecordsPushFailureAsEventNotHardError(t *testing.T) {
	git := &fakeGit{pushErr: errBoom}
	s := newTestStore(t)
	c := New(s, newTestRegistry(&fakeEngine{id: "default"}), git, &fakePacks{raw: []byte(`{}`)}, nil, nil)

	project := mustCreateProject(t, s, "acme", t.TempDir())
	run := mustCreateProtocolRun(t, s, project.ID, "ship-feature")
	if err := s.SetProtocolWorktree(run.ID, t.TempDir()); err != nil {
		t.Fatalf("SetProtocolWorktree: %v", err)
	}

	if err := c.OpenPR(context.Background(), run.ID); err != nil {
		t.Fatalf("OpenPR: %v", err)
	}

	page, err := s.ListEvents(run.ID, 0, 100)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	found := false
	for _, ev := range page.Events {
		if ev.EventType == "push_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected push_failed event, got %+v", page.Events)
	}
}

func TestOpenPRRejectsRunWithoutWorktree(t *testing.T) {
	git := &fakeGit{}
	s := newTestStore(t)
	c := New(s, newTestRegistry(&fakeEngine{id: "default"}), git, &fakePacks{raw: []byte(`{}`)}, nil, nil)

	project := mustCreateProject(t, s, "acme", t.TempDir())
	run := mustCreateProtocolRun(t, s, project.ID, "ship-feature")

	if err := c.OpenPR(context.Background(), run.ID); err == nil {
		t.Fatalf("expected error for run with no worktree")
	}
}
