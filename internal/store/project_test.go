package store

import (
	"errors"
	"testing"
)

func TestCreateProjectRejectsDuplicateName(t *testing.T) {
	s := newTestStore(t)
	mustCreateProject(t, s, "acme")

	_, err := s.CreateProject(CreateProjectInput{Name: "acme", GitURL: "https://example.test/acme.git"})
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
}

func TestCreateProjectRequiresGitURL(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateProject(CreateProjectInput{Name: "acme"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestProjectDefaultsAndClone(t *testing.T) {
	s := newTestStore(t)
	p := mustCreateProject(t, s, "acme")
	if p.BaseBranch != "main" {
		t.Fatalf("expected default base branch main, got %q", p.BaseBranch)
	}
	if p.PolicyEnforcementMode != "warn" {
		t.Fatalf("expected default enforcement mode warn, got %q", p.PolicyEnforcementMode)
	}

	fetched, err := s.GetProject(p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if fetched.Name != "acme" {
		t.Fatalf("unexpected fetched project: %+v", fetched)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProject(999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListProjectsOrderedByName(t *testing.T) {
	s := newTestStore(t)
	mustCreateProject(t, s, "zebra")
	mustCreateProject(t, s, "apple")

	projects, err := s.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "apple" || projects[1].Name != "zebra" {
		t.Fatalf("unexpected project order: %+v", projects)
	}
}
