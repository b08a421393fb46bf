package specresolver

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestResolveDirectoryOrdersAndInfersStepType(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00-setup.md", "setup instructions")
	writeFile(t, dir, "01-implement.md", "implement the feature")
	writeFile(t, dir, "02-qa-review.md", "review the change")
	writeFile(t, dir, "README.md", "not a step")

	spec, err := ResolveDirectory(dir, "claude-cli")
	if err != nil {
		t.Fatalf("ResolveDirectory: %v", err)
	}
	if len(spec.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d: %+v", len(spec.Steps), spec.Steps)
	}
	if spec.Steps[0].StepType != "setup" {
		t.Fatalf("expected step 0 to be setup, got %q", spec.Steps[0].StepType)
	}
	if spec.Steps[1].StepType != "work" {
		t.Fatalf("expected step 1 to be work, got %q", spec.Steps[1].StepType)
	}
	if spec.Steps[2].StepType != "qa" {
		t.Fatalf("expected step 2 to be qa, got %q", spec.Steps[2].StepType)
	}
	for _, s := range spec.Steps {
		if s.EngineID != "claude-cli" {
			t.Fatalf("expected default engine id propagated, got %q", s.EngineID)
		}
	}
}

func TestResolveDirectoryEmpty(t *testing.T) {
	dir := t.TempDir()
	spec, err := ResolveDirectory(dir, "claude-cli")
	if err != nil {
		t.Fatalf("ResolveDirectory: %v", err)
	}
	if len(spec.Steps) != 0 {
		t.Fatalf("expected no steps, got %+v", spec.Steps)
	}
}
