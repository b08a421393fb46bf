package specresolver

import (
	"path/filepath"
	"testing"
)

func TestResolveStepProducesStableFingerprint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01-implement.md", "do the thing")

	step := StepSpec{ID: "1", Name: "implement", PromptRef: "01-implement.md", Outputs: Outputs{Protocol: "outputs/implement.md"}}
	spec := ProtocolSpec{Steps: []StepSpec{step}}

	r1, err := ResolveStep(step, dir, "/workspace", spec, "claude-cli", false)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}
	r2, err := ResolveStep(step, dir, "/workspace", spec, "claude-cli", false)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}
	if r1.PromptVersion != r2.PromptVersion {
		t.Fatalf("expected stable fingerprint, got %q vs %q", r1.PromptVersion, r2.PromptVersion)
	}
	if len(r1.PromptVersion) != 12 {
		t.Fatalf("expected 12-char fingerprint, got %q", r1.PromptVersion)
	}
	if r1.ProtocolPath != filepath.Join(dir, "outputs/implement.md") {
		t.Fatalf("unexpected protocol output path: %q", r1.ProtocolPath)
	}
	if r1.EngineID != "claude-cli" {
		t.Fatalf("expected default engine id, got %q", r1.EngineID)
	}
	if r1.QA.Policy != QASkip {
		t.Fatalf("expected QA skip default when autoQAAfterExec is false, got %q", r1.QA.Policy)
	}
}

func TestResolveStepAutoQADefaultsToFull(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01-implement.md", "do the thing")
	step := StepSpec{ID: "1", Name: "implement", PromptRef: "01-implement.md"}
	spec := ProtocolSpec{Steps: []StepSpec{step}}

	r, err := ResolveStep(step, dir, "/workspace", spec, "claude-cli", true)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}
	if r.QA.Policy != QAFull {
		t.Fatalf("expected QA full when auto-QA enabled and step sets no policy, got %q", r.QA.Policy)
	}
}

func TestResolveStepHonorsExplicitQAPolicy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01-implement.md", "do the thing")
	step := StepSpec{ID: "1", Name: "implement", PromptRef: "01-implement.md", QA: QA{Policy: QASkip}}
	spec := ProtocolSpec{Steps: []StepSpec{step}}

	r, err := ResolveStep(step, dir, "/workspace", spec, "claude-cli", true)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}
	if r.QA.Policy != QASkip {
		t.Fatalf("expected explicit step QA policy to win over auto-QA default, got %q", r.QA.Policy)
	}
}

func TestResolveStepFingerprintChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01-implement.md", "version one")
	step := StepSpec{ID: "1", Name: "implement", PromptRef: "01-implement.md"}
	spec := ProtocolSpec{Steps: []StepSpec{step}}

	r1, err := ResolveStep(step, dir, "/workspace", spec, "claude-cli", false)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}
	writeFile(t, dir, "01-implement.md", "version two")
	r2, err := ResolveStep(step, dir, "/workspace", spec, "claude-cli", false)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}
	if r1.PromptVersion == r2.PromptVersion {
		t.Fatal("expected fingerprint to change when prompt content changes")
	}
}

func TestResolveStepMissingPromptFails(t *testing.T) {
	dir := t.TempDir()
	step := StepSpec{ID: "1", Name: "implement", PromptRef: "missing.md"}
	_, err := ResolveStep(step, dir, "/workspace", ProtocolSpec{}, "claude-cli", false)
	if err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}
