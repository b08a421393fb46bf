package clibackend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/protoctl/internal/config"
	"github.com/antigravity-dev/protoctl/internal/engine"
)

func writePromptFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "prompt.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write prompt file: %v", err)
	}
	return path
}

func TestExecuteRunsConfiguredCommand(t *testing.T) {
	dir := t.TempDir()
	promptPath := writePromptFile(t, dir, "implement the feature")

	cfg := config.Engine{
		Command:    "/bin/cat",
		PromptMode: "stdin",
		Timeout:    config.Duration{Duration: 5 * time.Second},
	}
	b := New("cat-engine", cfg, nil)

	result, err := b.Execute(context.Background(), engine.Request{
		PromptFiles: []string{promptPath},
		WorkingDir:  dir,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Stdout != "implement the feature" {
		t.Fatalf("expected stdout to echo stdin, got %q", result.Stdout)
	}
}

func TestCheckAvailabilityFailsForMissingCommand(t *testing.T) {
	b := New("missing", config.Engine{Command: "protoctl-definitely-not-a-real-binary"}, nil)
	if err := b.CheckAvailability(context.Background()); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestCheckAvailabilitySkipsLookupWhenDockerConfigured(t *testing.T) {
	b := New("docker-engine", config.Engine{Command: "anything", UseDocker: true}, nil)
	if err := b.CheckAvailability(context.Background()); err != nil {
		t.Fatalf("expected docker-backed engine to skip host PATH lookup, got %v", err)
	}
}

func TestMetadataReflectsConfig(t *testing.T) {
	cfg := config.Engine{DisplayName: "Claude CLI", DefaultModel: "sonnet", Capabilities: []string{"plan", "execute"}}
	b := New("claude-cli", cfg, nil)
	meta := b.Metadata()
	if meta.ID != "claude-cli" || meta.DisplayName != "Claude CLI" || meta.Kind != engine.KindCLI {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestExecuteFailsWithoutSandboxWhenDockerRequired(t *testing.T) {
	b := New("docker-engine", config.Engine{Command: "agent", UseDocker: true}, nil)
	dir := t.TempDir()
	promptPath := writePromptFile(t, dir, "hello")
	result, err := b.Execute(context.Background(), engine.Request{PromptFiles: []string{promptPath}, WorkingDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure when docker sandbox is required but not configured")
	}
}

type fakeSandbox struct {
	stdout string
}

func (f *fakeSandbox) Run(ctx context.Context, image string, args []string, stdin, workDir string) (string, string, int, error) {
	return f.stdout, "", 0, nil
}

func TestExecuteUsesSandboxerWhenDockerConfigured(t *testing.T) {
	dir := t.TempDir()
	promptPath := writePromptFile(t, dir, "hello")
	sandbox := &fakeSandbox{stdout: "ran in container"}
	cfg := config.Engine{Command: "agent", UseDocker: true, DockerImage: "agent:latest", PromptMode: "stdin"}
	b := New("docker-engine", cfg, sandbox)

	result, err := b.Execute(context.Background(), engine.Request{PromptFiles: []string{promptPath}, WorkingDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Stdout != "ran in container" {
		t.Fatalf("expected sandboxed stdout, got %q", result.Stdout)
	}
}
