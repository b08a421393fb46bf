// Package clibackend adapts a local CLI coding-agent binary to the
// engine.Engine contract: spawn a subprocess, feed it the prompt on
// stdin or via a temp file, capture stdout, and retry on timeout within
// an overall budget. Whether the binary runs inside a container or
// directly on the host is decided by the engine's use_docker setting
// alone; the request's sandbox mode is not consulted for that choice.
package clibackend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/antigravity-dev/protoctl/internal/config"
	"github.com/antigravity-dev/protoctl/internal/cost"
	"github.com/antigravity-dev/protoctl/internal/engine"
)

// Sandboxer runs a CLI invocation inside an isolated environment (e.g. a
// Docker container) instead of directly on the host. Backend uses it for
// every invocation when the engine config sets use_docker, and fails the
// invocation if use_docker is set but no Sandboxer was supplied; without
// use_docker it execs the command directly, whatever the sandbox mode.
type Sandboxer interface {
	Run(ctx context.Context, image string, args []string, stdin string, workDir string) (stdout, stderr string, exitCode int, err error)
}

// Backend runs one configured CLI engine.
type Backend struct {
	id       string
	cfg      config.Engine
	sandbox  Sandboxer
}

// New constructs a CLI backend for one named engine config entry.
func New(id string, cfg config.Engine, sandbox Sandboxer) *Backend {
	return &Backend{id: id, cfg: cfg, sandbox: sandbox}
}

func (b *Backend) Metadata() engine.Metadata {
	return engine.Metadata{
		ID:           b.id,
		DisplayName:  b.cfg.DisplayName,
		Kind:         engine.KindCLI,
		DefaultModel: b.cfg.DefaultModel,
		Capabilities: b.cfg.Capabilities,
	}
}

func (b *Backend) CheckAvailability(ctx context.Context) error {
	if strings.TrimSpace(b.cfg.Command) == "" {
		return fmt.Errorf("clibackend %s: no command configured", b.id)
	}
	if b.cfg.UseDocker {
		return nil
	}
	if _, err := exec.LookPath(b.cfg.Command); err != nil {
		return fmt.Errorf("clibackend %s: command %q not found: %w", b.id, b.cfg.Command, err)
	}
	return nil
}

func (b *Backend) Plan(ctx context.Context, req engine.Request) (engine.Result, error) {
	return b.run(ctx, req, engine.SandboxFullAccess)
}

func (b *Backend) Execute(ctx context.Context, req engine.Request) (engine.Result, error) {
	return b.run(ctx, req, engine.SandboxWorkspaceWrite)
}

func (b *Backend) QA(ctx context.Context, req engine.Request) (engine.Result, error) {
	return b.run(ctx, req, engine.SandboxReadOnly)
}

func (b *Backend) run(ctx context.Context, req engine.Request, required engine.Sandbox) (engine.Result, error) {
	if req.Sandbox == "" {
		req.Sandbox = required
	}

	prompt, err := readPromptFiles(req.PromptFiles)
	if err != nil {
		return engine.Result{}, err
	}

	timeout := b.cfg.Timeout.Duration
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	chunk := b.cfg.ChunkTimeout.Duration
	if chunk <= 0 {
		chunk = timeout
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for attempt := 0; time.Now().Before(deadline); attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, chunk)
		stdout, stderr, exitCode, err := b.invoke(attemptCtx, req, prompt)
		cancel()

		if err == nil {
			usage := cost.ExtractTokenUsage(stdout, prompt)
			return engine.Result{
				Success:    exitCode == 0,
				Stdout:     stdout,
				Stderr:     stderr,
				TokensUsed: usage.Input + usage.Output,
				Metadata:   map[string]any{"exit_code": exitCode, "attempt": attempt},
			}, nil
		}
		lastErr = err
		if attemptCtx.Err() != context.DeadlineExceeded {
			return engine.Result{Success: false, Error: err.Error()}, nil
		}
	}
	return engine.Result{Success: false, Error: fmt.Sprintf("clibackend %s: timed out after %s: %v", b.id, timeout, lastErr)}, nil
}

func (b *Backend) invoke(ctx context.Context, req engine.Request, prompt string) (stdout, stderr string, exitCode int, err error) {
	args, tempPromptPath, err := buildArgs(b.cfg, req, prompt)
	if tempPromptPath != "" {
		defer os.Remove(tempPromptPath)
	}
	if err != nil {
		return "", "", -1, err
	}

	if b.cfg.UseDocker {
		if b.sandbox == nil {
			return "", "", -1, fmt.Errorf("clibackend %s: use_docker is set but no sandbox runner is configured", b.id)
		}
		stdinData := ""
		if promptMode(b.cfg) == "stdin" {
			stdinData = prompt
		}
		return b.sandbox.Run(ctx, b.cfg.DockerImage, append([]string{b.cfg.Command}, args...), stdinData, req.WorkingDir)
	}

	cmd := exec.CommandContext(ctx, b.cfg.Command, args...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	if promptMode(b.cfg) == "stdin" {
		cmd.Stdin = strings.NewReader(prompt)
	}
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	code := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
			runErr = nil
		}
	}
	return outBuf.String(), errBuf.String(), code, runErr
}

func promptMode(cfg config.Engine) string {
	mode := strings.TrimSpace(cfg.PromptMode)
	if mode == "" {
		return "stdin"
	}
	return mode
}

func buildArgs(cfg config.Engine, req engine.Request, prompt string) ([]string, string, error) {
	args := append([]string{}, cfg.Args...)

	tempPromptPath := ""
	switch promptMode(cfg) {
	case "stdin":
		// prompt goes to stdin, not argv
	case "file":
		f, err := os.CreateTemp("", "protoctl-prompt-*.txt")
		if err != nil {
			return nil, "", fmt.Errorf("clibackend: create prompt file: %w", err)
		}
		tempPromptPath = f.Name()
		if _, err := f.WriteString(prompt); err != nil {
			f.Close()
			os.Remove(tempPromptPath)
			return nil, "", fmt.Errorf("clibackend: write prompt file: %w", err)
		}
		f.Close()
		args = append(args, tempPromptPath)
	default:
		return nil, "", fmt.Errorf("clibackend: unsupported prompt_mode %q", cfg.PromptMode)
	}

	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	return args, tempPromptPath, nil
}

func readPromptFiles(paths []string) (string, error) {
	var parts []string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("clibackend: read prompt file %s: %w", p, err)
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, "\n\n"), nil
}
