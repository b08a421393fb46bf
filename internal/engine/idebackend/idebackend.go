// Package idebackend adapts an IDE-integrated agent to the
// engine.Engine contract: write a JSON command file under a configured
// directory, then poll for a result file with the same stem and a
// ".result.json" extension.
package idebackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/antigravity-dev/protoctl/internal/config"
	"github.com/antigravity-dev/protoctl/internal/engine"
)

const minPollInterval = time.Second

// commandFile is the JSON document Backend writes for the IDE to pick up.
type commandFile struct {
	Sandbox    string         `json:"sandbox"`
	Model      string         `json:"model"`
	Prompt     string         `json:"prompt"`
	WorkingDir string         `json:"working_dir"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// resultFile is the JSON document Backend expects the IDE to write back.
type resultFile struct {
	Success    bool           `json:"success"`
	Stdout     string         `json:"stdout"`
	Stderr     string         `json:"stderr"`
	Error      string         `json:"error,omitempty"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Cost       float64        `json:"cost,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Backend runs one configured IDE-command-file engine.
type Backend struct {
	id           string
	cfg          config.Engine
	pollInterval time.Duration
}

// New constructs an IDE backend for one named engine config entry.
func New(id string, cfg config.Engine) *Backend {
	return &Backend{id: id, cfg: cfg, pollInterval: minPollInterval}
}

func (b *Backend) Metadata() engine.Metadata {
	return engine.Metadata{
		ID:           b.id,
		DisplayName:  b.cfg.DisplayName,
		Kind:         engine.KindIDE,
		DefaultModel: b.cfg.DefaultModel,
		Capabilities: b.cfg.Capabilities,
	}
}

func (b *Backend) CheckAvailability(ctx context.Context) error {
	if b.cfg.CommandDir == "" {
		return fmt.Errorf("idebackend %s: command_dir is not configured", b.id)
	}
	info, err := os.Stat(b.cfg.CommandDir)
	if err != nil {
		return fmt.Errorf("idebackend %s: command_dir %s: %w", b.id, b.cfg.CommandDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("idebackend %s: command_dir %s is not a directory", b.id, b.cfg.CommandDir)
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

	stem := fmt.Sprintf("cmd-%d-%d", req.StepRunID, time.Now().UnixNano())
	cmdPath := filepath.Join(b.cfg.CommandDir, stem+".json")
	resultPath := filepath.Join(b.cfg.CommandDir, stem+".result.json")

	doc := commandFile{
		Sandbox:    string(req.Sandbox),
		Model:      req.Model,
		Prompt:     prompt,
		WorkingDir: req.WorkingDir,
		Extra:      req.Extra,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return engine.Result{}, fmt.Errorf("idebackend %s: encode command file: %w", b.id, err)
	}
	if err := os.WriteFile(cmdPath, data, 0o644); err != nil {
		return engine.Result{}, fmt.Errorf("idebackend %s: write command file: %w", b.id, err)
	}
	defer os.Remove(cmdPath)

	timeout := b.cfg.ResultTimeout.Duration
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}

	res, err := b.waitForResult(ctx, resultPath, timeout)
	if err != nil {
		return engine.Result{Success: false, Error: err.Error()}, nil
	}
	defer os.Remove(resultPath)

	return engine.Result{
		Success:    res.Success,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Error:      res.Error,
		TokensUsed: res.TokensUsed,
		Cost:       res.Cost,
		Metadata:   res.Metadata,
	}, nil
}

func (b *Backend) waitForResult(ctx context.Context, resultPath string, timeout time.Duration) (resultFile, error) {
	interval := b.pollInterval
	if interval < minPollInterval {
		interval = minPollInterval
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if data, err := os.ReadFile(resultPath); err == nil {
			var res resultFile
			if err := json.Unmarshal(data, &res); err != nil {
				return resultFile{}, fmt.Errorf("idebackend %s: decode result file: %w", b.id, err)
			}
			return res, nil
		}
		if time.Now().After(deadline) {
			return resultFile{}, fmt.Errorf("idebackend %s: timed out after %s waiting for %s", b.id, timeout, resultPath)
		}
		select {
		case <-ctx.Done():
			return resultFile{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func readPromptFiles(paths []string) (string, error) {
	var combined string
	for i, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("idebackend: read prompt file %s: %w", p, err)
		}
		if i > 0 {
			combined += "\n\n"
		}
		combined += string(b)
	}
	return combined, nil
}
