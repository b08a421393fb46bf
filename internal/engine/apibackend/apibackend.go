// Package apibackend adapts an OpenAI-compatible chat-completion HTTP
// API to the engine.Engine contract: POST the prompt with bearer auth,
// surface provider errors with their HTTP status in result metadata.
package apibackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antigravity-dev/protoctl/internal/config"
	"github.com/antigravity-dev/protoctl/internal/cost"
	"github.com/antigravity-dev/protoctl/internal/engine"
)

const defaultTimeout = 180 * time.Second

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Backend runs one configured OpenAI-compatible API engine.
type Backend struct {
	id     string
	cfg    config.Engine
	client *http.Client
}

// New constructs an API backend for one named engine config entry.
func New(id string, cfg config.Engine, client *http.Client) *Backend {
	if client == nil {
		timeout := cfg.Timeout.Duration
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Backend{id: id, cfg: cfg, client: client}
}

func (b *Backend) Metadata() engine.Metadata {
	return engine.Metadata{
		ID:           b.id,
		DisplayName:  b.cfg.DisplayName,
		Kind:         engine.KindAPI,
		DefaultModel: b.cfg.DefaultModel,
		Capabilities: b.cfg.Capabilities,
	}
}

func (b *Backend) CheckAvailability(ctx context.Context) error {
	if strings.TrimSpace(b.cfg.BaseURL) == "" {
		return fmt.Errorf("apibackend %s: base_url is not configured", b.id)
	}
	if b.apiKey() == "" {
		return fmt.Errorf("apibackend %s: env var %s is empty or unset", b.id, b.cfg.APIKeyEnv)
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

func (b *Backend) apiKey() string {
	if strings.TrimSpace(b.cfg.APIKeyEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(b.cfg.APIKeyEnv))
}

func (b *Backend) run(ctx context.Context, req engine.Request, required engine.Sandbox) (engine.Result, error) {
	if req.Sandbox == "" {
		req.Sandbox = required
	}

	prompt, err := readPromptFiles(req.PromptFiles)
	if err != nil {
		return engine.Result{}, err
	}

	model := req.Model
	if model == "" {
		model = b.cfg.DefaultModel
	}
	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return engine.Result{}, fmt.Errorf("apibackend %s: encode request: %w", b.id, err)
	}

	endpoint := strings.TrimRight(b.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return engine.Result{}, fmt.Errorf("apibackend %s: build request: %w", b.id, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := b.apiKey(); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return engine.Result{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return engine.Result{}, fmt.Errorf("apibackend %s: read response body: %w", b.id, err)
	}

	var parsed chatResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return engine.Result{
			Success:  false,
			Error:    fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, msg),
			Metadata: map[string]any{"status_code": resp.StatusCode},
		}, nil
	}

	var stdout string
	if len(parsed.Choices) > 0 {
		stdout = parsed.Choices[0].Message.Content
	}
	tokens := parsed.Usage.PromptTokens + parsed.Usage.CompletionTokens
	if tokens == 0 {
		usage := cost.ExtractTokenUsage(stdout, prompt)
		tokens = usage.Input + usage.Output
	}

	return engine.Result{
		Success:    true,
		Stdout:     stdout,
		TokensUsed: tokens,
		Metadata:   map[string]any{"status_code": resp.StatusCode},
	}, nil
}

func readPromptFiles(paths []string) (string, error) {
	var combined string
	for i, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("apibackend: read prompt file %s: %w", p, err)
		}
		if i > 0 {
			combined += "\n\n"
		}
		combined += string(b)
	}
	return combined, nil
}
