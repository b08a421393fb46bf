// Package lifecycle is the single authority for mutating protocol and step
// status. It exposes one handler per job type (plan_protocol_job,
// execute_step_job, run_quality_job, open_pr_job, project_setup_job);
// the worker pool in internal/worker dispatches claimed jobs into these
// handlers by job type.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/antigravity-dev/protoctl/internal/engine"
	"github.com/antigravity-dev/protoctl/internal/policy"
	"github.com/antigravity-dev/protoctl/internal/queue"
	"github.com/antigravity-dev/protoctl/internal/store"
	"github.com/antigravity-dev/protoctl/internal/webhook"
)

// Store is the slice of *store.Store the controller needs. Named so tests
// can substitute a fake without standing up sqlite.
type Store interface {
	GetProject(id int64) (*store.Project, error)
	GetProtocolRun(id int64) (*store.ProtocolRun, error)
	TransitionProtocolStatus(id int64, from, to store.ProtocolStatus) error
	SetProtocolWorktree(id int64, worktreePath string) error
	SetProtocolTemplateConfig(id int64, templateConfig json.RawMessage) error
	SetProtocolEffectivePolicy(id int64, effectiveJSON json.RawMessage, hash string) error
	CreateEvent(in store.CreateEventInput) (*store.Event, error)

	GetStepRun(id int64) (*store.StepRun, error)
	ListStepRuns(protocolRunID int64) ([]*store.StepRun, error)
	CreateStepRun(in store.CreateStepRunInput) (*store.StepRun, error)
	TransitionStepStatus(id int64, from, to store.StepStatus, retryDelta int) error
	SetStepAssignment(id int64, engineID, assignedAgent string) error
	SetStepRuntimeState(id int64, state json.RawMessage) error
	SetStepSummary(id int64, summary string) error
}

// GitOps is the slice of git-worktree/branch/PR operations the controller
// drives. Backed by internal/git in production; faked in tests.
type GitOps interface {
	EnsureProtocolWorktree(repoPath, protocolName, baseBranch string) (string, error)
	StatusAndLastCommit(workspace string) (status, lastCommit string, err error)
	PushBranch(workspace, branch string) error
	CreatePR(workspace, branch, baseBranch, title, body string) (url string, number int, err error)
	CloneRepo(gitURL, localPath string) error
	ConfigureIdentity(localPath, name, email string) error
}

// PolicyPackLoader resolves a policy pack key+version to raw pack JSON.
type PolicyPackLoader interface {
	LoadPack(key, version string) ([]byte, error)
}

// Controller is the single authority for mutating protocol and step status.
type Controller struct {
	Store        Store
	Engines      *engine.Registry
	Git          GitOps
	Packs        PolicyPackLoader
	Queue        queue.Queue
	Notifier     webhook.Notifier
	Logger       *slog.Logger
	AutoQA       bool // env.AUTO_QA_AFTER_EXEC
	AutoClone    bool // env.AUTO_CLONE
	MaxRetries    int
	DefaultEngine string
	RepoLocalFileName string // e.g. ".devgodzilla/policy.json"; empty disables the repo-local layer
}

// New constructs a Controller. logger and notifier default to sane
// no-op-ish values when nil so callers can omit them in tests.
func New(st Store, engines *engine.Registry, git GitOps, packs PolicyPackLoader, notifier webhook.Notifier, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = webhook.NewLoggingNotifier(logger)
	}
	return &Controller{
		Store:      st,
		Engines:    engines,
		Git:        git,
		Packs:      packs,
		Notifier:   notifier,
		Logger:     logger,
		MaxRetries: 3,
	}
}

// appendEvent persists an event and fans it out to the configured notifier.
// Metadata may be nil.
func (c *Controller) appendEvent(protocolRunID, stepRunID, projectID int64, eventType, message string, metadata map[string]any) error {
	var metaJSON json.RawMessage
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		metaJSON = b
	}
	ev, err := c.Store.CreateEvent(store.CreateEventInput{
		ProtocolRunID: protocolRunID,
		StepRunID:     stepRunID,
		ProjectID:     projectID,
		EventType:     eventType,
		Message:       message,
		Metadata:      metaJSON,
	})
	if err != nil {
		return err
	}
	c.Notifier.Notify(context.Background(), webhook.Event{
		ProtocolRunID: protocolRunID,
		StepRunID:     stepRunID,
		ProjectID:     projectID,
		EventType:     ev.EventType,
		Message:       ev.Message,
		Metadata:      metadata,
	})
	return nil
}

// effectivePolicy resolves and merges the project's policy pack, its
// overrides, and (if enabled) a repo-local file, caching the result on the
// protocol run.
func (c *Controller) effectivePolicy(project *store.Project, run *store.ProtocolRun, repoLocalBytes []byte) (policy.Effective, error) {
	packJSON, err := c.Packs.LoadPack(project.PolicyPackKey, project.PolicyPackVersion)
	if err != nil {
		return policy.Effective{}, err
	}
	eff, err := policy.ComputeEffective(packJSON, project.PolicyOverrides, repoLocalBytes)
	if err != nil {
		return policy.Effective{}, err
	}
	if err := c.Store.SetProtocolEffectivePolicy(run.ID, eff.JSON, eff.Hash); err != nil {
		return policy.Effective{}, err
	}
	return eff, nil
}
