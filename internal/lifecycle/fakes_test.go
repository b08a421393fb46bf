package lifecycle

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/antigravity-dev/protoctl/internal/engine"
	"github.com/antigravity-dev/protoctl/internal/store"
	"github.com/antigravity-dev/protoctl/internal/webhook"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateProject(t *testing.T, s *store.Store, name, localPath string) *store.Project {
	t.Helper()
	p, err := s.CreateProject(store.CreateProjectInput{
		Name:       name,
		GitURL:     "https://example.test/" + name + ".git",
		LocalPath:  localPath,
		BaseBranch: "main",
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func mustCreateProtocolRun(t *testing.T, s *store.Store, projectID int64, name string) *store.ProtocolRun {
	t.Helper()
	pr, err := s.CreateProtocolRun(store.CreateProtocolRunInput{
		ProjectID:    projectID,
		ProtocolName: name,
	})
	if err != nil {
		t.Fatalf("CreateProtocolRun: %v", err)
	}
	return pr
}

// fakeGit is a deterministic in-memory stand-in for internal/git, so tests
// don't shell out to a real git binary.
type fakeGit struct {
	mu sync.Mutex

	worktreeErr    error
	statusErr      error
	status         string
	lastCommit     string
	pushErr        error
	prErr          error
	prURL          string
	prNumber       int
	cloneErr       error
	identityErr    error
	pushedBranches []string
	clonedTo       []string
	ensureWorktree func(repoPath, protocolName, baseBranch string) (string, error)
}

func (g *fakeGit) EnsureProtocolWorktree(repoPath, protocolName, baseBranch string) (string, error) {
	if g.ensureWorktree != nil {
		return g.ensureWorktree(repoPath, protocolName, baseBranch)
	}
	if g.worktreeErr != nil {
		return "", g.worktreeErr
	}
	return filepath.Join(repoPath, "..", "worktrees", protocolName), nil
}

func (g *fakeGit) StatusAndLastCommit(workspace string) (string, string, error) {
	if g.statusErr != nil {
		return "", "", g.statusErr
	}
	return g.status, g.lastCommit, nil
}

func (g *fakeGit) PushBranch(workspace, branch string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushedBranches = append(g.pushedBranches, branch)
	return g.pushErr
}

func (g *fakeGit) CreatePR(workspace, branch, baseBranch, title, body string) (string, int, error) {
	if g.prErr != nil {
		return "", 0, g.prErr
	}
	return g.prURL, g.prNumber, nil
}

func (g *fakeGit) CloneRepo(gitURL, localPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clonedTo = append(g.clonedTo, localPath)
	return g.cloneErr
}

func (g *fakeGit) ConfigureIdentity(localPath, name, email string) error {
	return g.identityErr
}

// fakePacks serves one fixed policy pack regardless of key/version.
type fakePacks struct {
	raw []byte
	err error
}

func (p *fakePacks) LoadPack(key, version string) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.raw, nil
}

// fakeEngine is a scriptable engine.Engine.
type fakeEngine struct {
	mu         sync.Mutex
	id         string
	planResult engine.Result
	planErr    error
	execResult engine.Result
	execErr    error
	qaResult   engine.Result
	qaErr      error
	execCalls  int
}

func (e *fakeEngine) Metadata() engine.Metadata {
	return engine.Metadata{ID: e.id, DisplayName: e.id, Kind: engine.KindCLI}
}

func (e *fakeEngine) CheckAvailability(ctx context.Context) error { return nil }

func (e *fakeEngine) Plan(ctx context.Context, req engine.Request) (engine.Result, error) {
	return e.planResult, e.planErr
}

func (e *fakeEngine) Execute(ctx context.Context, req engine.Request) (engine.Result, error) {
	e.mu.Lock()
	e.execCalls++
	e.mu.Unlock()
	return e.execResult, e.execErr
}

func (e *fakeEngine) QA(ctx context.Context, req engine.Request) (engine.Result, error) {
	return e.qaResult, e.qaErr
}

func newTestRegistry(engines ...*fakeEngine) *engine.Registry {
	reg := engine.NewRegistry()
	for i, e := range engines {
		reg.Register(e, i == 0)
	}
	return reg
}

// countingNotifierLC records every event delivered to it.
type countingNotifierLC struct {
	mu     sync.Mutex
	events int
}

func (n *countingNotifierLC) Notify(ctx context.Context, ev webhook.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events++
}
