// Package worker runs the claim -> dispatch -> handler -> report loop
// spec.md §4.I describes: a pool of workers pulling jobs off the durable
// queue and driving them through the lifecycle controller's handlers.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	cron "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/antigravity-dev/protoctl/internal/queue"
	"github.com/antigravity-dev/protoctl/internal/store"
)

// Handlers is the slice of lifecycle.Controller methods the pool dispatches
// into, keyed by job type. Named so tests can substitute a fake Controller.
type Handlers interface {
	PlanProtocol(ctx context.Context, protocolRunID int64) error
	ExecuteStep(ctx context.Context, stepRunID int64) error
	RunQuality(ctx context.Context, stepRunID int64) error
	OpenPR(ctx context.Context, protocolRunID int64) error
	ProjectSetup(ctx context.Context, projectID, protocolRunID int64) error
}

// Store is the slice of *store.Store the pool needs for CodexRun bookkeeping
// and the replan sweep.
type Store interface {
	CreateCodexRun(in store.CreateCodexRunInput) (*store.CodexRun, error)
	MarkCodexRunStarted(runID, workerID string, attempt int) error
	CompleteCodexRun(runID, status string, result json.RawMessage, errMsg string, costTokens, costCents int64) error
	TouchCodexRunHeartbeat(runID string) error
	ListRunningCodexRuns() ([]*store.CodexRun, error)

	GetProjectByName(name string) (*store.Project, error)
	CreateProtocolRun(in store.CreateProtocolRunInput) (*store.ProtocolRun, error)
}

// ReplanProject names a project whose protocol set should be periodically
// re-planned, per SPEC_FULL.md's Project.ReplanCadence addition.
type ReplanProject struct {
	Name    string
	Cadence string // cron expression
}

// Pool runs Concurrency workers against Queue, dispatching claimed jobs into
// Handlers and recording CodexRun bookkeeping in Store.
type Pool struct {
	Queue             queue.Queue
	Handlers          Handlers
	Store             Store
	Logger            *slog.Logger
	Concurrency       int
	PollInterval      time.Duration
	Visibility        time.Duration
	ReapInterval      time.Duration
	HeartbeatInterval time.Duration
	ReplanProjects    []ReplanProject

	cron *cron.Cron
}

// New builds a Pool with spec.md §5/§8 defaults filled in for zero fields.
func New(q queue.Queue, handlers Handlers, st Store, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		Queue:             q,
		Handlers:          handlers,
		Store:             st,
		Logger:            logger,
		Concurrency:       1,
		PollInterval:      time.Second,
		Visibility:        30 * time.Minute,
		ReapInterval:      30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs to finish
// their current handler call before returning. Concurrency per worker is 1
// in-flight job, per spec.md §5 — horizontal scaling is more workers.
func (p *Pool) Run(ctx context.Context) error {
	n := p.Concurrency
	if n <= 0 {
		n = 1
	}

	if len(p.ReplanProjects) > 0 {
		if err := p.startReplanCron(ctx); err != nil {
			return fmt.Errorf("worker: start replan cron: %w", err)
		}
		defer p.cron.Stop()
	}

	reapCtx, cancelReap := context.WithCancel(ctx)
	defer cancelReap()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.runReaper(reapCtx)
		return nil
	})

	for i := 0; i < n; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		g.Go(func() error {
			p.loop(gctx, workerID)
			return nil
		})
	}

	<-ctx.Done()
	return g.Wait()
}

// loop implements claim -> dispatch -> handler -> report for one worker,
// polling at PollInterval (>=100ms per spec.md §5) when the queue is empty.
func (p *Pool) loop(ctx context.Context, workerID string) {
	p.Logger.Info("worker started", "worker_id", workerID)
	ticker := time.NewTicker(p.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("worker stopping", "worker_id", workerID)
			return
		case <-ticker.C:
			if _, err := p.claimAndDispatch(ctx, workerID); err != nil {
				p.Logger.Error("worker dispatch error", "worker_id", workerID, "error", err)
			}
		}
	}
}

func (p *Pool) pollInterval() time.Duration {
	if p.PollInterval < 100*time.Millisecond {
		return 100 * time.Millisecond
	}
	return p.PollInterval
}

func (p *Pool) visibility() time.Duration {
	if p.Visibility <= 0 {
		return 30 * time.Minute
	}
	return p.Visibility
}
