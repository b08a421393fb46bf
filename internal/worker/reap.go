package worker

import (
	"context"
	"time"

	"github.com/antigravity-dev/protoctl/internal/metrics"
)

// runReaper periodically reclaims visibility-timed-out queue jobs and
// requeues jobs whose CodexRun stopped heartbeating, implying its worker
// died mid-job. Exits when ctx is cancelled.
func (p *Pool) runReaper(ctx context.Context) {
	interval := p.ReapInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.Queue.ReapExpired(ctx); err != nil {
				p.Logger.Error("reap expired jobs failed", "error", err)
			} else if n > 0 {
				p.Logger.Info("reclaimed expired jobs", "count", n)
			}
			if err := p.reapDeadWorkers(ctx); err != nil {
				p.Logger.Error("reap dead workers failed", "error", err)
			}
			p.reportQueueDepth(ctx)
		}
	}
}

// reapDeadWorkers requeues jobs whose CodexRun is still "running" but hasn't
// been heartbeated within 3x the heartbeat interval, per spec.md §5's
// supervisor description.
func (p *Pool) reapDeadWorkers(ctx context.Context) error {
	if p.Store == nil {
		return nil
	}
	runs, err := p.Store.ListRunningCodexRuns()
	if err != nil {
		return err
	}
	staleAfter := 3 * p.heartbeatInterval()

	for _, run := range runs {
		updated, err := parseStoreTime(run.UpdatedAt)
		if err != nil {
			p.Logger.Warn("cannot parse codex run updated_at, skipping", "run_id", run.RunID, "error", err)
			continue
		}
		if time.Since(updated) < staleAfter {
			continue
		}

		p.Logger.Warn("worker heartbeat expired, requeuing job", "run_id", run.RunID, "worker_id", run.WorkerID)
		if err := p.Queue.Requeue(ctx, run.RunID, 0); err != nil {
			p.Logger.Error("failed to requeue job for dead worker", "run_id", run.RunID, "error", err)
			continue
		}
		if err := p.Store.CompleteCodexRun(run.RunID, "failed", nil, "worker heartbeat expired", 0, 0); err != nil {
			p.Logger.Error("failed to mark codex run failed after reap", "run_id", run.RunID, "error", err)
		}
	}
	return nil
}

// reportQueueDepth publishes current queue depth per status for the
// protoctl_queue_depth gauge.
func (p *Pool) reportQueueDepth(ctx context.Context) {
	stats, err := p.Queue.Stats(ctx)
	if err != nil {
		p.Logger.Debug("queue stats failed", "error", err)
		return
	}
	for status, depth := range stats.Queues {
		metrics.SetQueueDepth(status, depth)
	}
}

func (p *Pool) heartbeatInterval() time.Duration {
	if p.HeartbeatInterval <= 0 {
		return 10 * time.Second
	}
	return p.HeartbeatInterval
}

// parseStoreTime parses the SQLite datetime('now') format used for
// CodexRun.UpdatedAt.
func parseStoreTime(s string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05", s)
}
