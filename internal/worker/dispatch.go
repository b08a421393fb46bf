package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/antigravity-dev/protoctl/internal/lifecycle"
	"github.com/antigravity-dev/protoctl/internal/metrics"
	"github.com/antigravity-dev/protoctl/internal/queue"
	"github.com/antigravity-dev/protoctl/internal/store"
)

// planProtocolPayload etc. mirror the wire-stable job payloads in spec.md §6.
type planProtocolPayload struct {
	ProtocolRunID int64 `json:"protocol_run_id"`
}

type executeStepPayload struct {
	StepRunID int64 `json:"step_run_id"`
}

type runQualityPayload struct {
	StepRunID int64    `json:"step_run_id"`
	Gates     []string `json:"gates,omitempty"`
}

type openPRPayload struct {
	ProtocolRunID int64 `json:"protocol_run_id"`
}

type projectSetupPayload struct {
	ProjectID     int64 `json:"project_id"`
	ProtocolRunID int64 `json:"protocol_run_id,omitempty"`
}

// claimAndDispatch claims one job (if any is ready), records a CodexRun for
// it, invokes the matching handler, and reports the outcome back to the
// queue. Returns worked=false when nothing was ready to claim.
func (p *Pool) claimAndDispatch(ctx context.Context, workerID string) (worked bool, err error) {
	job, err := p.Queue.Claim(ctx, "", p.visibility())
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			return false, nil
		}
		return false, fmt.Errorf("worker: claim: %w", err)
	}

	p.recordCodexRunStarted(job, workerID)
	stopHeartbeat := p.startHeartbeat(ctx, job.JobID)
	start := time.Now()
	handleErr := p.dispatch(ctx, job)
	stopHeartbeat()

	return true, p.report(ctx, job, handleErr, time.Since(start))
}

// dispatch decodes the job payload and calls the matching Handlers method.
func (p *Pool) dispatch(ctx context.Context, job *queue.Job) error {
	switch job.JobType {
	case "plan_protocol_job":
		var in planProtocolPayload
		if err := json.Unmarshal(job.Payload, &in); err != nil {
			return fmt.Errorf("%w: decode plan_protocol_job payload: %v", store.ErrValidation, err)
		}
		return p.Handlers.PlanProtocol(ctx, in.ProtocolRunID)

	case "execute_step_job":
		var in executeStepPayload
		if err := json.Unmarshal(job.Payload, &in); err != nil {
			return fmt.Errorf("%w: decode execute_step_job payload: %v", store.ErrValidation, err)
		}
		return p.Handlers.ExecuteStep(ctx, in.StepRunID)

	case "run_quality_job":
		var in runQualityPayload
		if err := json.Unmarshal(job.Payload, &in); err != nil {
			return fmt.Errorf("%w: decode run_quality_job payload: %v", store.ErrValidation, err)
		}
		return p.Handlers.RunQuality(ctx, in.StepRunID)

	case "open_pr_job":
		var in openPRPayload
		if err := json.Unmarshal(job.Payload, &in); err != nil {
			return fmt.Errorf("%w: decode open_pr_job payload: %v", store.ErrValidation, err)
		}
		return p.Handlers.OpenPR(ctx, in.ProtocolRunID)

	case "project_setup_job":
		var in projectSetupPayload
		if err := json.Unmarshal(job.Payload, &in); err != nil {
			return fmt.Errorf("%w: decode project_setup_job payload: %v", store.ErrValidation, err)
		}
		return p.Handlers.ProjectSetup(ctx, in.ProjectID, in.ProtocolRunID)

	default:
		return fmt.Errorf("%w: unknown job type %q", store.ErrValidation, job.JobType)
	}
}

// report classifies handleErr per spec.md §7's propagation policy and tells
// the queue what to do: retry with backoff, or terminate the job.
func (p *Pool) report(ctx context.Context, job *queue.Job, handleErr error, duration time.Duration) error {
	if handleErr == nil {
		p.recordCodexRunComplete(job, "succeeded", "")
		metrics.RecordJobComplete(job.JobType, "succeeded", duration)
		return p.Queue.Complete(ctx, job.JobID, json.RawMessage(`{}`))
	}

	var retryable *lifecycle.Retryable
	if errors.As(handleErr, &retryable) {
		p.Logger.Warn("job failed, will retry", "job_id", job.JobID, "job_type", job.JobType, "error", handleErr)
		delay := queue.BackoffDelay(job.Attempts+1, time.Second, 60*time.Second)
		p.recordCodexRunComplete(job, "failed", handleErr.Error())
		metrics.RecordJobComplete(job.JobType, "retried", duration)
		return p.Queue.Requeue(ctx, job.JobID, delay)
	}

	terminal := errors.Is(handleErr, store.ErrValidation) ||
		errors.Is(handleErr, store.ErrIllegalTransition) ||
		errors.Is(handleErr, store.ErrConflict) ||
		errors.Is(handleErr, store.ErrNotFound)
	if !terminal && job.Attempts+1 < job.MaxAttempts {
		// Transient/storage failure: retry with the same backoff policy
		// as engine retries, up to the job's own attempt budget.
		p.Logger.Warn("job failed, retrying as transient", "job_id", job.JobID, "job_type", job.JobType, "error", handleErr)
		delay := queue.BackoffDelay(job.Attempts+1, time.Second, 60*time.Second)
		p.recordCodexRunComplete(job, "failed", handleErr.Error())
		metrics.RecordJobComplete(job.JobType, "retried", duration)
		return p.Queue.Requeue(ctx, job.JobID, delay)
	}

	p.Logger.Error("job failed terminally", "job_id", job.JobID, "job_type", job.JobType, "error", handleErr)
	p.recordCodexRunComplete(job, "failed", handleErr.Error())
	metrics.RecordJobComplete(job.JobType, "failed", duration)
	return p.Queue.Fail(ctx, job.JobID, handleErr.Error())
}

func (p *Pool) recordCodexRunStarted(job *queue.Job, workerID string) {
	if p.Store == nil {
		return
	}
	if _, err := p.Store.CreateCodexRun(store.CreateCodexRunInput{
		RunID:   job.JobID,
		JobType: job.JobType,
		Queue:   job.Queue,
		Params:  job.Payload,
	}); err != nil {
		p.Logger.Warn("failed to record codex run", "job_id", job.JobID, "error", err)
	}
	if err := p.Store.MarkCodexRunStarted(job.JobID, workerID, job.Attempts+1); err != nil {
		p.Logger.Warn("failed to mark codex run started", "job_id", job.JobID, "error", err)
	}
}

func (p *Pool) recordCodexRunComplete(job *queue.Job, status, errMsg string) {
	if p.Store == nil {
		return
	}
	if err := p.Store.CompleteCodexRun(job.JobID, status, nil, errMsg, 0, 0); err != nil {
		p.Logger.Warn("failed to complete codex run", "job_id", job.JobID, "error", err)
	}
}

// startHeartbeat launches a goroutine that touches the job's CodexRun every
// HeartbeatInterval while it is in flight, and returns a stop func.
func (p *Pool) startHeartbeat(ctx context.Context, runID string) (stop func()) {
	if p.Store == nil {
		return func() {}
	}
	interval := p.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := p.Store.TouchCodexRunHeartbeat(runID); err != nil {
					p.Logger.Debug("heartbeat failed", "run_id", runID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
