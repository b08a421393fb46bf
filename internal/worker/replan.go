package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/antigravity-dev/protoctl/internal/queue"
	"github.com/antigravity-dev/protoctl/internal/store"
)

// startReplanCron schedules a plan_protocol_job for each ReplanProject on
// its configured cadence, picking up Project.ReplanCadence from config.
func (p *Pool) startReplanCron(ctx context.Context) error {
	c := cron.New()
	for _, rp := range p.ReplanProjects {
		rp := rp
		_, err := c.AddFunc(rp.Cadence, func() {
			if err := p.triggerReplan(ctx, rp.Name); err != nil {
				p.Logger.Error("replan sweep failed", "project", rp.Name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("worker: bad replan cadence %q for project %q: %w", rp.Cadence, rp.Name, err)
		}
	}
	p.cron = c
	c.Start()
	return nil
}

// triggerReplan opens a fresh protocol run against the project's default
// protocol root and enqueues a plan_protocol_job for it.
func (p *Pool) triggerReplan(ctx context.Context, projectName string) error {
	project, err := p.Store.GetProjectByName(projectName)
	if err != nil {
		return fmt.Errorf("replan: lookup project %q: %w", projectName, err)
	}

	run, err := p.Store.CreateProtocolRun(store.CreateProtocolRunInput{
		ProjectID:    project.ID,
		ProtocolName: fmt.Sprintf("replan-%d", time.Now().UTC().Unix()),
		BaseBranch:   "main",
	})
	if err != nil {
		return fmt.Errorf("replan: create protocol run: %w", err)
	}

	payload, err := json.Marshal(planProtocolPayload{ProtocolRunID: run.ID})
	if err != nil {
		return fmt.Errorf("replan: marshal payload: %w", err)
	}
	_, err = p.Queue.Enqueue(ctx, queue.EnqueueInput{
		JobType: "plan_protocol_job",
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("replan: enqueue plan_protocol_job: %w", err)
	}

	p.Logger.Info("replan sweep enqueued plan_protocol_job", "project", projectName, "protocol_run_id", run.ID)
	return nil
}
