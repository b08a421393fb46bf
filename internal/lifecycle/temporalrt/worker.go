package temporalrt

import (
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/antigravity-dev/protoctl/internal/store"
)

// TaskQueue is the Temporal task queue this runtime's worker polls.
const TaskQueue = "protoctl-protocol-run"

// StartWorker connects to a Temporal server and runs the protocol-run task
// queue worker until the process receives an interrupt signal: Run blocks on
// worker.InterruptCh(), the standard Temporal SDK shutdown signal, matching
// the teacher's StartWorker.
func StartWorker(hostPort string, controller Controller, st *store.Store, logger *slog.Logger) error {
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.New(c, TaskQueue, worker.Options{})

	acts := &Activities{Controller: controller, Steps: st}

	w.RegisterWorkflow(ProtocolRunWorkflow)
	w.RegisterActivity(acts.ProjectSetupActivity)
	w.RegisterActivity(acts.PlanProtocolActivity)
	w.RegisterActivity(acts.ListStepsActivity)
	w.RegisterActivity(acts.ExecuteStepActivity)
	w.RegisterActivity(acts.RunQualityActivity)
	w.RegisterActivity(acts.OpenPRActivity)

	logger.Info("temporal worker starting", "task_queue", TaskQueue, "host_port", hostPort)
	return w.Run(worker.InterruptCh())
}
