package temporalrt

import (
	"context"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// StartProtocolRun dials the Temporal frontend and starts one
// ProtocolRunWorkflow execution. It is the temporal-mode equivalent of
// internal/worker's replan sweep and one-off plan_protocol_job enqueue:
// both ultimately kick off a protocol run, just onto a different runtime.
// Re-running the same protocol run ID starts a fresh execution rather than
// erroring, matching the idempotent-retriggerable intent of the polling
// queue's replan_protocol_job.
func StartProtocolRun(ctx context.Context, hostPort string, req ProtocolRunRequest) (client.WorkflowRun, error) {
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return nil, fmt.Errorf("temporalrt: dial: %w", err)
	}
	defer c.Close()

	opts := client.StartWorkflowOptions{
		ID:                    fmt.Sprintf("protocol-run-%d", req.ProtocolRunID),
		TaskQueue:             TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
	return c.ExecuteWorkflow(ctx, opts, ProtocolRunWorkflow, req)
}
