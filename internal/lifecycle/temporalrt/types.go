// Package temporalrt is an alternate runtime for driving protocol runs
// through Temporal workflows instead of the polling worker pool in
// internal/worker. It wraps the same five lifecycle.Controller operations
// as activities and sequences them in a workflow staged the way a protocol
// run's own DAG is staged: setup, plan, one execute/quality pass per step,
// then open-PR.
package temporalrt

// ProtocolRunRequest starts a ProtocolRunWorkflow.
type ProtocolRunRequest struct {
	ProjectID     int64
	ProtocolRunID int64
	// AutoQA runs RunQuality immediately after each ExecuteStep, matching
	// General.AutoQAAfterExec's polling-worker behavior.
	AutoQA bool
}

// StepOutcome records one step's execute/QA result for the workflow reply.
type StepOutcome struct {
	StepRunID int64
	Executed  bool
	QARun     bool
	Err       string
}

// ProtocolRunResult is returned by ProtocolRunWorkflow.
type ProtocolRunResult struct {
	Steps     []StepOutcome
	PROpened  bool
	Escalated bool
}
