// Package tracker maintains an in-process registry of in-flight engine
// executions, used to stream live logs to operators and to support
// cooperative cancellation at the next safe boundary (spec.md §5.3).
//
// State is process-wide and does not survive a restart; durable state lives
// in internal/store's CodexRun rows. A Tracker only augments that durable
// record with transient, high-frequency data (log lines, cancellation
// signals) that would be wasteful to persist row-by-row.
package tracker

import (
	"sync"
	"time"
)

// maxLogLines bounds the per-execution log ring; once full, the oldest
// lines are silently dropped rather than growing without bound.
const maxLogLines = 10000

// maxCompletedRetained is how many finished executions stay queryable
// before being evicted, oldest first.
const maxCompletedRetained = 100

// Status values an Execution can hold.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// LogLine is one timestamped line of engine output.
type LogLine struct {
	At   time.Time
	Text string
}

// Execution is the live state of one engine invocation.
type Execution struct {
	ID            string
	CodexRunID    string
	StepRunID     int64
	ProtocolRunID int64
	Status        string
	PID           int
	StartedAt     time.Time
	EndedAt       time.Time
	Error         string

	mu          sync.Mutex
	logs        []LogLine
	logsDropped int
	subscribers map[int]func(LogLine)
	nextSubID   int
	cancelled   bool
}

func newExecution(id, codexRunID string, protocolRunID, stepRunID int64) *Execution {
	return &Execution{
		ID:            id,
		CodexRunID:    codexRunID,
		ProtocolRunID: protocolRunID,
		StepRunID:     stepRunID,
		Status:        StatusRunning,
		StartedAt:     time.Now().UTC(),
		subscribers:   make(map[int]func(LogLine)),
	}
}

// snapshot returns a copy safe to hand to callers outside the lock.
func (e *Execution) snapshot() *Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &Execution{
		ID:            e.ID,
		CodexRunID:    e.CodexRunID,
		StepRunID:     e.StepRunID,
		ProtocolRunID: e.ProtocolRunID,
		Status:        e.Status,
		PID:           e.PID,
		StartedAt:     e.StartedAt,
		EndedAt:       e.EndedAt,
		Error:         e.Error,
		logs:          append([]LogLine(nil), e.logs...),
		logsDropped:   e.logsDropped,
		cancelled:     e.cancelled,
	}
}

// Logs returns a copy of the currently retained log lines, oldest first.
func (e *Execution) Logs() []LogLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]LogLine(nil), e.logs...)
}

// Cancelled reports whether Cancel has been called on this execution. Callers
// can poll it at a safe boundary; the engine adapters in this module do not
// call it.
func (e *Execution) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// Tracker is a process-wide registry of in-flight and recently-completed executions.
type Tracker struct {
	mu         sync.Mutex
	byID       map[string]*Execution
	completed  []string // ids, oldest first, for eviction ordering
}

var (
	defaultTracker     *Tracker
	defaultTrackerOnce sync.Once
)

// Default returns the process-wide tracker singleton.
func Default() *Tracker {
	defaultTrackerOnce.Do(func() {
		defaultTracker = New()
	})
	return defaultTracker
}

// ResetForTests discards all tracked state. Tests that exercise the
// singleton must call this in a cleanup to avoid cross-test leakage.
func ResetForTests() {
	defaultTrackerOnce = sync.Once{}
	defaultTracker = New()
}

// New constructs a standalone tracker, primarily for tests that don't want
// the process-wide singleton.
func New() *Tracker {
	return &Tracker{byID: make(map[string]*Execution)}
}

// StartExecution registers a new in-flight execution and returns it.
func (t *Tracker) StartExecution(id, codexRunID string, protocolRunID, stepRunID int64) *Execution {
	exec := newExecution(id, codexRunID, protocolRunID, stepRunID)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = exec
	return exec
}

// Log appends a line to an execution's log ring, dropping the oldest line
// once the ring is full. A write to an unknown id is silently ignored: a
// slow consumer racing a completion report should never crash the caller.
func (t *Tracker) Log(id, text string) {
	exec := t.get(id)
	if exec == nil {
		return
	}
	line := LogLine{At: time.Now().UTC(), Text: text}

	exec.mu.Lock()
	if len(exec.logs) >= maxLogLines {
		exec.logs = exec.logs[1:]
		exec.logsDropped++
	}
	exec.logs = append(exec.logs, line)
	subs := make([]func(LogLine), 0, len(exec.subscribers))
	for _, fn := range exec.subscribers {
		subs = append(subs, fn)
	}
	exec.mu.Unlock()

	for _, fn := range subs {
		notifySubscriber(fn, line)
	}
}

// notifySubscriber isolates a panicking or misbehaving callback so it
// cannot take down the caller of Log.
func notifySubscriber(fn func(LogLine), line LogLine) {
	defer func() { recover() }()
	fn(line)
}

// SetPID records the OS process id backing a CLI-engine execution, used by
// cancellation to send a signal.
func (t *Tracker) SetPID(id string, pid int) {
	exec := t.get(id)
	if exec == nil {
		return
	}
	exec.mu.Lock()
	exec.PID = pid
	exec.mu.Unlock()
}

// Complete marks an execution finished successfully or with an error,
// determined by errMsg being empty. Complete is a no-op if the execution
// was already cancelled: cancellation is terminal and wins any race with a
// later completion report arriving from a still-running subprocess.
func (t *Tracker) Complete(id, errMsg string) {
	exec := t.get(id)
	if exec == nil {
		return
	}
	exec.mu.Lock()
	if exec.Status == StatusCancelled {
		exec.mu.Unlock()
		return
	}
	if errMsg != "" {
		exec.Status = StatusFailed
		exec.Error = errMsg
	} else {
		exec.Status = StatusCompleted
	}
	exec.EndedAt = time.Now().UTC()
	exec.mu.Unlock()

	t.retire(id)
}

// Cancel marks an execution cancelled. Cancellation always wins: once
// called, a subsequent Complete for the same id is ignored.
func (t *Tracker) Cancel(id string) {
	exec := t.get(id)
	if exec == nil {
		return
	}
	exec.mu.Lock()
	exec.cancelled = true
	exec.Status = StatusCancelled
	exec.EndedAt = time.Now().UTC()
	exec.mu.Unlock()

	t.retire(id)
}

// Subscribe registers fn to be called with every future log line appended
// to id. Returns an unsubscribe function. A subscribe on an unknown id
// returns a no-op unsubscribe.
func (t *Tracker) Subscribe(id string, fn func(LogLine)) (unsubscribe func()) {
	exec := t.get(id)
	if exec == nil {
		return func() {}
	}
	exec.mu.Lock()
	subID := exec.nextSubID
	exec.nextSubID++
	exec.subscribers[subID] = fn
	exec.mu.Unlock()

	return func() {
		exec.mu.Lock()
		delete(exec.subscribers, subID)
		exec.mu.Unlock()
	}
}

// Get returns a snapshot of an execution's state, or nil if unknown.
func (t *Tracker) Get(id string) *Execution {
	exec := t.get(id)
	if exec == nil {
		return nil
	}
	return exec.snapshot()
}

// ListActive returns snapshots of all currently running executions.
func (t *Tracker) ListActive() []*Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Execution
	for _, exec := range t.byID {
		if exec.snapshotStatus() == StatusRunning {
			out = append(out, exec.snapshot())
		}
	}
	return out
}

// List returns snapshots of every tracked execution, active and retained-completed.
func (t *Tracker) List() []*Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Execution, 0, len(t.byID))
	for _, exec := range t.byID {
		out = append(out, exec.snapshot())
	}
	return out
}

func (e *Execution) snapshotStatus() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Status
}

func (t *Tracker) get(id string) *Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

// retire appends id to the completed list and evicts the oldest entries
// past maxCompletedRetained. Active executions are never evicted.
func (t *Tracker) retire(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = append(t.completed, id)
	for len(t.completed) > maxCompletedRetained {
		evictID := t.completed[0]
		t.completed = t.completed[1:]
		delete(t.byID, evictID)
	}
}
