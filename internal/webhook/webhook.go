// Package webhook notifies external listeners about lifecycle events. The
// lifecycle controller calls Notify after every event it appends; delivery
// is best-effort and never blocks or fails a job.
package webhook

import (
	"context"
	"log/slog"
	"sync"
)

// Event is the payload delivered to a Notifier.
type Event struct {
	ProtocolRunID int64
	StepRunID     int64
	ProjectID     int64
	EventType     string
	Message       string
	Metadata      map[string]any
}

// Notifier is told about every lifecycle event. Implementations must not
// block the caller for long; Notify is called synchronously from the
// handler that appended the event.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LoggingNotifier logs every event at info level. It is always safe to
// register — the bundled default when no webhook destination is configured.
type LoggingNotifier struct {
	Logger *slog.Logger
}

func NewLoggingNotifier(logger *slog.Logger) *LoggingNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingNotifier{Logger: logger}
}

func (n *LoggingNotifier) Notify(_ context.Context, ev Event) {
	n.Logger.Info("lifecycle event",
		"event_type", ev.EventType,
		"protocol_run_id", ev.ProtocolRunID,
		"step_run_id", ev.StepRunID,
		"project_id", ev.ProjectID,
		"message", ev.Message,
	)
}

// MultiNotifier fans one event out to every wrapped Notifier. A panic in
// one notifier is recovered and logged so the rest still run.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewMultiNotifier(logger *slog.Logger, notifiers ...Notifier) *MultiNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiNotifier{notifiers: notifiers, logger: logger}
}

func (m *MultiNotifier) Notify(ctx context.Context, ev Event) {
	var wg sync.WaitGroup
	for _, n := range m.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("webhook notifier panicked", "recovered", r)
				}
			}()
			n.Notify(ctx, ev)
		}(n)
	}
	wg.Wait()
}
