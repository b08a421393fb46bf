package webhook

import (
	"context"
	"sync/atomic"
	"testing"
)

type countingNotifier struct {
	calls atomic.Int32
}

func (c *countingNotifier) Notify(ctx context.Context, ev Event) {
	c.calls.Add(1)
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(ctx context.Context, ev Event) {
	panic("boom")
}

func TestMultiNotifierFansOutToAll(t *testing.T) {
	a := &countingNotifier{}
	b := &countingNotifier{}
	m := NewMultiNotifier(nil, a, b)
	m.Notify(context.Background(), Event{EventType: "step_completed"})
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("expected both notifiers to fire once, got %d and %d", a.calls.Load(), b.calls.Load())
	}
}

func TestMultiNotifierSurvivesPanickingNotifier(t *testing.T) {
	a := &countingNotifier{}
	m := NewMultiNotifier(nil, panickingNotifier{}, a)
	m.Notify(context.Background(), Event{EventType: "step_completed"})
	if a.calls.Load() != 1 {
		t.Fatalf("expected surviving notifier to still fire, got %d", a.calls.Load())
	}
}

func TestLoggingNotifierDoesNotPanic(t *testing.T) {
	n := NewLoggingNotifier(nil)
	n.Notify(context.Background(), Event{EventType: "qa_passed", ProtocolRunID: 1})
}
