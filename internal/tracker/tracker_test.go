package tracker

import (
	"sync"
	"testing"
)

func TestStartLogComplete(t *testing.T) {
	tr := New()
	exec := tr.StartExecution("exec-1", "run-1", 1, 1)
	if exec.Status != StatusRunning {
		t.Fatalf("expected running, got %s", exec.Status)
	}

	tr.Log("exec-1", "line one")
	tr.Log("exec-1", "line two")
	tr.Complete("exec-1", "")

	got := tr.Get("exec-1")
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if len(got.Logs()) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(got.Logs()))
	}
}

func TestLogRingDropsOldest(t *testing.T) {
	tr := New()
	tr.StartExecution("exec-1", "run-1", 0, 0)
	for i := 0; i < maxLogLines+10; i++ {
		tr.Log("exec-1", "line")
	}
	got := tr.Get("exec-1")
	if len(got.Logs()) != maxLogLines {
		t.Fatalf("expected log ring capped at %d, got %d", maxLogLines, len(got.Logs()))
	}
}

func TestCancelWinsOverLateComplete(t *testing.T) {
	tr := New()
	tr.StartExecution("exec-1", "run-1", 0, 0)
	tr.Cancel("exec-1")
	tr.Complete("exec-1", "") // arrives after cancel, must not override

	got := tr.Get("exec-1")
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled to win, got %s", got.Status)
	}
}

func TestCompleteWithErrorMarksFailed(t *testing.T) {
	tr := New()
	tr.StartExecution("exec-1", "run-1", 0, 0)
	tr.Complete("exec-1", "boom")

	got := tr.Get("exec-1")
	if got.Status != StatusFailed || got.Error != "boom" {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestSubscribeReceivesLogLines(t *testing.T) {
	tr := New()
	tr.StartExecution("exec-1", "run-1", 0, 0)

	var mu sync.Mutex
	var received []string
	unsubscribe := tr.Subscribe("exec-1", func(line LogLine) {
		mu.Lock()
		received = append(received, line.Text)
		mu.Unlock()
	})
	defer unsubscribe()

	tr.Log("exec-1", "hello")
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "hello" {
		t.Fatalf("expected subscriber to receive 'hello', got %v", received)
	}
}

func TestSubscriberPanicDoesNotCrashLog(t *testing.T) {
	tr := New()
	tr.StartExecution("exec-1", "run-1", 0, 0)
	tr.Subscribe("exec-1", func(LogLine) { panic("bad subscriber") })

	// Must not panic.
	tr.Log("exec-1", "still works")
}

func TestRetiresOldestCompletedPastLimit(t *testing.T) {
	tr := New()
	for i := 0; i < maxCompletedRetained+5; i++ {
		id := string(rune('a' + i%26))
		tr.StartExecution(id+string(rune(i)), "run", 0, 0)
	}
	ids := make([]string, 0)
	tr.mu.Lock()
	for id := range tr.byID {
		ids = append(ids, id)
	}
	tr.mu.Unlock()
	for _, id := range ids {
		tr.Complete(id, "")
	}

	if len(tr.List()) > maxCompletedRetained {
		t.Fatalf("expected retained executions capped at %d, got %d", maxCompletedRetained, len(tr.List()))
	}
}

func TestResetForTestsClearsSingleton(t *testing.T) {
	Default().StartExecution("leftover", "run", 0, 0)
	ResetForTests()
	if Default().Get("leftover") != nil {
		t.Fatal("expected ResetForTests to clear prior state")
	}
}

func TestLogOnUnknownIDIsNoop(t *testing.T) {
	tr := New()
	tr.Log("missing", "should not panic")
	tr.SetPID("missing", 123)
	tr.Complete("missing", "")
	tr.Cancel("missing")
	if tr.Get("missing") != nil {
		t.Fatal("expected nil for unknown execution")
	}
}
