package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process, non-durable Queue for local/dev use when
// Redis is unavailable. State is lost on restart.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	// deadlines tracks the visibility deadline for started jobs, separate
	// from Job so a reap pass can find expired claims without scanning payloads.
	deadlines map[string]time.Time
}

// NewMemoryQueue constructs an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:      make(map[string]*Job),
		deadlines: make(map[string]time.Time),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, in EnqueueInput) (*Job, error) {
	job := newJob(in)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.JobID] = job
	return cloneJob(job), nil
}

func (q *MemoryQueue) Claim(_ context.Context, queueName string, visibility time.Duration) (*Job, error) {
	now := time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()

	var candidates []*Job
	for _, j := range q.jobs {
		if j.Status != StatusQueued {
			continue
		}
		if j.NextRunAt.After(now) {
			continue
		}
		if queueName != "" && j.Queue != queueName {
			continue
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return nil, ErrEmpty
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].NextRunAt.Before(candidates[j].NextRunAt) })
	job := candidates[0]
	job.Status = StatusStarted
	job.Attempts++
	started := now
	job.StartedAt = &started
	q.deadlines[job.JobID] = now.Add(visibility)
	return cloneJob(job), nil
}

func (q *MemoryQueue) Complete(_ context.Context, jobID string, result json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = StatusDone
	job.Result = result
	ended := time.Now().UTC()
	job.EndedAt = &ended
	delete(q.deadlines, jobID)
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, jobID string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = StatusFailed
	job.Error = errMsg
	ended := time.Now().UTC()
	job.EndedAt = &ended
	delete(q.deadlines, jobID)
	return nil
}

func (q *MemoryQueue) Requeue(_ context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = StatusQueued
	job.NextRunAt = time.Now().UTC().Add(delay)
	delete(q.deadlines, jobID)
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (q *MemoryQueue) List(_ context.Context, status string) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Job
	for _, j := range q.jobs {
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *MemoryQueue) Stats(_ context.Context) (*Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := map[string]int{StatusQueued: 0, StatusStarted: 0, StatusDone: 0, StatusFailed: 0}
	for _, j := range q.jobs {
		counts[j.Status]++
	}
	return &Stats{Backend: "memory", Queues: counts}, nil
}

// ReapExpired requeues any started job whose claim deadline has passed.
// Workers are expected to call this periodically (spec.md §5's heartbeat
// sweep); Claim does not call it.
func (q *MemoryQueue) ReapExpired(_ context.Context) (int, error) {
	now := time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for jobID, deadline := range q.deadlines {
		if deadline.After(now) {
			continue
		}
		job, ok := q.jobs[jobID]
		if !ok || job.Status != StatusStarted {
			delete(q.deadlines, jobID)
			continue
		}
		job.Status = StatusQueued
		job.NextRunAt = now
		delete(q.deadlines, jobID)
		n++
	}
	return n, nil
}

func cloneJob(j *Job) *Job {
	cp := *j
	return &cp
}
