package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Redis-backed durable Queue. Job bodies live in hashes
// (queue:job:<id>), readiness is tracked with a per-queue sorted set scored
// by next-run-at, and in-flight claims are tracked in a global sorted set
// scored by visibility deadline so ReapExpired can find them without
// scanning every job.
type RedisQueue struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisQueue constructs a RedisQueue against an already-configured client.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, prefix: "protoctl:queue:"}
}

func (q *RedisQueue) keyJob(id string) string     { return q.prefix + "job:" + id }
func (q *RedisQueue) keyReady(name string) string { return q.prefix + "ready:" + name }
func (q *RedisQueue) keyProcessing() string       { return q.prefix + "processing" }
func (q *RedisQueue) keyIndex() string            { return q.prefix + "index" }

func (q *RedisQueue) Enqueue(ctx context.Context, in EnqueueInput) (*Job, error) {
	job := newJob(in)
	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}
	pipe := q.rdb.TxPipeline()
	pipe.SAdd(ctx, q.keyIndex(), job.JobID)
	pipe.ZAdd(ctx, q.keyReady(job.Queue), redis.Z{Score: float64(job.NextRunAt.UnixNano()), Member: job.JobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue: enqueue %s: %w", job.JobID, err)
	}
	return job, nil
}

// Claim hands out the earliest ready job of one queue. An empty queueName
// claims from the "default" queue only; other queues are not searched.
func (q *RedisQueue) Claim(ctx context.Context, queueName string, visibility time.Duration) (*Job, error) {
	if queueName == "" {
		queueName = "default"
	}
	now := time.Now().UTC()
	ids, err := q.rdb.ZRangeByScore(ctx, q.keyReady(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixNano()), Offset: 0, Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrEmpty
	}
	jobID := ids[0]

	removed, err := q.rdb.ZRem(ctx, q.keyReady(queueName), jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: claim remove from ready: %w", err)
	}
	if removed == 0 {
		// Another worker claimed it between the ZRangeByScore and ZRem.
		return nil, ErrEmpty
	}

	job, err := q.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.Status = StatusStarted
	job.Attempts++
	started := now
	job.StartedAt = &started
	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}
	deadline := now.Add(visibility)
	if err := q.rdb.ZAdd(ctx, q.keyProcessing(), redis.Z{Score: float64(deadline.UnixNano()), Member: jobID}).Err(); err != nil {
		return nil, fmt.Errorf("queue: claim track deadline: %w", err)
	}
	return job, nil
}

func (q *RedisQueue) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	job, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusDone
	job.Result = result
	ended := time.Now().UTC()
	job.EndedAt = &ended
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	return q.rdb.ZRem(ctx, q.keyProcessing(), jobID).Err()
}

func (q *RedisQueue) Fail(ctx context.Context, jobID string, errMsg string) error {
	job, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusFailed
	job.Error = errMsg
	ended := time.Now().UTC()
	job.EndedAt = &ended
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	return q.rdb.ZRem(ctx, q.keyProcessing(), jobID).Err()
}

func (q *RedisQueue) Requeue(ctx context.Context, jobID string, delay time.Duration) error {
	job, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusQueued
	job.NextRunAt = time.Now().UTC().Add(delay)
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.keyProcessing(), jobID)
	pipe.ZAdd(ctx, q.keyReady(job.Queue), redis.Z{Score: float64(job.NextRunAt.UnixNano()), Member: jobID})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("queue: requeue %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.rdb.Get(ctx, q.keyJob(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get %s: %w", jobID, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("queue: decode %s: %w", jobID, err)
	}
	return &job, nil
}

func (q *RedisQueue) List(ctx context.Context, status string) ([]*Job, error) {
	ids, err := q.rdb.SMembers(ctx, q.keyIndex()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	var out []*Job
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	jobs, err := q.List(ctx, "")
	if err != nil {
		return nil, err
	}
	counts := map[string]int{StatusQueued: 0, StatusStarted: 0, StatusDone: 0, StatusFailed: 0}
	for _, j := range jobs {
		counts[j.Status]++
	}
	return &Stats{Backend: "redis", Queues: counts}, nil
}

// ReapExpired moves any job whose visibility deadline has elapsed back onto
// its ready set. Intended to run on the worker heartbeat cadence.
func (q *RedisQueue) ReapExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	ids, err := q.rdb.ZRangeByScore(ctx, q.keyProcessing(), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixNano()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: reap: %w", err)
	}
	n := 0
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if err == ErrNotFound {
			q.rdb.ZRem(ctx, q.keyProcessing(), id)
			continue
		}
		if err != nil {
			return n, err
		}
		if job.Status != StatusStarted {
			q.rdb.ZRem(ctx, q.keyProcessing(), id)
			continue
		}
		if err := q.Requeue(ctx, id, 0); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (q *RedisQueue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: encode %s: %w", job.JobID, err)
	}
	if err := q.rdb.Set(ctx, q.keyJob(job.JobID), data, 0).Err(); err != nil {
		return fmt.Errorf("queue: save %s: %w", job.JobID, err)
	}
	return nil
}
