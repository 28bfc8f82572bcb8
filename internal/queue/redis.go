// Package queue is a Redis Streams job queue with a consumer group and a
// dead-letter stream.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Job asks a worker to digest one document.
type Job struct {
	RunID      string `json:"run_id"`
	DocumentID string `json:"document_id"`
	FilePath   string `json:"file_path"`
	// IdempotencyKey, when set, makes repeated submissions a no-op once one
	// of them has completed.
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Validate reports missing required fields.
func (j Job) Validate() error {
	switch {
	case j.RunID == "":
		return errors.New("job: run_id required")
	case j.FilePath == "":
		return errors.New("job: file_path required")
	}
	return nil
}

// RedisQueue implements the queue on Redis Streams + consumer groups.
type RedisQueue struct {
	client *redis.Client
	Stream string
	Group  string
	// keys
	CancelKey   string
	DLQStream   string
	IdemDoneKey string
}

// NewRedisQueue ensures the stream and group exist on client.
func NewRedisQueue(ctx context.Context, client *redis.Client, stream, group string) (*RedisQueue, error) {
	q := &RedisQueue{
		client:      client,
		Stream:      stream,
		Group:       group,
		CancelKey:   stream + ":cancelled",
		DLQStream:   stream + ":dlq",
		IdemDoneKey: "idem:done:",
	}
	// MKSTREAM creates the stream if missing
	if err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("xgroup create: %w", err)
	}
	return q, nil
}

func isBusyGroupErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Enqueue adds a job to the stream as a single-field entry {data: <json>}.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		Values: map[string]any{"data": string(payload)},
	}).Err()
}

// Dequeue blocks up to timeout for one message. An empty msgID means no
// message arrived. A message that does not decode is returned with its raw
// payload and an error so the caller can dead-letter it.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (msgID string, job Job, raw []byte, err error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.Group,
		Consumer: consumer,
		Streams:  []string{q.Stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", Job{}, nil, nil
		}
		return "", Job{}, nil, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return "", Job{}, nil, nil
	}
	msg := res[0].Messages[0]
	raw = messageData(msg.Values)
	job, err = decodeJob(raw)
	return msg.ID, job, raw, err
}

func messageData(values map[string]interface{}) []byte {
	switch t := values["data"].(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	}
	return nil
}

func decodeJob(raw []byte) (Job, error) {
	if len(raw) == 0 {
		return Job{}, errors.New("job: empty payload")
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("job: decode: %w", err)
	}
	return job, job.Validate()
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
	if msgID == "" {
		return nil
	}
	return q.client.XAck(ctx, q.Stream, q.Group, msgID).Err()
}

// Cancel marks a run as cancelled. Workers check this before processing.
func (q *RedisQueue) Cancel(ctx context.Context, runID string) error {
	return q.client.SAdd(ctx, q.CancelKey, runID).Err()
}

// IsCancelled returns true if run is cancelled.
func (q *RedisQueue) IsCancelled(ctx context.Context, runID string) (bool, error) {
	return q.client.SIsMember(ctx, q.CancelKey, runID).Result()
}

// AddDLQ pushes a failed job to the DLQ stream with reason.
func (q *RedisQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.DLQStream,
		Values: map[string]any{"data": string(payload), "reason": reason},
	}).Err()
}

// IsIdemDone returns true if idempotency key already marked done.
func (q *RedisQueue) IsIdemDone(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	exists, err := q.client.Exists(ctx, q.IdemDoneKey+key).Result()
	return exists == 1, err
}

// MarkIdemDone marks idempotency key as done with TTL.
func (q *RedisQueue) MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	return q.client.Set(ctx, q.IdemDoneKey+key, 1, ttl).Err()
}

// Depths returns stream and dlq lengths for metrics.
func (q *RedisQueue) Depths(ctx context.Context) (stream, dlq int64, err error) {
	pipe := q.client.Pipeline()
	xlen := pipe.XLen(ctx, q.Stream)
	dxlen := pipe.XLen(ctx, q.DLQStream)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return xlen.Val(), dxlen.Val(), nil
}
