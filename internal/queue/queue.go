// Package queue is the Redis-backed scan job queue connecting the HTTP
// surfaces to the scan workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sentinelai/sentinel/internal/domain"
)

const scanQueueKey = "sentinel:scan_jobs"

// Queue enqueues and leases scan jobs.
type Queue struct {
	client *redis.Client
}

// New connects to Redis and verifies connectivity.
func New(addr, password string, db int) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &Queue{client: client}, nil
}

// Close releases the client.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Ping checks Redis connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue pushes one scan job.
func (q *Queue) Enqueue(ctx context.Context, job domain.ScanJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.LPush(ctx, scanQueueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. Returns nil when the wait
// expires without work.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.ScanJob, error) {
	res, err := q.client.BRPop(ctx, timeout, scanQueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}

	var job domain.ScanJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, scanQueueKey).Result()
}
