package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueReady is the Redis list of jobs ready to run now.
	QueueReady = "reconcile:ready"
	// QueueScheduled is the Redis sorted set of delayed jobs, scored by run-at (unix ms).
	QueueScheduled = "reconcile:scheduled"
	// QueueDLQ is the dead-letter queue for jobs that kept failing.
	QueueDLQ = "reconcile:dlq"
	// MaxRetries is the number of error retries before a job moves to the DLQ.
	MaxRetries = 5
	// RetryBackoff is the delay before an errored job runs again.
	RetryBackoff = 10 * time.Second
	// promoteBatch caps how many due jobs one promotion pass moves.
	promoteBatch = 128
)

// JobType identifies the reconciliation job kind.
type JobType string

const (
	JobTypeCheckLiveState     JobType = "check_live_state"
	JobTypeCheckJobStatus     JobType = "check_job_status"
	JobTypeCheckInput         JobType = "check_input"
	JobTypeFinalizeLiveDelete JobType = "finalize_live_delete"
)

// PollPayload is the payload for entity poll jobs.
type PollPayload struct {
	VideoID uuid.UUID `json:"video_id"`
}

// Job is the job envelope. Attempt counts error retries; Polls counts how
// many times a poll chain rescheduled itself, so chains can be bounded.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	Polls     int             `json:"polls"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewPollJob builds a poll job for a video entity.
func NewPollJob(jobType JobType, videoID uuid.UUID) (*Job, error) {
	body, err := json.Marshal(PollPayload{VideoID: videoID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}

// Queue is a Redis-backed job queue with delayed delivery.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// Enqueue pushes a job onto the ready list for immediate delivery.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueReady, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return nil
}

// EnqueueIn schedules a job to become ready after delay.
func (q *Queue) EnqueueIn(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	runAt := time.Now().Add(delay)
	err = q.client.ZAdd(ctx, QueueScheduled, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: raw,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	q.logger.Debug("scheduled job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Duration("delay", delay))
	return nil
}

// SchedulePoll enqueues a poll job for videoID after delay.
func (q *Queue) SchedulePoll(ctx context.Context, jobType JobType, videoID uuid.UUID, delay time.Duration) error {
	job, err := NewPollJob(jobType, videoID)
	if err != nil {
		return err
	}
	return q.EnqueueIn(ctx, job, delay)
}

// PromoteDue moves jobs whose run-at has passed from the scheduled set to
// the ready list. Promotion is at-least-once; handlers must tolerate
// duplicate delivery.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, QueueScheduled, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}
	for _, raw := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, QueueScheduled, raw)
		pipe.RPush(ctx, QueueReady, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("promote: %w", err)
		}
	}
	return len(due), nil
}

// Dequeue blocks up to timeout for a ready job. Returns nil when none arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueReady).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-schedules an errored job with backoff and an incremented attempt.
// After MaxRetries the job moves to the DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		raw, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.EnqueueIn(ctx, job, RetryBackoff); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Reschedule re-queues a poll job after delay with its chain counter bumped.
// Callers bound chain length against their configured maximum.
func (q *Queue) Reschedule(ctx context.Context, job *Job, delay time.Duration) error {
	job.Polls++
	return q.EnqueueIn(ctx, job, delay)
}
