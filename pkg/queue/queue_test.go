package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueue(t *testing.T) (*miniredis.Miniredis, *Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewQueue(client, nil)
}

func TestEnqueueDequeue(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	videoID := uuid.New()
	job, err := NewPollJob(JobTypeCheckLiveState, videoID)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobTypeCheckLiveState, got.Type)

	var payload PollPayload
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, videoID, payload.VideoID)
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	_, q := setupQueue(t)

	got, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEnqueueInPromotesWhenDue(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	job, err := NewPollJob(JobTypeCheckInput, uuid.New())
	require.NoError(t, err)
	require.NoError(t, q.EnqueueIn(ctx, job, time.Minute))

	// Not due yet.
	n, err := q.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Due once the clock passes the run-at.
	n, err = q.PromoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
}

func TestEnqueueInZeroDelayIsImmediate(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	job, err := NewPollJob(JobTypeCheckJobStatus, uuid.New())
	require.NoError(t, err)
	require.NoError(t, q.EnqueueIn(ctx, job, 0))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
}

func TestRetryBacksOffThenDeadLetters(t *testing.T) {
	mr, q := setupQueue(t)
	ctx := context.Background()

	job, err := NewPollJob(JobTypeCheckLiveState, uuid.New())
	require.NoError(t, err)

	for i := 1; i < MaxRetries; i++ {
		require.NoError(t, q.Retry(ctx, job))
		assert.Equal(t, i, job.Attempt)
	}
	// Each retry landed in the scheduled set, none in the DLQ yet.
	assert.False(t, mr.Exists(QueueDLQ))

	require.NoError(t, q.Retry(ctx, job))
	assert.Equal(t, MaxRetries, job.Attempt)
	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	assert.Len(t, dlq, 1)
}

func TestRescheduleCountsPolls(t *testing.T) {
	_, q := setupQueue(t)
	ctx := context.Background()

	job, err := NewPollJob(JobTypeCheckInput, uuid.New())
	require.NoError(t, err)
	require.NoError(t, q.Reschedule(ctx, job, time.Second))
	assert.Equal(t, 1, job.Polls)

	n, err := q.PromoteDue(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Polls)
}
