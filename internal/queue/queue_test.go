package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/feast-seating/internal/mail"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := NewClient(ctx, addr, "", 15, nil)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Del(ctx, QueueEmails, QueueDLQ).Err())
	return NewQueue(rdb, nil)
}

func TestQueueSendDequeue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	c := mail.Confirmation{To: "ada@example.com", Name: "Ada", TableNumber: 3, Tent: 2, SeatNumber: 4, EventName: "Love Feast"}

	id, err := q.Send(ctx, c)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)

	got, err := job.Confirmation()
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestQueueRetryMovesToDLQ(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Send(ctx, mail.Confirmation{To: "ada@example.com", Name: "Ada", TableNumber: 1, SeatNumber: 1})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	for attempt := 1; attempt < MaxRetries; attempt++ {
		require.NoError(t, q.Retry(ctx, job))
		job, err = q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, attempt, job.Attempt)
	}
	require.NoError(t, q.Retry(ctx, job))

	pending, err := q.client.LLen(ctx, QueueEmails).Result()
	require.NoError(t, err)
	assert.Zero(t, pending)
	dead, err := q.client.LLen(ctx, QueueDLQ).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, dead)
}

func TestJobConfirmationRejectsUnknownType(t *testing.T) {
	job := &Job{ID: "1", Type: "webhook", Payload: json.RawMessage(`{}`)}
	_, err := job.Confirmation()
	assert.Error(t, err)
}
