package jobs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func exerciseQueue(t *testing.T, q Queue) {
	ctx := context.Background()
	_, err := q.Enqueue(ctx, domain.JobRequest{RunAt: now.Add(48 * time.Hour), Type: TypeLeadFollowUp})
	require.NoError(t, err)
	late, err := q.Enqueue(ctx, domain.JobRequest{RunAt: now.Add(-time.Minute), Type: TypeAppointmentReminder, Payload: map[string]any{"slot": "a"}})
	require.NoError(t, err)
	early, err := q.Enqueue(ctx, domain.JobRequest{RunAt: now.Add(-time.Hour), Type: TypeAppointmentReminder})
	require.NoError(t, err)

	due, err := q.Due(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early, due[0].ID)
	assert.Equal(t, late, due[1].ID)
	assert.Equal(t, "a", due[1].Payload["slot"])

	limited, err := q.Due(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = q.Enqueue(ctx, domain.JobRequest{RunAt: now})
	assert.Error(t, err)
}

func TestMemoryQueue(t *testing.T) {
	exerciseQueue(t, NewMemory())
}

func TestMemoryQueueFailure(t *testing.T) {
	q := NewMemory()
	boom := errors.New("scheduler down")
	q.Fail(boom)
	_, err := q.Enqueue(context.Background(), domain.JobRequest{Type: TypeLeadFollowUp})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, q.All())
}

func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	exerciseQueue(t, NewRedis(client, "test-jobs-"+uuid.NewString()))
}
