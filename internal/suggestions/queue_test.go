package suggestions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_SendAndReceive(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "job-1"))
	require.NoError(t, q.Send(ctx, "job-2"))

	messages, err := q.Receive(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "job-1", messages[0].Body)
	assert.Equal(t, "job-2", messages[1].Body)
	assert.NotEmpty(t, messages[0].ID)

	assert.NoError(t, q.Delete(ctx, messages[0].ReceiptHandle))
}

func TestMemoryQueue_ReceiveRespectsMax(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "a"))
	require.NoError(t, q.Send(ctx, "b"))
	require.NoError(t, q.Send(ctx, "c"))

	messages, err := q.Receive(ctx, 2, 1)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)

	start := time.Now()
	messages, err := q.Receive(context.Background(), 1, 1)

	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestMemoryQueue_ReceiveCancelled(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx, 1, 0)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisQueue_SendAndReceive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "")
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "job-1"))
	require.NoError(t, q.Send(ctx, "job-2"))

	messages, err := q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "job-1", messages[0].Body, "FIFO order")

	messages, err = q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "job-2", messages[0].Body)
}

func TestEncodePayload_AssignsJobID(t *testing.T) {
	payload, body, err := encodePayload("", RefreshRequest{VisitID: "visit-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, payload.ID)

	var decoded queuePayload
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, payload.ID, decoded.ID)
	assert.Equal(t, "visit-1", decoded.Refresh.VisitID)
}

func TestEncodePayload_KeepsProvidedJobID(t *testing.T) {
	payload, _, err := encodePayload("job-42", RefreshRequest{VisitID: "visit-1"})
	require.NoError(t, err)
	assert.Equal(t, "job-42", payload.ID)
}
