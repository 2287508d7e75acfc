package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Taskly/internal/domain/outbox"
)

func TestOutboxRepo_PickAndMark(t *testing.T) {
	ctx := context.Background()
	r := NewOutboxRepo()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Enqueue(ctx, "a", outbox.KindAuthEvent, []byte("1")))
	require.NoError(t, r.Enqueue(ctx, "b", outbox.KindVerificationEmail, []byte("2")))
	require.NoError(t, r.Enqueue(ctx, "a", outbox.KindAuthEvent, []byte("dup")))

	batch, err := r.PickBatch(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "a", batch[0].IdempotencyKey)
	assert.Equal(t, []byte("1"), batch[0].Data)

	batch, err = r.PickBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "b", batch[0].IdempotencyKey)

	require.NoError(t, r.MarkSuccess(ctx, []string{"a"}))

	// "b" is in progress and not yet stale
	batch, err = r.PickBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, batch)

	now = now.Add(2 * time.Minute)
	batch, err = r.PickBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "b", batch[0].IdempotencyKey)

	_, err = r.PickBatch(ctx, 0, time.Minute)
	require.Error(t, err)
}

func TestOutboxRepo_PurgeDelivered(t *testing.T) {
	ctx := context.Background()
	r := NewOutboxRepo()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for _, k := range []string{"old", "fresh", "pending"} {
		require.NoError(t, r.Enqueue(ctx, k, outbox.KindAuthEvent, []byte(k)))
	}
	require.NoError(t, r.MarkSuccess(ctx, []string{"old"}))
	now = now.Add(time.Hour)
	require.NoError(t, r.MarkSuccess(ctx, []string{"fresh"}))
	now = now.Add(10 * time.Minute)

	n, err := r.PurgeDelivered(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var keys []string
	for _, m := range r.Messages() {
		keys = append(keys, m.IdempotencyKey)
	}
	assert.Equal(t, []string{"fresh", "pending"}, keys)
}
