// ABOUTME: This file tests the Redis queue backend against an embedded miniredis
// ABOUTME: Verifies FIFO order, dedup, and atomic dead-letter moves on real commands
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-courier/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newRedisPair(t *testing.T) (Store, DeadLetterStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, testLogger()), NewRedisDeadLetterStore(client, testLogger())
}

func TestRedisStore_EnqueuePeekOrder(t *testing.T) {
	store, _ := newRedisPair(t)
	ctx := context.Background()

	for _, ref := range []string{"a", "b", "c"} {
		added, err := store.Enqueue(ctx, entry(ref))
		require.NoError(t, err)
		assert.True(t, added)
	}

	entries, err := store.Peek(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ItemRef)
	assert.Equal(t, "b", entries[1].ItemRef)

	depth, err := store.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestRedisStore_EnqueueDeduplicates(t *testing.T) {
	store, _ := newRedisPair(t)
	ctx := context.Background()

	added, err := store.Enqueue(ctx, entry("a"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.Enqueue(ctx, entry("a"))
	require.NoError(t, err)
	assert.False(t, added)

	depth, err := store.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestRedisStore_EnqueueRepairsOrphanedEntry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStore(client, testLogger())
	ctx := context.Background()

	// An entry in the item hash with no ref in the order list is what an
	// interrupted enqueue leaves behind. Re-enqueueing the same ref must make
	// it visible to Peek again instead of losing it to the dedup gate.
	data, err := json.Marshal(entry("a"))
	require.NoError(t, err)
	require.NoError(t, client.HSet(ctx, redisQueueItems, "a", data).Err())

	depth, err := store.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, depth)

	added, err := store.Enqueue(ctx, entry("a"))
	require.NoError(t, err)
	assert.False(t, added, "the hash entry still wins the dedup gate")

	entries, err := store.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ItemRef)
}

func TestRedisStore_MarkAttemptRoundTrip(t *testing.T) {
	store, _ := newRedisPair(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, entry("a"))
	require.NoError(t, err)

	due := time.Now().Add(30 * time.Second).UTC().Truncate(time.Second)
	require.NoError(t, store.MarkAttempt(ctx, "a", 3, due, "connection reset"))

	entries, err := store.Peek(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.True(t, entries[0].NextAttemptAt.Equal(due))

	assert.ErrorIs(t, store.MarkAttempt(ctx, "missing", 1, due, ""), ErrNotFound)
}

func TestRedisStore_RemoveAndReEnqueue(t *testing.T) {
	store, _ := newRedisPair(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, entry("a"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "a"))
	assert.ErrorIs(t, store.Remove(ctx, "a"), ErrNotFound)

	added, err := store.Enqueue(ctx, entry("a"))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestRedisStore_MoveToDeadLetter(t *testing.T) {
	store, letters := newRedisPair(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, entry("a"))
	require.NoError(t, err)

	err = store.MoveToDeadLetter(ctx, "a", &models.DeadLetter{
		EntityType:   models.EntityDelivery,
		EntityRef:    "a",
		ErrorCode:    "exhausted",
		ErrorPayload: "timeout",
		Attempts:     6,
	})
	require.NoError(t, err)

	depth, err := store.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	size, err := letters.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestRedisDeadLetterStore_RecordUpserts(t *testing.T) {
	_, letters := newRedisPair(t)
	ctx := context.Background()

	letter := &models.DeadLetter{
		EntityType:   models.EntityArticle,
		EntityRef:    "https://example.org/a",
		ErrorCode:    "fatal",
		ErrorPayload: "status 404",
		Attempts:     1,
	}
	require.NoError(t, letters.Record(ctx, letter))
	require.NoError(t, letters.Record(ctx, letter))

	size, err := letters.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	stored, err := letters.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].Attempts)

	require.NoError(t, letters.Remove(ctx, models.EntityArticle, "https://example.org/a"))
	assert.ErrorIs(t, letters.Remove(ctx, models.EntityArticle, "https://example.org/a"), ErrNotFound)
}
