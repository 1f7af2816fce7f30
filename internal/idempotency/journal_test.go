package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJournalPutGet(t *testing.T) {
	j := NewMemoryJournal(16)
	ctx := context.Background()

	require.NoError(t, j.Put(ctx, "k1", []byte("hello"), time.Hour))

	v, ok, err := j.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
}

func TestMemoryJournalExpiry(t *testing.T) {
	j := NewMemoryJournal(16)
	ctx := context.Background()

	require.NoError(t, j.Put(ctx, "k1", []byte("hello"), -time.Second))

	_, ok, err := j.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScopedKeyFormat(t *testing.T) {
	assert.Equal(t, "agent1:providerA:idem1", ScopedKey("agent1", "providerA", "idem1"))
}

func TestSQLiteJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenSQLiteJournal(dir + "/journal.db")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.Put(ctx, "k1", []byte("bytes"), time.Hour))

	v, ok, err := j.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("bytes"), v)
}

func TestRedisJournalRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	j := NewRedisJournal(client, "idem:")

	ctx := context.Background()
	require.NoError(t, j.Put(ctx, "k1", []byte("redis-value"), time.Hour))

	v, ok, err := j.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("redis-value"), v)
}

func TestTieredJournalPopulatesMemoryOnDurableHit(t *testing.T) {
	mem := NewMemoryJournal(16)
	dir := t.TempDir()
	durable, err := OpenSQLiteJournal(dir + "/journal.db")
	require.NoError(t, err)
	defer durable.Close()

	tiered := NewTiered(mem, durable)
	ctx := context.Background()

	require.NoError(t, durable.Put(ctx, "k1", []byte("from-durable"), time.Hour))

	v, ok, err := tiered.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("from-durable"), v)

	v2, ok2, err2 := mem.Get(ctx, "k1")
	require.NoError(t, err2)
	require.True(t, ok2)
	assert.Equal(t, []byte("from-durable"), v2)
}
