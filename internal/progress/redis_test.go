package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func TestRedisStore_LogsAndCounts(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	scanID := uuid.New()

	require.NoError(t, store.AppendLog(ctx, scanID, "first"))
	require.NoError(t, store.AppendLog(ctx, scanID, "second"))
	require.NoError(t, store.IncrCount(ctx, scanID, "networks", 2))
	require.NoError(t, store.IncrCount(ctx, scanID, "networks", 1))
	require.NoError(t, store.IncrCount(ctx, scanID, "subnets", 4))

	lines, err := store.Logs(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, lines)

	counts, err := store.Counts(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"networks": 3, "subnets": 4}, counts)

	k := keysFor(scanID)
	assert.Equal(t, time.Hour, mr.TTL(k.logs))
	assert.Equal(t, time.Hour, mr.TTL(k.stats))
}

func TestRedisStore_CompleteBatch_ClaimsOnLastBatch(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	scanID := uuid.New()

	require.NoError(t, store.InitBatches(ctx, scanID, 3))

	r1, err := store.CompleteBatch(ctx, scanID, 0)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Done: 1, Total: 3}, r1)

	r2, err := store.CompleteBatch(ctx, scanID, 1)
	require.NoError(t, err)
	assert.False(t, r2.Claimed)

	r3, err := store.CompleteBatch(ctx, scanID, 2)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Done: 3, Total: 3, Claimed: true}, r3)

	// A redelivered batch is recorded once and cannot claim again.
	r4, err := store.CompleteBatch(ctx, scanID, 2)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Done: 3, Total: 3, Duplicate: true}, r4)
}

func TestRedisStore_CompleteBatch_RedeliveryBeforeLastBatch(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	scanID := uuid.New()

	require.NoError(t, store.InitBatches(ctx, scanID, 2))

	_, err := store.CompleteBatch(ctx, scanID, 0)
	require.NoError(t, err)
	dup, err := store.CompleteBatch(ctx, scanID, 0)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.False(t, dup.Claimed)

	done, err := store.BatchDone(ctx, scanID, 0)
	require.NoError(t, err)
	assert.True(t, done)
	done, err = store.BatchDone(ctx, scanID, 1)
	require.NoError(t, err)
	assert.False(t, done)

	last, err := store.CompleteBatch(ctx, scanID, 1)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Done: 2, Total: 2, Claimed: true}, last)
}

func TestRedisStore_CompleteBatch_ExactlyOnceUnderConcurrency(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	for _, batches := range []int{1, 2, 7, 25} {
		scanID := uuid.New()
		require.NoError(t, store.InitBatches(ctx, scanID, batches))

		var claims atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < batches; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := store.CompleteBatch(ctx, scanID, i)
				if assert.NoError(t, err) && res.Claimed {
					claims.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), claims.Load(), "batches=%d", batches)
	}
}

func TestRedisStore_CompleteBatch_MissingTotalNeverClaims(t *testing.T) {
	store, _ := setupRedisStore(t)

	res, err := store.CompleteBatch(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Total)
	assert.False(t, res.Claimed)
}

func TestRedisStore_CancelAndClear(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	scanID := uuid.New()

	canceled, err := store.CancelRequested(ctx, scanID)
	require.NoError(t, err)
	assert.False(t, canceled)

	require.NoError(t, store.RequestCancel(ctx, scanID))
	canceled, err = store.CancelRequested(ctx, scanID)
	require.NoError(t, err)
	assert.True(t, canceled)

	require.NoError(t, store.AppendLog(ctx, scanID, "line"))
	require.NoError(t, store.InitBatches(ctx, scanID, 1))
	_, err = store.CompleteBatch(ctx, scanID, 0)
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, scanID))
	for _, key := range keysFor(scanID).all() {
		assert.False(t, mr.Exists(key), key)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()

	err := store.AppendLog(context.Background(), uuid.New(), "line")
	assert.Error(t, err)
}
