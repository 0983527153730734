package progress

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

// brokenStore fails every call, as an unreachable Redis would.
type brokenStore struct{ *MemoryStore }

var errDown = errors.New("connection refused")

func newBrokenStore() *brokenStore { return &brokenStore{MemoryStore: NewMemoryStore()} }

func (*brokenStore) AppendLog(context.Context, uuid.UUID, string) error { return errDown }
func (*brokenStore) Logs(context.Context, uuid.UUID) ([]string, error) { return nil, errDown }
func (*brokenStore) IncrCount(context.Context, uuid.UUID, string, int64) error {
	return errDown
}
func (*brokenStore) Counts(context.Context, uuid.UUID) (map[string]int64, error) {
	return nil, errDown
}

func TestTracker_WritesThroughStore(t *testing.T) {
	store := NewMemoryStore()
	scanID := uuid.New()
	tr := NewTracker(store, scanID, testLogger)
	tr.now = func() time.Time { return time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	tr.Infof(ctx, "scanning %s", "proj-a")
	tr.Warnf(ctx, "listing disks: %s", "forbidden")
	tr.Incr(ctx, "disks", 3)
	tr.Incr(ctx, "disks", 0)

	lines, err := store.Logs(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[13:04:05] scanning proj-a",
		"[13:04:05] WARNING: listing disks: forbidden",
	}, lines)

	counts, err := store.Counts(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"disks": 3}, counts)
}

func TestTracker_FallsBackToMemory(t *testing.T) {
	tr := NewTracker(newBrokenStore(), uuid.New(), testLogger)
	ctx := context.Background()

	tr.Errorf(ctx, "project %s failed", "proj-b")
	tr.Incr(ctx, "networks", 2)
	tr.Incr(ctx, "networks", 1)

	snap := tr.Snapshot(ctx)
	assert.False(t, snap.StoreLogs)
	require.Len(t, snap.Lines, 1)
	assert.True(t, strings.HasSuffix(snap.Lines[0], "ERROR: project proj-b failed"))
	assert.Equal(t, int64(3), snap.Buffered["networks"])
	assert.Empty(t, snap.Counts)
	assert.Equal(t, 1, snap.BufferedLines)
}

func TestTracker_CommittedKeepsLaterBuffering(t *testing.T) {
	tr := NewTracker(newBrokenStore(), uuid.New(), testLogger)
	ctx := context.Background()

	tr.Incr(ctx, "networks", 2)
	tr.Infof(ctx, "first")
	snap := tr.Snapshot(ctx)

	tr.Incr(ctx, "networks", 5)
	tr.Infof(ctx, "second")
	tr.Committed(snap)

	next := tr.Snapshot(ctx)
	assert.Equal(t, map[string]int64{"networks": 5}, next.Buffered)
	require.Len(t, next.Lines, 1)
	assert.True(t, strings.HasSuffix(next.Lines[0], "second"))

	tr.Committed(next)
	assert.Empty(t, tr.Snapshot(ctx).Buffered)
}

func TestTracker_SnapshotMergesStoreAndFallback(t *testing.T) {
	store := NewMemoryStore()
	scanID := uuid.New()
	ctx := context.Background()
	require.NoError(t, store.IncrCount(ctx, scanID, "instances", 5))
	require.NoError(t, store.AppendLog(ctx, scanID, "from another worker"))

	tr := NewTracker(store, scanID, testLogger)
	tr.fallbackCounts["instances"] = 2
	tr.fallbackLogs = []string{"buffered"}

	snap := tr.Snapshot(ctx)
	assert.True(t, snap.StoreLogs)
	assert.Equal(t, []string{"from another worker", "buffered"}, snap.Lines)
	assert.Equal(t, int64(5), snap.Counts["instances"])
	assert.Equal(t, int64(2), snap.Buffered["instances"])
	assert.Equal(t, 1, snap.BufferedLines)
}

func TestMemoryStore_CompleteBatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	scanID := uuid.New()
	require.NoError(t, store.InitBatches(ctx, scanID, 2))

	r1, _ := store.CompleteBatch(ctx, scanID, 0)
	again, _ := store.CompleteBatch(ctx, scanID, 0)
	r2, _ := store.CompleteBatch(ctx, scanID, 1)
	r3, _ := store.CompleteBatch(ctx, scanID, 1)

	assert.False(t, r1.Claimed)
	assert.True(t, again.Duplicate)
	assert.Equal(t, int64(1), again.Done)
	assert.True(t, r2.Claimed)
	assert.False(t, r3.Claimed)
	assert.True(t, r3.Duplicate)

	done, err := store.BatchDone(ctx, scanID, 1)
	require.NoError(t, err)
	assert.True(t, done)
}
