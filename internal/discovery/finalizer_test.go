package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/hugh/gcp-inventory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_CountsNeverDecrease(t *testing.T) {
	scan := &models.Scan{}
	scan.ApplyCounts(map[string]int64{"networks": 5, "instances": 2})

	merge(scan, progress.Snapshot{
		Counts:    map[string]int64{"networks": 3, "instances": 4, "disks": 1},
		StoreLogs: true,
		Lines:     []string{"[10:00:00] one", "[10:00:01] two"},
	})

	counts := scan.CountMap()
	assert.Equal(t, int64(5), counts["networks"])
	assert.Equal(t, int64(4), counts["instances"])
	assert.Equal(t, int64(1), counts["disks"])
	assert.Equal(t, int64(10), scan.TotalResources)
	assert.Equal(t, "[10:00:00] one\n[10:00:01] two", scan.LogOutput)
}

func TestMerge_AddsBufferedDeltas(t *testing.T) {
	scan := &models.Scan{}
	scan.ApplyCounts(map[string]int64{"networks": 2})

	merge(scan, progress.Snapshot{
		Counts:   map[string]int64{"networks": 1},
		Buffered: map[string]int64{"networks": 3, "disks": 1},
	})

	counts := scan.CountMap()
	assert.Equal(t, int64(5), counts["networks"])
	assert.Equal(t, int64(1), counts["disks"])
}

func TestMerge_AppendsBufferedLinesWithoutStore(t *testing.T) {
	scan := &models.Scan{LogOutput: "[10:00:00] earlier"}

	merge(scan, progress.Snapshot{Lines: []string{"[10:00:05] buffered"}})

	assert.Equal(t, "[10:00:00] earlier\n[10:00:05] buffered", scan.LogOutput)
}

func TestFinalize_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)
	require.NoError(t, h.store.IncrCount(ctx, scan.ID, models.KindNetworks, 4))
	require.NoError(t, h.store.IncrCount(ctx, scan.ID, models.KindBuckets, 2))

	status, err := h.finalizer.Finalize(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCompleted, status)

	sealed := h.scan(scan.ID)
	assert.Equal(t, int64(6), sealed.TotalResources)
	assert.Equal(t, int64(4), sealed.NetworksDiscovered)
	assert.Equal(t, int64(2), sealed.BucketsDiscovered)

	status, err = h.finalizer.Finalize(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCompleted, status)

	again := h.scan(scan.ID)
	assert.Equal(t, sealed.CompletedAt.Unix(), again.CompletedAt.Unix())
	assert.Equal(t, sealed.LogOutput, again.LogOutput)
	assert.Equal(t, 1, countLines(again.LogOutput, "Discovery completed"))
}

func TestFinalize_UnknownScan(t *testing.T) {
	h := newHarness(t)

	_, err := h.finalizer.Finalize(testutil.TestContext(t), uuid.New())
	assert.ErrorIs(t, err, ErrScanNotFound)
}

func TestFlush_LeavesSealedScansAlone(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)
	tracker := progress.NewTracker(h.store, scan.ID, testutil.Logger())

	tracker.Incr(ctx, models.KindInstances, 3)
	tracker.Infof(ctx, "halfway")
	require.NoError(t, h.finalizer.Flush(ctx, tracker))

	partial := h.scan(scan.ID)
	assert.Equal(t, models.ScanStatusRunning, partial.Status)
	assert.Equal(t, int64(3), partial.InstancesDiscovered)
	assert.Contains(t, partial.LogOutput, "halfway")

	require.NoError(t, h.finalizer.Fail(ctx, scan.ID, errors.New("queue lost")))
	tracker.Incr(ctx, models.KindInstances, 10)
	require.NoError(t, h.finalizer.Flush(ctx, tracker))

	failed := h.scan(scan.ID)
	assert.Equal(t, models.ScanStatusFailed, failed.Status)
	assert.Equal(t, int64(3), failed.InstancesDiscovered)
	assert.Equal(t, "queue lost", failed.ErrorMessage)
	assert.Equal(t, models.ScanStatusFailed, h.reloadOrg().ScanStatus)
}

// downStore rejects every progress write and read.
type downStore struct{ *progress.MemoryStore }

var errStoreDown = errors.New("connection refused")

func (*downStore) AppendLog(context.Context, uuid.UUID, string) error { return errStoreDown }
func (*downStore) Logs(context.Context, uuid.UUID) ([]string, error) { return nil, errStoreDown }
func (*downStore) IncrCount(context.Context, uuid.UUID, string, int64) error {
	return errStoreDown
}
func (*downStore) Counts(context.Context, uuid.UUID) (map[string]int64, error) {
	return nil, errStoreDown
}

func TestFlush_BufferedCountsFromSeparateBatchesAccumulate(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)
	store := &downStore{MemoryStore: progress.NewMemoryStore()}

	first := progress.NewTracker(store, scan.ID, testutil.Logger())
	second := progress.NewTracker(store, scan.ID, testutil.Logger())
	first.Incr(ctx, models.KindNetworks, 2)
	second.Incr(ctx, models.KindNetworks, 2)
	first.Infof(ctx, "first batch")
	second.Infof(ctx, "second batch")

	require.NoError(t, h.finalizer.Flush(ctx, first))
	require.NoError(t, h.finalizer.Flush(ctx, second))
	// A second flush of an already committed tracker adds nothing.
	require.NoError(t, h.finalizer.Flush(ctx, first))

	got := h.scan(scan.ID)
	assert.Equal(t, int64(4), got.NetworksDiscovered)
	assert.Equal(t, 1, countLines(got.LogOutput, "first batch"))
	assert.Equal(t, 1, countLines(got.LogOutput, "second batch"))
}
