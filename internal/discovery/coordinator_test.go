package discovery

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"github.com/hugh/gcp-inventory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartScan_ZeroProjects(t *testing.T) {
	h := newHarness(t)

	handle := h.start()

	assert.Equal(t, models.ScanStatusCompleted, handle.Status)
	assert.Zero(t, handle.TotalBatches)
	assert.Empty(t, h.dispatcher.take(), "no batch may be queued")

	scan := h.scan(handle.ScanID)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	assert.Zero(t, scan.TotalResources)
	require.NotNil(t, scan.CompletedAt)
	assert.Contains(t, scan.LogOutput, "No projects found")

	org := h.reloadOrg()
	assert.Equal(t, models.ScanStatusCompleted, org.ScanStatus)
	assert.NotNil(t, org.LastScanAt)
}

func TestStartScan_ChunksIntoBatches(t *testing.T) {
	h := newHarness(t, sampleProjects(25)...)

	handle := h.start()
	assert.Equal(t, 25, handle.Projects)
	assert.Equal(t, 3, handle.TotalBatches)
	assert.Equal(t, 3, h.scan(handle.ScanID).TotalBatches)

	batches := h.dispatcher.take()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].ProjectIDs, 10)
	assert.Len(t, batches[1].ProjectIDs, 10)
	assert.Len(t, batches[2].ProjectIDs, 5)

	ctx := testutil.TestContext(t)
	for i, b := range batches {
		require.NoError(t, h.runner.RunBatch(ctx, b))
		if i < 2 {
			assert.Equal(t, models.ScanStatusRunning, h.scan(handle.ScanID).Status, "scan sealed before the last batch")
		}
	}

	scan := h.scan(handle.ScanID)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	assert.Equal(t, int64(25), scan.ProjectsDiscovered)
	assert.Equal(t, int64(25*2), scan.InstancesDiscovered)
	assert.Equal(t, 1, countLines(scan.LogOutput, "Discovery completed"), "finalize must run once")

	// The progress keys are gone once the scan is sealed.
	counts, err := h.store.Counts(ctx, handle.ScanID)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestStartScan_ConflictWhileRunning(t *testing.T) {
	h := newHarness(t, sampleProjects(1)...)

	first := h.start()

	second, err := h.coordinator.StartScan(testutil.TestContext(t), h.org.ID, models.ScanTriggerAPI)
	require.NoError(t, err)
	assert.True(t, second.Conflict)
	assert.Equal(t, first.ScanID, second.ScanID)
	assert.Equal(t, int64(1), h.count(&models.Scan{}))
}

func TestStartScan_AuthFailure(t *testing.T) {
	h := newHarness(t, sampleProjects(2)...)
	h.creds.Err = errors.New("invalid_grant")

	handle, err := h.coordinator.StartScan(testutil.TestContext(t), h.org.ID, models.ScanTriggerAPI)

	var authErr *gcp.AuthError
	require.ErrorAs(t, err, &authErr)
	require.NotNil(t, handle)
	assert.Equal(t, models.ScanStatusFailed, handle.Status)
	assert.Empty(t, h.dispatcher.take())

	scan := h.scan(handle.ScanID)
	assert.Equal(t, models.ScanStatusFailed, scan.Status)
	assert.Contains(t, scan.ErrorMessage, "invalid_grant")

	org := h.reloadOrg()
	assert.Equal(t, models.ScanStatusFailed, org.ScanStatus)
	assert.Contains(t, org.ScanError, "invalid_grant")
}

func TestStartScan_ProjectListingForbidden(t *testing.T) {
	h := newHarness(t, sampleProjects(2)...)
	h.cloud.FailOn("*", "ListProjects", testutil.Forbidden())

	handle := h.start()

	assert.Equal(t, models.ScanStatusCompleted, handle.Status)
	assert.Contains(t, h.scan(handle.ScanID).LogOutput, "WARNING: Could not list projects")
}

func TestStartScan_ProjectListingFailure(t *testing.T) {
	h := newHarness(t, sampleProjects(2)...)
	h.cloud.FailOn("*", "ListProjects", testutil.Unavailable())

	handle, err := h.coordinator.StartScan(testutil.TestContext(t), h.org.ID, models.ScanTriggerAPI)
	require.Error(t, err)
	assert.Equal(t, models.ScanStatusFailed, h.scan(handle.ScanID).Status)
}

func TestStartScan_DispatchFailure(t *testing.T) {
	h := newHarness(t, sampleProjects(25)...)
	h.dispatcher.failAt = 1

	handle, err := h.coordinator.StartScan(testutil.TestContext(t), h.org.ID, models.ScanTriggerAPI)
	require.Error(t, err)
	assert.Equal(t, models.ScanStatusFailed, handle.Status)

	canceled, cerr := h.store.CancelRequested(testutil.TestContext(t), handle.ScanID)
	require.NoError(t, cerr)
	assert.True(t, canceled, "queued batches must see the cancel key")

	// The batch that did get queued skips its projects.
	h.drain()
	assert.Zero(t, h.count(&models.Network{}))
	assert.Equal(t, models.ScanStatusFailed, h.scan(handle.ScanID).Status)
}

func TestScan_Idempotent(t *testing.T) {
	h := newHarness(t, sampleProjects(3)...)

	h.start()
	h.drain()
	first := map[string]int64{}
	for _, m := range models.All() {
		first[tableName(t, h, m)] = h.count(m)
	}

	h.start()
	h.drain()
	for _, m := range models.All() {
		name := tableName(t, h, m)
		if name == "scans" {
			continue
		}
		assert.Equal(t, first[name], h.count(m), "row count for %s changed on rescan", name)
	}
	assert.Equal(t, int64(3), h.count(&models.Project{}))
	assert.Equal(t, int64(6), h.count(&models.Instance{}))
}

func tableName(t *testing.T, h *harness, model any) string {
	t.Helper()
	stmt := h.db.Model(model).Statement
	require.NoError(t, stmt.Parse(model))
	return stmt.Schema.Table
}

func TestScan_ErrorIsolation(t *testing.T) {
	h := newHarness(t, sampleProjects(3)...)
	for _, method := range []string{"ListInstances", "ListInstanceTemplates", "ListInstanceGroups", "ListDisks"} {
		h.cloud.FailOn("proj-02", method, testutil.Forbidden())
	}

	handle := h.start()
	h.drain()

	for _, pid := range []string{"proj-01", "proj-03"} {
		assert.Equal(t, int64(2), h.countInProject(&models.Instance{}, pid), pid)
		assert.Equal(t, int64(1), h.countInProject(&models.Disk{}, pid), pid)
	}
	assert.Zero(t, h.countInProject(&models.Instance{}, "proj-02"))
	assert.Zero(t, h.countInProject(&models.Disk{}, "proj-02"))

	// Other kinds in the failing project are unaffected.
	assert.Equal(t, int64(1), h.countInProject(&models.Network{}, "proj-02"))
	assert.Equal(t, int64(1), h.countInProject(&models.SQLInstance{}, "proj-02"))

	scan := h.scan(handle.ScanID)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	assert.Equal(t, int64(4), scan.InstancesDiscovered)
	assert.Contains(t, scan.LogOutput, "WARNING: Skipping instances in proj-02: forbidden")
	assert.NotContains(t, scan.LogOutput, "ERROR:")
}

func TestRequestCancel(t *testing.T) {
	h := newHarness(t, sampleProjects(12)...)
	ctx := testutil.TestContext(t)

	handle := h.start()
	batches := h.dispatcher.take()
	require.Len(t, batches, 2)

	require.NoError(t, h.runner.RunBatch(ctx, batches[0]))
	scannedBefore := h.count(&models.Project{})

	res, err := h.coordinator.RequestCancel(ctx, h.org.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCanceling)
	assert.Equal(t, handle.ScanID, res.ScanID)
	assert.Equal(t, models.ScanStatusCanceling, h.reloadOrg().ScanStatus)

	again, err := h.coordinator.RequestCancel(ctx, h.org.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCanceling)

	instancesBefore := h.count(&models.Instance{})
	require.NoError(t, h.runner.RunBatch(ctx, batches[1]))

	// The second batch started no projects, and the first batch's work stays.
	assert.Equal(t, instancesBefore, h.count(&models.Instance{}))
	assert.Equal(t, int64(20), instancesBefore)
	assert.Equal(t, scannedBefore, h.count(&models.Project{}))

	scan := h.scan(handle.ScanID)
	assert.Equal(t, models.ScanStatusCanceled, scan.Status)
	assert.Contains(t, scan.LogOutput, "Discovery canceled")

	org := h.reloadOrg()
	assert.Equal(t, models.ScanStatusCanceled, org.ScanStatus)
	assert.False(t, org.CancelRequested)
}

func TestRequestCancel_NotRunning(t *testing.T) {
	h := newHarness(t)

	_, err := h.coordinator.RequestCancel(testutil.TestContext(t), h.org.ID)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestReset(t *testing.T) {
	h := newHarness(t, sampleProjects(1)...)
	ctx := testutil.TestContext(t)

	h.start()
	assert.ErrorIs(t, h.coordinator.Reset(ctx, h.org.ID), ErrConflict, "running scans cannot be reset")

	h.drain()
	require.NoError(t, h.coordinator.Reset(ctx, h.org.ID))

	org := h.reloadOrg()
	assert.Equal(t, models.ScanStatusPending, org.ScanStatus)
	assert.Nil(t, org.CurrentScanID)
}

func TestChunk(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunk(ids, 2))
	assert.Equal(t, [][]string{{"a", "b", "c", "d", "e"}}, chunk(ids, 10))
	assert.Nil(t, chunk(nil, 3))
}

func TestProjectFilter(t *testing.T) {
	org := models.NewOrganization("acme")
	assert.Equal(t, "lifecycleState:ACTIVE", projectFilter(org))

	org.GCPOrganizationID = "123456"
	assert.Equal(t, "lifecycleState:ACTIVE parent.type:organization parent.id:123456", projectFilter(org))
}

func TestRecoverStale_FailsScanPastProgressTTL(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	stale := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)
	require.NoError(t, h.db.Model(stale).UpdateColumn("started_at", started).Error)

	other := testutil.CreateTestOrg(t, h.db)
	fresh := testutil.CreateTestScan(t, h.db, other, models.ScanStatusRunning)
	require.NoError(t, h.db.Model(fresh).UpdateColumn("started_at", started.Add(23*time.Hour)).Error)

	n, err := h.coordinator.RecoverStale(ctx, started.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	failed := h.scan(stale.ID)
	assert.Equal(t, models.ScanStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, ErrStaleScan.Error())
	assert.Contains(t, failed.LogOutput, "ERROR: Discovery failed: stale scan")

	org := h.reloadOrg()
	assert.Equal(t, models.ScanStatusFailed, org.ScanStatus)
	assert.Contains(t, org.ScanError, ErrStaleScan.Error())

	assert.Equal(t, models.ScanStatusRunning, h.scan(fresh.ID).Status)

	// The organization can scan again.
	handle := h.start()
	assert.Equal(t, models.ScanStatusCompleted, handle.Status)
}

func TestRecoverStale_ReleasesOrphanedOrganization(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	now := time.Now()

	// The scan was sealed but the organization transition never landed.
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)
	require.NoError(t, h.db.Model(scan).UpdateColumn("status", models.ScanStatusCompleted).Error)
	require.NoError(t, h.db.Model(&models.Organization{}).Where("id = ?", h.org.ID).
		UpdateColumn("updated_at", now.Add(-48*time.Hour)).Error)

	// Claimed a moment ago with no scan row yet, as StartScan leaves it.
	claimed := testutil.CreateTestOrg(t, h.db)
	require.NoError(t, claimOrganization(ctx, h.db, claimed.ID, uuid.New()))

	n, err := h.coordinator.RecoverStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	org := h.reloadOrg()
	assert.Equal(t, models.ScanStatusFailed, org.ScanStatus)
	assert.Equal(t, staleTaskReset, org.ScanError)
	assert.Equal(t, models.ScanStatusCompleted, h.scan(scan.ID).Status)

	var untouched models.Organization
	require.NoError(t, h.db.First(&untouched, "id = ?", claimed.ID).Error)
	assert.Equal(t, models.ScanStatusRunning, untouched.ScanStatus)
}
