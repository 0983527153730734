package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/discovery"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/hugh/gcp-inventory/internal/testutil"
	"github.com/hugh/gcp-inventory/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type setup struct {
	db       *gorm.DB
	cloud    *testutil.FakeCloud
	creds    *testutil.FakeCredentials
	enqueuer *testutil.FakeEnqueuer
	handler  *Handler
	org      *models.Organization
}

func newSetup(t *testing.T, projects ...*testutil.FakeProject) *setup {
	t.Helper()

	db := testutil.SetupTestDB(t)
	logger := testutil.Logger()
	store := progress.NewMemoryStore()
	cloud := testutil.NewFakeCloud(projects...)
	cloud.Roles[testutil.ViewerRole.Name] = testutil.ViewerRole
	creds := &testutil.FakeCredentials{Cloud: cloud}
	enq := &testutil.FakeEnqueuer{}

	cfg := config.DiscoveryConfig{BatchSize: 2, PoolSize: 2}
	finalizer := discovery.NewFinalizer(db, store, logger)
	scanner := discovery.NewScanner(db, time.Minute, logger)
	coordinator := discovery.NewCoordinator(db, store, creds, NewDispatcher(enq, time.Hour), finalizer, cfg, logger)
	runner := discovery.NewBatchRunner(db, store, creds, scanner, finalizer, cfg.PoolSize, logger)

	return &setup{
		db:       db,
		cloud:    cloud,
		creds:    creds,
		enqueuer: enq,
		handler:  NewHandler(db, coordinator, runner, enq, logger),
		org:      testutil.CreateTestOrg(t, db),
	}
}

func startTask(t *testing.T, orgID uuid.UUID) *asynq.Task {
	t.Helper()
	task, err := NewStartTask(StartPayload{OrganizationID: orgID, Trigger: models.ScanTriggerAPI})
	require.NoError(t, err)
	return task
}

func latestScan(t *testing.T, db *gorm.DB, orgID uuid.UUID) *models.Scan {
	t.Helper()
	var scan models.Scan
	require.NoError(t, db.Where("organization_id = ?", orgID).Order("started_at desc").First(&scan).Error)
	return &scan
}

func TestHandlers_InvalidPayload(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	for name, fn := range map[string]asynq.HandlerFunc{
		TypeDiscoveryStart: s.handler.HandleDiscoveryStart,
		TypeDiscoveryBatch: s.handler.HandleDiscoveryBatch,
	} {
		t.Run(name, func(t *testing.T) {
			err := fn(ctx, asynq.NewTask(name, []byte("invalid json")))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unmarshal payload")
			assert.ErrorIs(t, err, asynq.SkipRetry)
			var syntaxErr *json.SyntaxError
			assert.ErrorAs(t, err, &syntaxErr)
		})
	}
}

func TestHandleDiscoveryStart_DispatchesAndRunsBatches(t *testing.T) {
	s := newSetup(t,
		testutil.SampleProject("proj-a"),
		testutil.SampleProject("proj-b"),
		testutil.SampleProject("proj-c"),
	)
	ctx := context.Background()

	require.NoError(t, s.handler.HandleDiscoveryStart(ctx, startTask(t, s.org.ID)))

	batches := s.enqueuer.Tasks(TypeDiscoveryBatch)
	require.Len(t, batches, 2)

	var first BatchPayload
	require.NoError(t, json.Unmarshal(batches[0].Payload(), &first))
	assert.Equal(t, s.org.ID, first.OrganizationID)
	assert.Equal(t, []string{"proj-a", "proj-b"}, first.ProjectIDs)
	assert.Equal(t, 0, first.BatchIndex)

	scan := latestScan(t, s.db, s.org.ID)
	assert.Equal(t, first.ScanID, scan.ID)
	assert.Equal(t, models.ScanStatusRunning, scan.Status)
	assert.Equal(t, 2, scan.TotalBatches)

	for _, task := range batches {
		require.NoError(t, s.handler.HandleDiscoveryBatch(ctx, task))
	}

	scan = latestScan(t, s.db, s.org.ID)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	assert.Equal(t, int64(3), scan.ProjectsDiscovered)
	assert.Equal(t, int64(3), testutil.Count(t, s.db, &models.Network{}))
}

func TestHandleDiscoveryStart_UnknownOrganization(t *testing.T) {
	s := newSetup(t)

	err := s.handler.HandleDiscoveryStart(context.Background(), startTask(t, uuid.New()))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, discovery.ErrOrgNotFound)
}

func TestHandleDiscoveryStart_AuthFailureIsNotRetried(t *testing.T) {
	s := newSetup(t, testutil.SampleProject("proj-a"))
	s.creds.Err = errors.New("invalid_grant")

	err := s.handler.HandleDiscoveryStart(context.Background(), startTask(t, s.org.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	scan := latestScan(t, s.db, s.org.ID)
	assert.Equal(t, models.ScanStatusFailed, scan.Status)
	assert.Contains(t, scan.ErrorMessage, "invalid_grant")
	assert.Empty(t, s.enqueuer.Tasks(TypeDiscoveryBatch))
}

func TestHandleDiscoveryStart_ConflictIsNoop(t *testing.T) {
	s := newSetup(t, testutil.SampleProject("proj-a"))
	testutil.CreateTestScan(t, s.db, s.org, models.ScanStatusRunning)

	require.NoError(t, s.handler.HandleDiscoveryStart(context.Background(), startTask(t, s.org.ID)))
	assert.Empty(t, s.enqueuer.Tasks(""))
	assert.Equal(t, int64(1), testutil.Count(t, s.db, &models.Scan{}))
}

func TestHandleDiscoverySchedule(t *testing.T) {
	s := newSetup(t)
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	s.handler.now = func() time.Time { return now }

	scheduled := func(schedule string, last *time.Time, status models.ScanStatus) *models.Organization {
		org := testutil.CreateTestOrg(t, s.db)
		require.NoError(t, s.db.Model(org).Updates(map[string]any{
			"auto_discover":      true,
			"discovery_schedule": schedule,
			"last_scan_at":       last,
			"scan_status":        status,
		}).Error)
		return org
	}

	lastHour := now.Add(-90 * time.Minute)
	recent := now.Add(-10 * time.Minute)

	neverRan := scheduled("0 * * * *", nil, models.ScanStatusPending)
	overdue := scheduled("0 * * * *", &lastHour, models.ScanStatusCompleted)
	scheduled("0 * * * *", &recent, models.ScanStatusCompleted)
	scheduled("0 * * * *", nil, models.ScanStatusRunning)
	scheduled("not a cron", nil, models.ScanStatusPending)
	// s.org has auto_discover off.

	require.NoError(t, s.handler.HandleDiscoverySchedule(context.Background(), NewScheduleTask()))

	starts := s.enqueuer.Tasks(TypeDiscoveryStart)
	require.Len(t, starts, 2)

	var got []uuid.UUID
	for _, task := range starts {
		var p StartPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &p))
		assert.Equal(t, models.ScanTriggerSchedule, p.Trigger)
		got = append(got, p.OrganizationID)
	}
	assert.ElementsMatch(t, []uuid.UUID{neverRan.ID, overdue.ID}, got)
	assert.NotEmpty(t, s.enqueuer.Options(0), "scheduled starts are deduplicated")
}

func TestHandleDiscoverySchedule_FailsStaleScans(t *testing.T) {
	s := newSetup(t)
	now := time.Now()
	s.handler.now = func() time.Time { return now }

	scan := testutil.CreateTestScan(t, s.db, s.org, models.ScanStatusRunning)
	require.NoError(t, s.db.Model(scan).UpdateColumn("started_at", now.Add(-25*time.Hour)).Error)

	require.NoError(t, s.handler.HandleDiscoverySchedule(context.Background(), NewScheduleTask()))

	stale := latestScan(t, s.db, s.org.ID)
	assert.Equal(t, models.ScanStatusFailed, stale.Status)
	assert.Contains(t, stale.ErrorMessage, discovery.ErrStaleScan.Error())

	var org models.Organization
	require.NoError(t, s.db.First(&org, "id = ?", s.org.ID).Error)
	assert.Equal(t, models.ScanStatusFailed, org.ScanStatus)
	assert.False(t, org.CancelRequested)
}

func TestHandleDiscoveryBatch_RedeliveryDoesNotRescan(t *testing.T) {
	s := newSetup(t,
		testutil.SampleProject("proj-a"),
		testutil.SampleProject("proj-b"),
		testutil.SampleProject("proj-c"),
	)
	ctx := context.Background()

	require.NoError(t, s.handler.HandleDiscoveryStart(ctx, startTask(t, s.org.ID)))
	batches := s.enqueuer.Tasks(TypeDiscoveryBatch)
	require.Len(t, batches, 2)

	require.NoError(t, s.handler.HandleDiscoveryBatch(ctx, batches[0]))
	calls := s.cloud.Calls("proj-a", "ListNetworks")
	require.NoError(t, s.handler.HandleDiscoveryBatch(ctx, batches[0]))
	assert.Equal(t, calls, s.cloud.Calls("proj-a", "ListNetworks"))
	assert.Equal(t, models.ScanStatusRunning, latestScan(t, s.db, s.org.ID).Status)

	require.NoError(t, s.handler.HandleDiscoveryBatch(ctx, batches[1]))
	scan := latestScan(t, s.db, s.org.ID)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	assert.Equal(t, int64(3), scan.ProjectsDiscovered)
}

func TestHandleDiscoverySchedule_EnqueueFailureContinues(t *testing.T) {
	s := newSetup(t)
	require.NoError(t, s.db.Model(s.org).Updates(map[string]any{
		"auto_discover":      true,
		"discovery_schedule": "* * * * *",
	}).Error)
	s.enqueuer.Err = errors.New("redis: connection refused")

	assert.NoError(t, s.handler.HandleDiscoverySchedule(context.Background(), NewScheduleTask()))
}

func TestDispatcher_DispatchBatch(t *testing.T) {
	enq := &testutil.FakeEnqueuer{}
	d := NewDispatcher(enq, time.Hour)

	b := discovery.Batch{ScanID: uuid.New(), OrgID: uuid.New(), ProjectIDs: []string{"p1", "p2"}, Index: 4}
	id, err := d.DispatchBatch(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	tasks := enq.Tasks(TypeDiscoveryBatch)
	require.Len(t, tasks, 1)
	var p BatchPayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload(), &p))
	assert.Equal(t, BatchPayload{ScanID: b.ScanID, OrganizationID: b.OrgID, ProjectIDs: b.ProjectIDs, BatchIndex: 4}, p)

	enq.Err = errors.New("queue down")
	_, err = d.DispatchBatch(context.Background(), b)
	assert.Error(t, err)
}
