package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/hugh/gcp-inventory/internal/testutil"
	"github.com/hugh/gcp-inventory/pkg/config"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingDispatcher keeps batches in memory instead of queueing them.
type recordingDispatcher struct {
	mu      sync.Mutex
	batches []Batch
	// failAt makes the dispatch with that index fail; -1 disables.
	failAt int
}

func (d *recordingDispatcher) DispatchBatch(_ context.Context, b Batch) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.Index == d.failAt {
		return "", errors.New("queue unavailable")
	}
	d.batches = append(d.batches, b)
	return fmt.Sprintf("task-%d", b.Index), nil
}

func (d *recordingDispatcher) take() []Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.batches
	d.batches = nil
	return out
}

type harness struct {
	t           *testing.T
	db          *gorm.DB
	store       *progress.MemoryStore
	cloud       *testutil.FakeCloud
	creds       *testutil.FakeCredentials
	dispatcher  *recordingDispatcher
	scanner     *Scanner
	finalizer   *Finalizer
	coordinator *Coordinator
	runner      *BatchRunner
	org         *models.Organization
}

func newHarness(t *testing.T, projects ...*testutil.FakeProject) *harness {
	t.Helper()

	db := testutil.SetupTestDB(t)
	logger := testutil.Logger()
	store := progress.NewMemoryStore()
	cloud := testutil.NewFakeCloud(projects...)
	cloud.Roles[testutil.ViewerRole.Name] = testutil.ViewerRole
	creds := &testutil.FakeCredentials{Cloud: cloud}
	dispatcher := &recordingDispatcher{failAt: -1}

	cfg := config.DiscoveryConfig{BatchSize: 10, PoolSize: 3}
	scanner := NewScanner(db, time.Minute, logger)
	finalizer := NewFinalizer(db, store, logger)

	return &harness{
		t:           t,
		db:          db,
		store:       store,
		cloud:       cloud,
		creds:       creds,
		dispatcher:  dispatcher,
		scanner:     scanner,
		finalizer:   finalizer,
		coordinator: NewCoordinator(db, store, creds, dispatcher, finalizer, cfg, logger),
		runner:      NewBatchRunner(db, store, creds, scanner, finalizer, cfg.PoolSize, logger),
		org:         testutil.CreateTestOrg(t, db),
	}
}

func sampleProjects(n int) []*testutil.FakeProject {
	out := make([]*testutil.FakeProject, n)
	for i := range out {
		out[i] = testutil.SampleProject(fmt.Sprintf("proj-%02d", i+1))
	}
	return out
}

// start runs StartScan and requires it to succeed.
func (h *harness) start() *ScanHandle {
	h.t.Helper()
	handle, err := h.coordinator.StartScan(testutil.TestContext(h.t), h.org.ID, models.ScanTriggerAPI)
	require.NoError(h.t, err)
	require.False(h.t, handle.Conflict)
	return handle
}

// drain runs every dispatched batch, as queue workers would.
func (h *harness) drain() {
	h.t.Helper()
	ctx := testutil.TestContext(h.t)
	for _, b := range h.dispatcher.take() {
		require.NoError(h.t, h.runner.RunBatch(ctx, b))
	}
}

func (h *harness) scan(id uuid.UUID) *models.Scan {
	h.t.Helper()
	var scan models.Scan
	require.NoError(h.t, h.db.First(&scan, "id = ?", id).Error)
	return &scan
}

func (h *harness) reloadOrg() *models.Organization {
	h.t.Helper()
	var org models.Organization
	require.NoError(h.t, h.db.First(&org, "id = ?", h.org.ID).Error)
	return &org
}

func (h *harness) count(model any) int64 {
	h.t.Helper()
	return testutil.Count(h.t, h.db, model)
}

// countInProject counts rows of model belonging to the catalog project with the
// given provider ID.
func (h *harness) countInProject(model any, projectID string) int64 {
	h.t.Helper()
	var p models.Project
	require.NoError(h.t, h.db.First(&p, "project_id = ?", projectID).Error)
	var n int64
	require.NoError(h.t, h.db.Model(model).Where("project_id = ?", p.ID).Count(&n).Error)
	return n
}

// newRun builds a batch run for direct scanner tests.
func (h *harness) newRun(scanID uuid.UUID) *Run {
	return &Run{
		Org:     h.reloadOrg(),
		Client:  h.cloud,
		Tracker: progress.NewTracker(h.store, scanID, testutil.Logger()),
	}
}

func countLines(log, substr string) int {
	n := 0
	for _, line := range strings.Split(log, "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func joinLines(lines []string) string { return strings.Join(lines, "\n") }

func binding(role string, members ...string) gcp.Binding {
	return gcp.Binding{Role: role, Members: members}
}
