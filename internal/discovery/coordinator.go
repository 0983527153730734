package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"github.com/hugh/gcp-inventory/internal/metrics"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/hugh/gcp-inventory/pkg/config"
	"gorm.io/gorm"
)

// Batch is one chunk of projects handed to the work queue.
type Batch struct {
	ScanID     uuid.UUID
	OrgID      uuid.UUID
	ProjectIDs []string
	Index      int
}

// Dispatcher puts batches on the work queue and returns the queue's task ID.
type Dispatcher interface {
	DispatchBatch(ctx context.Context, b Batch) (string, error)
}

// ScanHandle describes the outcome of StartScan. Conflict is set when the
// organization already had a scan in flight; ScanID then names that scan.
type ScanHandle struct {
	ScanID       uuid.UUID
	Status       models.ScanStatus
	Conflict     bool
	Projects     int
	TotalBatches int
}

// CancelResult is returned by RequestCancel.
type CancelResult struct {
	ScanID           uuid.UUID
	AlreadyCanceling bool
}

type Coordinator struct {
	db         *gorm.DB
	store      progress.Store
	creds      gcp.CredentialProvider
	dispatcher Dispatcher
	finalizer  *Finalizer
	cfg        config.DiscoveryConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewCoordinator(
	db *gorm.DB,
	store progress.Store,
	creds gcp.CredentialProvider,
	dispatcher Dispatcher,
	finalizer *Finalizer,
	cfg config.DiscoveryConfig,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		db:         db,
		store:      store,
		creds:      creds,
		dispatcher: dispatcher,
		finalizer:  finalizer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// StartScan claims the organization, lists its projects and fans them out as
// batches. It returns once the batches are queued. A scan with no projects
// is finalized before returning.
func (c *Coordinator) StartScan(ctx context.Context, orgID uuid.UUID, trigger models.ScanTrigger) (*ScanHandle, error) {
	org, err := loadOrganization(ctx, c.db, orgID)
	if err != nil {
		return nil, err
	}
	if org.ScanStatus.Active() {
		return c.conflict(org), nil
	}

	scanID := uuid.New()
	if err := claimOrganization(ctx, c.db, orgID, scanID); err != nil {
		if errors.Is(err, ErrConflict) {
			if org, lerr := loadOrganization(ctx, c.db, orgID); lerr == nil {
				return c.conflict(org), nil
			}
		}
		return nil, err
	}

	scan := &models.Scan{
		Base:           models.Base{ID: scanID},
		OrganizationID: orgID,
		Status:         models.ScanStatusRunning,
		Trigger:        trigger,
		StartedAt:      c.now(),
	}
	if taskID, ok := asynq.GetTaskID(ctx); ok {
		scan.TaskID = taskID
	}
	if err := c.db.WithContext(ctx).Create(scan).Error; err != nil {
		// Release the claim so the organization is not stuck running.
		_ = finishOrganization(ctx, c.db, orgID, scanID, models.ScanStatusFailed, err.Error(), c.now())
		return nil, fmt.Errorf("creating scan: %w", err)
	}
	metrics.ScansStarted.WithLabelValues(string(trigger)).Inc()

	handle := &ScanHandle{ScanID: scanID, Status: models.ScanStatusRunning}
	tracker := progress.NewTracker(c.store, scanID, c.logger)
	tracker.Infof(ctx, "Starting discovery for organization %s", org.Name)

	client, err := c.creds.Client(ctx, org)
	if err != nil {
		return c.fail(ctx, handle, err)
	}
	defer client.Close()

	projectIDs, err := c.listProjects(ctx, client, org, tracker)
	if err != nil {
		return c.fail(ctx, handle, err)
	}
	handle.Projects = len(projectIDs)

	if len(projectIDs) == 0 || c.canceled(ctx, org.ID, scanID) {
		if len(projectIDs) == 0 {
			tracker.Infof(ctx, "No projects found")
		}
		status, err := c.finalizer.Finalize(ctx, scanID)
		if err != nil {
			return handle, fmt.Errorf("finalizing scan: %w", err)
		}
		handle.Status = status
		return handle, nil
	}

	chunks := chunk(projectIDs, c.cfg.BatchSize)
	handle.TotalBatches = len(chunks)

	if err := c.store.InitBatches(ctx, scanID, len(chunks)); err != nil {
		return c.fail(ctx, handle, fmt.Errorf("publishing batch counters: %w", err))
	}
	if err := c.db.WithContext(ctx).Model(scan).Update("total_batches", len(chunks)).Error; err != nil {
		c.logger.Warn("failed to record batch total", "scan_id", scanID, "error", err)
	}
	tracker.Infof(ctx, "Found %d projects, dispatching %d batches", len(projectIDs), len(chunks))

	for i, ids := range chunks {
		_, err := c.dispatcher.DispatchBatch(ctx, Batch{ScanID: scanID, OrgID: orgID, ProjectIDs: ids, Index: i})
		if err != nil {
			// Batches already queued see the cancel key and skip their projects.
			if cerr := c.store.RequestCancel(ctx, scanID); cerr != nil {
				c.logger.Warn("failed to set cancel key", "scan_id", scanID, "error", cerr)
			}
			return c.fail(ctx, handle, fmt.Errorf("dispatching batch %d of %d: %w", i+1, len(chunks), err))
		}
	}

	if err := c.finalizer.Flush(ctx, tracker); err != nil {
		c.logger.Warn("failed to flush scan progress", "scan_id", scanID, "error", err)
	}
	return handle, nil
}

func (c *Coordinator) conflict(org *models.Organization) *ScanHandle {
	h := &ScanHandle{Status: org.ScanStatus, Conflict: true}
	if org.CurrentScanID != nil {
		h.ScanID = *org.CurrentScanID
	}
	return h
}

func (c *Coordinator) fail(ctx context.Context, handle *ScanHandle, cause error) (*ScanHandle, error) {
	if err := c.finalizer.Fail(ctx, handle.ScanID, cause); err != nil {
		c.logger.Error("failed to mark scan failed", "scan_id", handle.ScanID, "error", err)
	}
	handle.Status = models.ScanStatusFailed
	return handle, cause
}

func (c *Coordinator) canceled(ctx context.Context, orgID, scanID uuid.UUID) bool {
	if ok, err := c.store.CancelRequested(ctx, scanID); err == nil && ok {
		return true
	}
	org, err := loadOrganization(ctx, c.db, orgID)
	return err == nil && org.CancelRequested
}

func projectFilter(org *models.Organization) string {
	filter := "lifecycleState:ACTIVE"
	if org.GCPOrganizationID != "" {
		filter += " parent.type:organization parent.id:" + org.GCPOrganizationID
	}
	return filter
}

// listProjects walks the project listing once, upserting every project, and
// returns the project IDs in listing order. Projects the credentials cannot
// list are treated as none.
func (c *Coordinator) listProjects(ctx context.Context, client gcp.Client, org *models.Organization, tracker *progress.Tracker) ([]string, error) {
	now := c.now()
	filter := projectFilter(org)

	var ids []string
	err := paginate(ctx, func(ctx context.Context, token string) (gcp.Page[gcp.Project], error) {
		return client.ListProjects(ctx, filter, token)
	}, func(p gcp.Project) error {
		_, err := upsert[models.Project](ctx, c.db, &models.Project{
			OrganizationID: org.ID,
			ProjectID:      p.ProjectID,
			Name:           p.Name,
			ProjectNumber:  p.ProjectNumber,
			LifecycleState: p.LifecycleState,
			Labels:         models.JSON(p.Labels),
		}, now)
		if err != nil {
			return fmt.Errorf("saving project %s: %w", p.ProjectID, err)
		}
		ids = append(ids, p.ProjectID)
		tracker.Incr(ctx, models.KindProjects, 1)
		return nil
	})
	if err == nil {
		return ids, nil
	}

	switch gcp.Classify(err).Class {
	case gcp.ClassWarning:
		tracker.Warnf(ctx, "Could not list projects: %v", err)
		return nil, nil
	case gcp.ClassAuth:
		var authErr *gcp.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, &gcp.AuthError{Err: err}
	default:
		return nil, fmt.Errorf("listing projects: %w", err)
	}
}

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n:n])
		ids = ids[n:]
	}
	return out
}

// RequestCancel asks the organization's running scan to stop. Batches stop
// scheduling projects and the scan is sealed as canceled.
func (c *Coordinator) RequestCancel(ctx context.Context, orgID uuid.UUID) (*CancelResult, error) {
	already, err := cancelOrganization(ctx, c.db, orgID)
	if err != nil {
		return nil, err
	}
	org, err := loadOrganization(ctx, c.db, orgID)
	if err != nil {
		return nil, err
	}

	res := &CancelResult{AlreadyCanceling: already}
	if org.CurrentScanID == nil {
		return res, nil
	}
	res.ScanID = *org.CurrentScanID

	if err := c.store.RequestCancel(ctx, res.ScanID); err != nil {
		c.logger.Warn("failed to set cancel key, batches will read the organization flag", "scan_id", res.ScanID, "error", err)
	}
	if !already {
		progress.NewTracker(c.store, res.ScanID, c.logger).Infof(ctx, "Cancellation requested")
	}
	return res, nil
}

// Reset returns an idle organization to pending.
func (c *Coordinator) Reset(ctx context.Context, orgID uuid.UUID) error {
	return resetOrganization(ctx, c.db, orgID)
}

// RecoverStale fails scans still running longer than the progress TTL after
// they started, which is when their Store keys expire and no batch can claim
// them any more. It then releases organizations left active without a running
// scan. It returns how many scans and organizations were released.
func (c *Coordinator) RecoverStale(ctx context.Context, now time.Time) (int, error) {
	staleAfter := c.cfg.ProgressTTL()
	if staleAfter <= 0 {
		staleAfter = progress.DefaultTTL
	}
	cutoff := now.Add(-staleAfter)

	var scans []models.Scan
	err := c.db.WithContext(ctx).
		Select("id", "organization_id", "started_at").
		Where("status = ? AND started_at < ?", models.ScanStatusRunning, cutoff).
		Find(&scans).Error
	if err != nil {
		return 0, fmt.Errorf("loading stale scans: %w", err)
	}

	released := 0
	for i := range scans {
		scan := &scans[i]
		cause := fmt.Errorf("%w: no completion since %s", ErrStaleScan, scan.StartedAt.UTC().Format(time.RFC3339))
		if err := c.finalizer.Fail(ctx, scan.ID, cause); err != nil {
			c.logger.Error("failed to fail stale scan", "scan_id", scan.ID, "error", err)
			continue
		}
		c.logger.Warn("stale scan failed", "scan_id", scan.ID, "organization_id", scan.OrganizationID, "started_at", scan.StartedAt)
		released++
	}

	orphans, err := releaseOrphaned(ctx, c.db, cutoff, now)
	if err != nil {
		return released, err
	}
	return released + int(orphans), nil
}

// Fail seals a running scan as failed.
func (c *Coordinator) Fail(ctx context.Context, scanID uuid.UUID, cause error) error {
	return c.finalizer.Fail(ctx, scanID, cause)
}
