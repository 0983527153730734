package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"github.com/hugh/gcp-inventory/internal/metrics"
	"github.com/hugh/gcp-inventory/internal/progress"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// BatchRunner executes one queued batch: it scans the batch's projects on a
// bounded pool, reports the batch done, and finalizes the scan when it was
// the last batch.
type BatchRunner struct {
	db        *gorm.DB
	store     progress.Store
	creds     gcp.CredentialProvider
	scanner   *Scanner
	finalizer *Finalizer
	poolSize  int
	tracer    trace.Tracer
	logger    *slog.Logger
}

func NewBatchRunner(
	db *gorm.DB,
	store progress.Store,
	creds gcp.CredentialProvider,
	scanner *Scanner,
	finalizer *Finalizer,
	poolSize int,
	logger *slog.Logger,
) *BatchRunner {
	return &BatchRunner{
		db:        db,
		store:     store,
		creds:     creds,
		scanner:   scanner,
		finalizer: finalizer,
		poolSize:  poolSize,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
	}
}

// completionTimeout bounds the bookkeeping that runs after a batch's scan,
// which is detached from the task's context.
const completionTimeout = 30 * time.Second

// RunBatch scans the batch's projects for its scan. Per-project failures are
// logged against the scan and never fail the batch. A batch whose completion
// is already recorded, or whose scan is sealed, returns without scanning.
//
// Recording completion and finalizing run on a context detached from ctx, so
// a task timeout or worker shutdown mid-scan still counts the batch. Errors
// past that point wrap asynq.SkipRetry: scanning the batch again would not
// make the counters consistent.
func (b *BatchRunner) RunBatch(ctx context.Context, batch Batch) error {
	ctx, span := b.tracer.Start(ctx, "discovery.batch", trace.WithAttributes(
		attribute.String("scan_id", batch.ScanID.String()),
		attribute.Int("batch", batch.Index),
		attribute.Int("projects", len(batch.ProjectIDs)),
	))
	defer span.End()

	scanID := batch.ScanID
	logger := b.logger.With("scan_id", scanID, "organization_id", batch.OrgID, "batch", batch.Index)

	skip, err := b.shouldSkip(ctx, batch)
	if err != nil {
		return err
	}
	if skip {
		metrics.BatchesCompleted.WithLabelValues("skipped").Inc()
		return nil
	}

	tracker := progress.NewTracker(b.store, scanID, b.logger)
	scanErr := b.scanBatch(ctx, tracker, batch.OrgID, batch.ProjectIDs)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
	defer cancel()

	if scanErr != nil {
		tracker.Errorf(ctx, "Batch failed: %v", scanErr)
		b.recordError(ctx, scanID, scanErr)
	}

	res, err := b.store.CompleteBatch(ctx, scanID, batch.Index)
	if err != nil {
		metrics.BatchesCompleted.WithLabelValues("stalled").Inc()
		logger.Error("failed to record batch completion, scan is left for the stale sweep", "error", err)
		if ferr := b.finalizer.Flush(ctx, tracker); ferr != nil {
			logger.Warn("failed to flush scan progress", "error", ferr)
		}
		return fmt.Errorf("completing batch: %w: %w", err, asynq.SkipRetry)
	}
	logger.Info("batch complete", "done", res.Done, "total", res.Total, "last", res.Claimed, "duplicate", res.Duplicate)

	if err := b.finalizer.Flush(ctx, tracker); err != nil {
		logger.Warn("failed to flush scan progress", "error", err)
	}

	if !res.Claimed {
		metrics.BatchesCompleted.WithLabelValues("partial").Inc()
		return nil
	}

	metrics.BatchesCompleted.WithLabelValues("final").Inc()
	status, err := b.finalizer.Finalize(ctx, scanID)
	if err != nil {
		logger.Error("failed to finalize claimed scan, scan is left for the stale sweep", "error", err)
		return fmt.Errorf("finalizing scan: %w: %w", err, asynq.SkipRetry)
	}
	logger.Info("scan sealed by last batch", "status", status)
	return nil
}

// shouldSkip reports whether a delivered batch has nothing left to do.
// Store read failures are not fatal; the batch runs and completion stays
// idempotent.
func (b *BatchRunner) shouldSkip(ctx context.Context, batch Batch) (bool, error) {
	var scan models.Scan
	err := b.db.WithContext(ctx).Select("id", "status").First(&scan, "id = ?", batch.ScanID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, fmt.Errorf("%w: %w", ErrScanNotFound, asynq.SkipRetry)
	case err != nil:
		return false, fmt.Errorf("loading scan: %w", err)
	case scan.Status != models.ScanStatusRunning:
		b.logger.Info("scan already sealed, skipping batch", "scan_id", batch.ScanID, "batch", batch.Index, "status", scan.Status)
		return true, nil
	}

	done, err := b.store.BatchDone(ctx, batch.ScanID, batch.Index)
	if err != nil {
		b.logger.Warn("failed to read batch state", "scan_id", batch.ScanID, "batch", batch.Index, "error", err)
		return false, nil
	}
	if done {
		b.logger.Info("batch already recorded, skipping", "scan_id", batch.ScanID, "batch", batch.Index)
	}
	return done, nil
}

// scanBatch returns an error only when the batch could not start at all.
func (b *BatchRunner) scanBatch(ctx context.Context, tracker *progress.Tracker, orgID uuid.UUID, projectIDs []string) error {
	org, err := loadOrganization(ctx, b.db, orgID)
	if err != nil {
		return err
	}

	client, err := b.creds.Client(ctx, org)
	if err != nil {
		return err
	}
	defer client.Close()

	var projects []models.Project
	err = b.db.WithContext(ctx).
		Where("organization_id = ? AND project_id IN ?", orgID, projectIDs).
		Order("project_id").
		Find(&projects).Error
	if err != nil {
		return fmt.Errorf("loading projects: %w", err)
	}
	if missing := len(projectIDs) - len(projects); missing > 0 {
		tracker.Warnf(ctx, "%d projects in batch are not in the catalog", missing)
	}

	run := &Run{Org: org, Client: client, Tracker: tracker}
	b.runPool(ctx, run, projects)
	return nil
}

// runPool scans projects with at most poolSize in flight. Once a cancel is
// seen no further projects are started; running ones finish.
func (b *BatchRunner) runPool(ctx context.Context, run *Run, projects []models.Project) {
	if len(projects) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(max(1, min(b.poolSize, len(projects))))

	for i := range projects {
		if b.scanner.Canceled(ctx, run) {
			run.Tracker.Infof(ctx, "Cancellation requested, skipping %d remaining projects", len(projects)-i)
			break
		}
		project := &projects[i]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					run.Tracker.Errorf(ctx, "Project %s aborted: %v", project.ProjectID, r)
					b.logger.Error("panic in project scan", "project", project.ProjectID, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			b.scanner.ScanProject(ctx, run, project)
			return nil
		})
	}
	_ = g.Wait()
}

// recordError appends to the scan's error message without sealing it.
func (b *BatchRunner) recordError(ctx context.Context, scanID uuid.UUID, cause error) {
	var scan models.Scan
	if err := b.db.WithContext(ctx).Select("id", "error_message").First(&scan, "id = ?", scanID).Error; err != nil {
		b.logger.Warn("failed to load scan for error", "scan_id", scanID, "error", err)
		return
	}

	msgs := []string{cause.Error()}
	if scan.ErrorMessage != "" {
		msgs = append([]string{scan.ErrorMessage}, msgs...)
	}
	err := b.db.WithContext(ctx).Model(&models.Scan{}).
		Where("id = ? AND status = ?", scanID, models.ScanStatusRunning).
		Update("error_message", strings.Join(msgs, "; ")).Error
	if err != nil {
		b.logger.Warn("failed to record scan error", "scan_id", scanID, "error", err)
	}
}
