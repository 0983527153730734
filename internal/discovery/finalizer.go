package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/metrics"
	"github.com/hugh/gcp-inventory/internal/progress"
	"gorm.io/gorm"
)

// Finalizer seals scan records. Every write is conditional on the scan still
// being running, so sealing twice is harmless.
type Finalizer struct {
	db     *gorm.DB
	store  progress.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewFinalizer(db *gorm.DB, store progress.Store, logger *slog.Logger) *Finalizer {
	return &Finalizer{db: db, store: store, logger: logger, now: time.Now}
}

func (f *Finalizer) loadScan(ctx context.Context, scanID uuid.UUID) (*models.Scan, error) {
	var scan models.Scan
	if err := f.db.WithContext(ctx).First(&scan, "id = ?", scanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("loading scan: %w", err)
	}
	return &scan, nil
}

// cancelRequested checks the Store's cancel key and the organization flag.
func (f *Finalizer) cancelRequested(ctx context.Context, scan *models.Scan) bool {
	if ok, err := f.store.CancelRequested(ctx, scan.ID); err == nil && ok {
		return true
	}
	var org models.Organization
	if err := f.db.WithContext(ctx).First(&org, "id = ?", scan.OrganizationID).Error; err != nil {
		return false
	}
	return org.CancelRequested || org.ScanStatus == models.ScanStatusCanceling
}

// merge folds a progress snapshot into the scan record. Stored counts never
// go down and buffered deltas are added on top. The Store's log list replaces
// the stored log when it could be read, otherwise locally buffered lines are
// appended.
func merge(scan *models.Scan, snap progress.Snapshot) {
	counts := scan.CountMap()
	for kind, n := range snap.Counts {
		if n > counts[kind] {
			counts[kind] = n
		}
	}
	for kind, n := range snap.Buffered {
		counts[kind] += n
	}
	scan.ApplyCounts(counts)

	switch {
	case snap.StoreLogs:
		scan.LogOutput = strings.Join(snap.Lines, "\n")
	case len(snap.Lines) > 0:
		lines := snap.Lines
		if scan.LogOutput != "" {
			lines = append([]string{scan.LogOutput}, lines...)
		}
		scan.LogOutput = strings.Join(lines, "\n")
	}
}

// Flush copies the tracker's progress into the scan record without sealing
// it. Sealed scans are left untouched.
func (f *Finalizer) Flush(ctx context.Context, tracker *progress.Tracker) error {
	scan, err := f.loadScan(ctx, tracker.ScanID())
	if err != nil {
		return err
	}
	if scan.Status != models.ScanStatusRunning {
		return nil
	}

	snap := tracker.Snapshot(ctx)
	merge(scan, snap)

	updates := scan.CountColumns()
	updates["log_output"] = scan.LogOutput
	res := f.db.WithContext(ctx).Model(&models.Scan{}).
		Where("id = ? AND status = ?", scan.ID, models.ScanStatusRunning).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("flushing scan progress: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		tracker.Committed(snap)
	}
	return nil
}

// Finalize seals a running scan as completed, or canceled when a cancel was
// requested, and releases the organization. It returns the scan's final
// status; a scan that is already sealed is returned as is.
func (f *Finalizer) Finalize(ctx context.Context, scanID uuid.UUID) (models.ScanStatus, error) {
	scan, err := f.loadScan(ctx, scanID)
	if err != nil {
		return "", err
	}
	if scan.Status != models.ScanStatusRunning {
		return scan.Status, nil
	}

	tracker := progress.NewTracker(f.store, scanID, f.logger)
	status := models.ScanStatusCompleted
	if f.cancelRequested(ctx, scan) {
		status = models.ScanStatusCanceled
		tracker.Infof(ctx, "Discovery canceled")
	} else {
		tracker.Infof(ctx, "Discovery completed")
	}

	merge(scan, tracker.Snapshot(ctx))

	sealed, err := f.seal(ctx, scan, status, "")
	if err != nil {
		return "", err
	}
	if !sealed {
		current, err := f.loadScan(ctx, scanID)
		if err != nil {
			return "", err
		}
		return current.Status, nil
	}

	if err := f.store.Clear(ctx, scanID); err != nil {
		f.logger.Warn("failed to clear progress keys", "scan_id", scanID, "error", err)
	}
	f.logger.Info("scan finalized",
		"scan_id", scanID,
		"status", status,
		"total_resources", scan.TotalResources,
	)
	return status, nil
}

// Fail seals a running scan as failed with cause as its error message. The
// Store keys are left to expire so in-flight batches still see the cancel
// flag.
func (f *Finalizer) Fail(ctx context.Context, scanID uuid.UUID, cause error) error {
	scan, err := f.loadScan(ctx, scanID)
	if err != nil {
		return err
	}
	if scan.Status != models.ScanStatusRunning {
		return nil
	}

	tracker := progress.NewTracker(f.store, scanID, f.logger)
	tracker.Errorf(ctx, "Discovery failed: %v", cause)
	merge(scan, tracker.Snapshot(ctx))

	msg := cause.Error()
	if scan.ErrorMessage != "" {
		msg = scan.ErrorMessage + "; " + msg
	}
	_, err = f.seal(ctx, scan, models.ScanStatusFailed, msg)
	return err
}

// seal writes the terminal scan state and the organization transition in one
// transaction. It reports false when another caller sealed the scan first.
func (f *Finalizer) seal(ctx context.Context, scan *models.Scan, status models.ScanStatus, errMsg string) (bool, error) {
	now := f.now()
	sealed := false

	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := scan.CountColumns()
		updates["status"] = status
		updates["completed_at"] = now
		updates["log_output"] = scan.LogOutput
		if errMsg != "" {
			updates["error_message"] = errMsg
		}

		res := tx.Model(&models.Scan{}).
			Where("id = ? AND status = ?", scan.ID, models.ScanStatusRunning).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("sealing scan: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		sealed = true

		err := finishOrganization(ctx, tx, scan.OrganizationID, scan.ID, status, errMsg, now)
		if errors.Is(err, ErrConflict) {
			// The organization was reset or moved to a newer scan.
			f.logger.Warn("organization no longer owned by scan", "scan_id", scan.ID, "organization_id", scan.OrganizationID)
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}

	if sealed {
		scan.Status = status
		scan.CompletedAt = &now
		metrics.ScansFinished.WithLabelValues(string(status)).Inc()
	}
	return sealed, nil
}
