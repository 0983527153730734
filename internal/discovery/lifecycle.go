package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"gorm.io/gorm"
)

// Organization scan state transitions. Each is a single conditional UPDATE so
// concurrent callers race on the database row rather than on in-process
// state; zero rows affected means the organization was not in a source state.
//
//	claim:  pending|canceled|completed|failed -> running
//	cancel: running -> canceling
//	finish: running|canceling -> completed|canceled|failed (owning scan only)
//	reset:  pending|canceled|completed|failed -> pending
//	orphan: running|canceling -> failed (no running scan owns it)

var idleStatuses = []models.ScanStatus{
	models.ScanStatusPending,
	models.ScanStatusCanceled,
	models.ScanStatusCompleted,
	models.ScanStatusFailed,
}

var activeStatuses = []models.ScanStatus{
	models.ScanStatusRunning,
	models.ScanStatusCanceling,
}

func loadOrganization(ctx context.Context, db *gorm.DB, orgID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	return &org, nil
}

func claimOrganization(ctx context.Context, db *gorm.DB, orgID, scanID uuid.UUID) error {
	res := db.WithContext(ctx).Model(&models.Organization{}).
		Where("id = ? AND scan_status IN ?", orgID, idleStatuses).
		Updates(map[string]any{
			"scan_status":      models.ScanStatusRunning,
			"cancel_requested": false,
			"current_scan_id":  scanID,
			"scan_error":       "",
		})
	if res.Error != nil {
		return fmt.Errorf("claiming organization: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// cancelOrganization moves a running organization to canceling. already is
// true when a cancel was requested before.
func cancelOrganization(ctx context.Context, db *gorm.DB, orgID uuid.UUID) (already bool, err error) {
	res := db.WithContext(ctx).Model(&models.Organization{}).
		Where("id = ? AND scan_status = ?", orgID, models.ScanStatusRunning).
		Updates(map[string]any{
			"scan_status":      models.ScanStatusCanceling,
			"cancel_requested": true,
		})
	if res.Error != nil {
		return false, fmt.Errorf("canceling organization: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return false, nil
	}

	org, err := loadOrganization(ctx, db, orgID)
	if err != nil {
		return false, err
	}
	if org.ScanStatus == models.ScanStatusCanceling {
		return true, nil
	}
	return false, ErrNotRunning
}

// finishOrganization records the outcome of the scan that owns the
// organization. A cancel that lands after the last batch finished does not
// block completion.
func finishOrganization(ctx context.Context, db *gorm.DB, orgID, scanID uuid.UUID, status models.ScanStatus, scanErr string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("finishing organization with non-terminal status %q", status)
	}
	res := db.WithContext(ctx).Model(&models.Organization{}).
		Where("id = ? AND current_scan_id = ? AND scan_status IN ?", orgID, scanID, activeStatuses).
		Updates(map[string]any{
			"scan_status":      status,
			"cancel_requested": false,
			"last_scan_at":     now,
			"scan_error":       scanErr,
		})
	if res.Error != nil {
		return fmt.Errorf("finishing organization: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func resetOrganization(ctx context.Context, db *gorm.DB, orgID uuid.UUID) error {
	res := db.WithContext(ctx).Model(&models.Organization{}).
		Where("id = ? AND scan_status IN ?", orgID, idleStatuses).
		Updates(map[string]any{
			"scan_status":      models.ScanStatusPending,
			"cancel_requested": false,
			"current_scan_id":  nil,
			"scan_error":       "",
		})
	if res.Error != nil {
		return fmt.Errorf("resetting organization: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := loadOrganization(ctx, db, orgID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// staleTaskReset is the organization error left by releaseOrphaned.
const staleTaskReset = "Stale task reset"

// releaseOrphaned fails active organizations not touched since cutoff whose
// current scan is missing or no longer running. The cutoff keeps it clear of
// StartScan, which claims the organization before inserting the scan.
func releaseOrphaned(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error) {
	running := db.Model(&models.Scan{}).Select("id").Where("status = ?", models.ScanStatusRunning)
	res := db.WithContext(ctx).Model(&models.Organization{}).
		Where("scan_status IN ? AND updated_at < ?", activeStatuses, cutoff).
		Where("current_scan_id IS NULL OR current_scan_id NOT IN (?)", running).
		Updates(map[string]any{
			"scan_status":      models.ScanStatusFailed,
			"cancel_requested": false,
			"last_scan_at":     now,
			"scan_error":       staleTaskReset,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("releasing orphaned organizations: %w", res.Error)
	}
	return res.RowsAffected, nil
}
