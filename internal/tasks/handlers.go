package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/discovery"
	"github.com/hugh/gcp-inventory/pkg/util"
	"gorm.io/gorm"
)

// startUniqueFor stops the schedule sweep from stacking starts for an
// organization whose previous start has not been picked up yet.
const startUniqueFor = 5 * time.Minute

type Handler struct {
	db          *gorm.DB
	coordinator *discovery.Coordinator
	runner      *discovery.BatchRunner
	enqueuer    Enqueuer
	logger      *slog.Logger
	now         func() time.Time
}

func NewHandler(
	db *gorm.DB,
	coordinator *discovery.Coordinator,
	runner *discovery.BatchRunner,
	enqueuer Enqueuer,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		db:          db,
		coordinator: coordinator,
		runner:      runner,
		enqueuer:    enqueuer,
		logger:      logger,
		now:         time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeDiscoveryStart, h.HandleDiscoveryStart)
	mux.HandleFunc(TypeDiscoveryBatch, h.HandleDiscoveryBatch)
	mux.HandleFunc(TypeDiscoverySchedule, h.HandleDiscoverySchedule)
}

func (h *Handler) HandleDiscoveryStart(ctx context.Context, t *asynq.Task) error {
	var payload StartPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	logger := h.logger.With("organization_id", payload.OrganizationID, "trigger", payload.Trigger)
	logger.Info("starting discovery")

	handle, err := h.coordinator.StartScan(ctx, payload.OrganizationID, payload.Trigger)
	switch {
	case errors.Is(err, discovery.ErrOrgNotFound):
		return fmt.Errorf("start discovery: %w: %w", err, asynq.SkipRetry)
	case err != nil && handle != nil:
		// The scan record already says failed; a retry would start a new scan.
		logger.Error("discovery failed to start", "scan_id", handle.ScanID, "error", err)
		return fmt.Errorf("start discovery: %w: %w", err, asynq.SkipRetry)
	case err != nil:
		return fmt.Errorf("start discovery: %w", err)
	}

	if handle.Conflict {
		logger.Info("discovery already in progress", "scan_id", handle.ScanID, "status", handle.Status)
		return nil
	}

	logger.Info("discovery dispatched",
		"scan_id", handle.ScanID,
		"projects", handle.Projects,
		"batches", handle.TotalBatches,
		"status", handle.Status,
	)
	return nil
}

func (h *Handler) HandleDiscoveryBatch(ctx context.Context, t *asynq.Task) error {
	var payload BatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("running discovery batch",
		"scan_id", payload.ScanID,
		"batch", payload.BatchIndex,
		"projects", len(payload.ProjectIDs),
	)

	return h.runner.RunBatch(ctx, discovery.Batch{
		ScanID:     payload.ScanID,
		OrgID:      payload.OrganizationID,
		ProjectIDs: payload.ProjectIDs,
		Index:      payload.BatchIndex,
	})
}

// HandleDiscoverySchedule fails stale scans, then enqueues a start for every
// idle auto-discover organization whose schedule has fired since its last
// scan.
func (h *Handler) HandleDiscoverySchedule(ctx context.Context, _ *asynq.Task) error {
	if recovered, err := h.coordinator.RecoverStale(ctx, h.now()); err != nil {
		h.logger.Error("stale scan sweep failed", "error", err)
	} else if recovered > 0 {
		h.logger.Warn("released organizations held by stale scans", "count", recovered)
	}

	var orgs []models.Organization
	err := h.db.WithContext(ctx).
		Where("auto_discover = ? AND discovery_schedule <> ''", true).
		Where("scan_status NOT IN ?", []models.ScanStatus{models.ScanStatusRunning, models.ScanStatusCanceling}).
		Find(&orgs).Error
	if err != nil {
		return fmt.Errorf("loading scheduled organizations: %w", err)
	}

	now := h.now()
	queued := 0
	for i := range orgs {
		org := &orgs[i]

		var last time.Time
		if org.LastScanAt != nil {
			last = *org.LastScanAt
		}
		due, err := util.CronDue(org.DiscoverySchedule, last, now)
		if err != nil {
			h.logger.Warn("skipping organization with invalid schedule",
				"organization", org.Name, "schedule", org.DiscoverySchedule, "error", err)
			continue
		}
		if !due {
			continue
		}

		info, err := EnqueueStart(ctx, h.enqueuer, org.ID, models.ScanTriggerSchedule, startUniqueFor)
		if errors.Is(err, asynq.ErrDuplicateTask) {
			continue
		}
		if err != nil {
			h.logger.Error("failed to enqueue scheduled discovery", "organization", org.Name, "error", err)
			continue
		}
		queued++
		h.logger.Info("scheduled discovery queued", "organization", org.Name, "task_id", info.ID)
	}

	h.logger.Debug("schedule sweep done", "candidates", len(orgs), "queued", queued)
	return nil
}
