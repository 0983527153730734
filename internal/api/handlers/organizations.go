package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/gcp-inventory/internal/api/dto"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/discovery"
	"github.com/hugh/gcp-inventory/internal/tasks"
	"gorm.io/gorm"
)

// startUniqueFor rejects a second start for the same organization while the
// first is still waiting in the queue.
const startUniqueFor = time.Minute

// ScanController is the part of discovery.Coordinator the API drives directly.
type ScanController interface {
	RequestCancel(ctx context.Context, orgID uuid.UUID) (*discovery.CancelResult, error)
	Reset(ctx context.Context, orgID uuid.UUID) error
}

type OrganizationHandler struct {
	db       *gorm.DB
	scans    ScanController
	enqueuer tasks.Enqueuer
	logger   *slog.Logger
}

func NewOrganizationHandler(db *gorm.DB, scans ScanController, enqueuer tasks.Enqueuer, logger *slog.Logger) *OrganizationHandler {
	return &OrganizationHandler{db: db, scans: scans, enqueuer: enqueuer, logger: logger}
}

// List handles GET /api/v1/organizations
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	var orgs []models.Organization
	if err := h.db.WithContext(r.Context()).Order("name").Find(&orgs).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list organizations")
		return
	}

	resp := make([]dto.OrganizationResponse, len(orgs))
	for i := range orgs {
		resp[i] = dto.NewOrganizationResponse(&orgs[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/organizations/{id}
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	org, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dto.NewOrganizationResponse(org))
}

// StartScan handles POST /api/v1/organizations/{id}/scans. The scan itself is
// created by the worker that picks up the start task.
func (h *OrganizationHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	org, ok := h.load(w, r)
	if !ok {
		return
	}

	if org.ScanStatus.Active() {
		h.conflict(w, org, "A scan is already in progress")
		return
	}

	info, err := tasks.EnqueueStart(r.Context(), h.enqueuer, org.ID, models.ScanTriggerAPI, startUniqueFor)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		h.conflict(w, org, "A scan start is already queued")
		return
	}
	if err != nil {
		h.logger.Error("failed to enqueue scan", "organization", org.Name, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Failed to enqueue scan")
		return
	}

	h.logger.Info("scan queued", "organization", org.Name, "task_id", info.ID)
	writeJSON(w, http.StatusAccepted, dto.StartScanResponse{
		OrganizationID: org.ID.String(),
		TaskID:         info.ID,
		Queue:          info.Queue,
	})
}

// Cancel handles POST /api/v1/organizations/{id}/cancel
func (h *OrganizationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "organization")
	if !ok {
		return
	}

	res, err := h.scans.RequestCancel(r.Context(), orgID)
	switch {
	case errors.Is(err, discovery.ErrOrgNotFound):
		writeError(w, http.StatusNotFound, "Organization not found")
		return
	case errors.Is(err, discovery.ErrNotRunning):
		writeError(w, http.StatusConflict, "No scan is running")
		return
	case err != nil:
		h.logger.Error("failed to cancel scan", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to cancel scan")
		return
	}

	resp := dto.CancelResponse{AlreadyCanceling: res.AlreadyCanceling}
	if res.ScanID != uuid.Nil {
		resp.ScanID = res.ScanID.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// Reset handles POST /api/v1/organizations/{id}/reset
func (h *OrganizationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "organization")
	if !ok {
		return
	}

	err := h.scans.Reset(r.Context(), orgID)
	switch {
	case errors.Is(err, discovery.ErrOrgNotFound):
		writeError(w, http.StatusNotFound, "Organization not found")
	case errors.Is(err, discovery.ErrConflict):
		writeError(w, http.StatusConflict, "Cannot reset while a scan is in progress")
	case err != nil:
		h.logger.Error("failed to reset organization", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset organization")
	default:
		writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Organization reset"})
	}
}

func (h *OrganizationHandler) load(w http.ResponseWriter, r *http.Request) (*models.Organization, bool) {
	orgID, ok := pathID(w, r, "organization")
	if !ok {
		return nil, false
	}

	var org models.Organization
	err := h.db.WithContext(r.Context()).First(&org, "id = ?", orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Organization not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load organization")
		return nil, false
	}
	return &org, true
}

func (h *OrganizationHandler) conflict(w http.ResponseWriter, org *models.Organization, msg string) {
	resp := dto.ConflictResponse{Error: msg, ScanStatus: string(org.ScanStatus)}
	if org.CurrentScanID != nil {
		resp.ScanID = org.CurrentScanID.String()
	}
	writeJSON(w, http.StatusConflict, resp)
}
