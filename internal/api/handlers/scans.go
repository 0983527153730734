package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hugh/gcp-inventory/internal/api/dto"
	"github.com/hugh/gcp-inventory/internal/api/validation"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/progress"
	"gorm.io/gorm"
)

// logTailLines is how many live log lines GET /scans/{id} returns.
const logTailLines = 50

type ScanHandler struct {
	db     *gorm.DB
	store  progress.Store
	logger *slog.Logger
}

func NewScanHandler(db *gorm.DB, store progress.Store, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{db: db, store: store, logger: logger}
}

// List handles GET /api/v1/organizations/{id}/scans
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "organization")
	if !ok {
		return
	}

	pagination := dto.PaginationFromQuery(r.URL.Query())

	query := h.db.WithContext(r.Context()).Model(&models.Scan{}).Where("organization_id = ?", orgID)

	if status := r.URL.Query().Get("status"); status != "" {
		if !validation.IsValidScanStatus(status) {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Validation failed",
				Details: map[string]string{"status": "Invalid scan status"},
			})
			return
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count scans")
		return
	}

	var scans []models.Scan
	err := query.
		Omit("log_output").
		Order("started_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&scans).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scans")
		return
	}

	resp := make([]dto.ScanResponse, len(scans))
	for i := range scans {
		resp[i] = dto.NewScanResponse(&scans[i], false)
	}

	writeJSON(w, http.StatusOK, dto.NewPage(resp, total, pagination))
}

// Get handles GET /api/v1/scans/{id}. A running scan also reports the counts
// and log tail held in the coordination store, which run ahead of the record.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	scanID, ok := pathID(w, r, "scan")
	if !ok {
		return
	}

	var scan models.Scan
	err := h.db.WithContext(r.Context()).First(&scan, "id = ?", scanID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get scan")
		return
	}

	resp := dto.NewScanResponse(&scan, true)
	if scan.Status == models.ScanStatusRunning && h.store != nil {
		resp.Live = h.live(r, &scan)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ScanHandler) live(r *http.Request, scan *models.Scan) *dto.ScanProgress {
	ctx := r.Context()

	counts, err := h.store.Counts(ctx, scan.ID)
	if err != nil {
		h.logger.Warn("failed to read live counts", "scan_id", scan.ID, "error", err)
		return nil
	}
	logs, err := h.store.Logs(ctx, scan.ID)
	if err != nil {
		h.logger.Warn("failed to read live log", "scan_id", scan.ID, "error", err)
	}
	if len(logs) > logTailLines {
		logs = logs[len(logs)-logTailLines:]
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	if counts == nil {
		counts = map[string]int64{}
	}
	if logs == nil {
		logs = []string{}
	}
	return &dto.ScanProgress{Counts: counts, TotalResources: total, LogTail: logs}
}
