package dto

import (
	"time"

	"github.com/hugh/gcp-inventory/internal/database/models"
)

type OrganizationResponse struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	GCPOrganizationID string     `json:"gcp_organization_id,omitempty"`
	ScanStatus        string     `json:"scan_status"`
	CancelRequested   bool       `json:"cancel_requested"`
	CurrentScanID     string     `json:"current_scan_id,omitempty"`
	LastScanAt        *time.Time `json:"last_scan_at,omitempty"`
	ScanError         string     `json:"scan_error,omitempty"`
	AutoDiscover      bool       `json:"auto_discover"`
	DiscoverySchedule string     `json:"discovery_schedule,omitempty"`
	Discover          Toggles    `json:"discover"`
}

type Toggles struct {
	Networking bool `json:"networking"`
	Compute    bool `json:"compute"`
	Databases  bool `json:"databases"`
	Storage    bool `json:"storage"`
	Kubernetes bool `json:"kubernetes"`
	Serverless bool `json:"serverless"`
	IAM        bool `json:"iam"`
}

func NewOrganizationResponse(org *models.Organization) OrganizationResponse {
	resp := OrganizationResponse{
		ID:                org.ID.String(),
		Name:              org.Name,
		GCPOrganizationID: org.GCPOrganizationID,
		ScanStatus:        string(org.ScanStatus),
		CancelRequested:   org.CancelRequested,
		LastScanAt:        org.LastScanAt,
		ScanError:         org.ScanError,
		AutoDiscover:      org.AutoDiscover,
		DiscoverySchedule: org.DiscoverySchedule,
		Discover: Toggles{
			Networking: org.DiscoverNetworking,
			Compute:    org.DiscoverCompute,
			Databases:  org.DiscoverDatabases,
			Storage:    org.DiscoverStorage,
			Kubernetes: org.DiscoverKubernetes,
			Serverless: org.DiscoverServerless,
			IAM:        org.DiscoverIAM,
		},
	}
	if org.CurrentScanID != nil {
		resp.CurrentScanID = org.CurrentScanID.String()
	}
	return resp
}

type ScanResponse struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	Status         string           `json:"status"`
	Trigger        string           `json:"trigger"`
	TaskID         string           `json:"task_id,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	TotalBatches   int              `json:"total_batches"`
	TotalResources int64            `json:"total_resources"`
	Counts         map[string]int64 `json:"counts"`
	Error          string           `json:"error,omitempty"`
	LogOutput      string           `json:"log_output,omitempty"`
	// Live is set while the scan is running and reads the coordination store.
	Live *ScanProgress `json:"live,omitempty"`
}

type ScanProgress struct {
	Counts         map[string]int64 `json:"counts"`
	TotalResources int64            `json:"total_resources"`
	LogTail        []string         `json:"log_tail"`
}

// NewScanResponse converts a scan. The log is included only when withLog is set.
func NewScanResponse(scan *models.Scan, withLog bool) ScanResponse {
	resp := ScanResponse{
		ID:             scan.ID.String(),
		OrganizationID: scan.OrganizationID.String(),
		Status:         string(scan.Status),
		Trigger:        string(scan.Trigger),
		TaskID:         scan.TaskID,
		StartedAt:      scan.StartedAt,
		CompletedAt:    scan.CompletedAt,
		TotalBatches:   scan.TotalBatches,
		TotalResources: scan.TotalResources,
		Counts:         scan.CountMap(),
		Error:          scan.ErrorMessage,
	}
	if withLog {
		resp.LogOutput = scan.LogOutput
	}
	return resp
}

type StartScanResponse struct {
	OrganizationID string `json:"organization_id"`
	TaskID         string `json:"task_id"`
	Queue          string `json:"queue"`
}

// ConflictResponse is returned with 409 when a scan is already in flight.
type ConflictResponse struct {
	Error      string `json:"error"`
	ScanID     string `json:"scan_id,omitempty"`
	ScanStatus string `json:"scan_status"`
}

type CancelResponse struct {
	ScanID           string `json:"scan_id,omitempty"`
	AlreadyCanceling bool   `json:"already_canceling"`
}
