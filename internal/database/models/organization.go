package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanStatus is shared by Organization.ScanStatus and Scan.Status. Scans only
// ever take running, canceled, completed or failed.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCanceling ScanStatus = "canceling"
	ScanStatusCanceled  ScanStatus = "canceled"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// Active reports whether a scan currently owns the organization.
func (s ScanStatus) Active() bool {
	return s == ScanStatusRunning || s == ScanStatusCanceling
}

func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCanceled || s == ScanStatusCompleted || s == ScanStatusFailed
}

type Organization struct {
	Base
	Name string `gorm:"uniqueIndex;not null" json:"name"`
	// GCPOrganizationID narrows project listing to one GCP organization node.
	GCPOrganizationID       string `json:"gcp_organization_id,omitempty"`
	EncryptedServiceAccount []byte `json:"-"`

	DiscoverNetworking bool `gorm:"not null" json:"discover_networking"`
	DiscoverCompute    bool `gorm:"not null" json:"discover_compute"`
	DiscoverDatabases  bool `gorm:"not null" json:"discover_databases"`
	DiscoverStorage    bool `gorm:"not null" json:"discover_storage"`
	DiscoverKubernetes bool `gorm:"not null" json:"discover_kubernetes"`
	DiscoverServerless bool `gorm:"not null" json:"discover_serverless"`
	DiscoverIAM        bool `gorm:"not null" json:"discover_iam"`

	AutoDiscover      bool   `json:"auto_discover"`
	DiscoverySchedule string `json:"discovery_schedule,omitempty"`

	ScanStatus      ScanStatus `gorm:"not null;index;default:'pending'" json:"scan_status"`
	CancelRequested bool       `json:"cancel_requested"`
	CurrentScanID   *uuid.UUID `gorm:"type:uuid" json:"current_scan_id,omitempty"`
	LastScanAt      *time.Time `json:"last_scan_at,omitempty"`
	ScanError       string     `json:"scan_error,omitempty"`

	Projects []Project `gorm:"foreignKey:OrganizationID" json:"-"`
	Scans    []Scan    `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// NewOrganization returns an organization with every resource family enabled.
func NewOrganization(name string) *Organization {
	return &Organization{
		Name:               name,
		DiscoverNetworking: true,
		DiscoverCompute:    true,
		DiscoverDatabases:  true,
		DiscoverStorage:    true,
		DiscoverKubernetes: true,
		DiscoverServerless: true,
		DiscoverIAM:        true,
		ScanStatus:         ScanStatusPending,
	}
}
