package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type GKECluster struct {
	Base
	ProjectID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_gke_clusters_natural" json:"project_id"`
	Location      string         `gorm:"not null;uniqueIndex:idx_gke_clusters_natural" json:"location"`
	Name          string         `gorm:"not null;uniqueIndex:idx_gke_clusters_natural" json:"name"`
	NetworkID     *uuid.UUID     `gorm:"type:uuid;index" json:"network_id,omitempty"`
	SubnetID      *uuid.UUID     `gorm:"type:uuid;index" json:"subnet_id,omitempty"`
	MasterVersion string         `json:"master_version"`
	Status        string         `json:"status"`
	Endpoint      string         `json:"endpoint,omitempty"`
	NodeCount     int64          `json:"node_count"`
	Labels        datatypes.JSON `json:"labels"`
	SelfLink      string         `json:"self_link"`
	Inventory
}

func (GKECluster) TableName() string { return "gke_clusters" }

func (c *GKECluster) NaturalKey() map[string]any {
	return map[string]any{"project_id": c.ProjectID, "location": c.Location, "name": c.Name}
}

type GKENodePool struct {
	Base
	ClusterID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_gke_node_pools_natural" json:"cluster_id"`
	Name        string    `gorm:"not null;uniqueIndex:idx_gke_node_pools_natural" json:"name"`
	MachineType string    `json:"machine_type"`
	DiskSizeGB  int64     `json:"disk_size_gb"`
	NodeCount   int64     `json:"node_count"`
	Autoscaling bool      `json:"autoscaling"`
	MinNodes    int64     `json:"min_nodes"`
	MaxNodes    int64     `json:"max_nodes"`
	Version     string    `json:"version"`
	Status      string    `json:"status"`
	Inventory
}

func (GKENodePool) TableName() string { return "gke_node_pools" }

func (p *GKENodePool) NaturalKey() map[string]any {
	return map[string]any{"cluster_id": p.ClusterID, "name": p.Name}
}

type CloudFunction struct {
	Base
	ProjectID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_cloud_functions_natural" json:"project_id"`
	Region              string         `gorm:"not null;uniqueIndex:idx_cloud_functions_natural" json:"region"`
	Name                string         `gorm:"not null;uniqueIndex:idx_cloud_functions_natural" json:"name"`
	Runtime             string         `json:"runtime"`
	EntryPoint          string         `json:"entry_point"`
	Status              string         `json:"status"`
	MemoryMB            int64          `json:"memory_mb"`
	TimeoutSeconds      int64          `json:"timeout_seconds"`
	ServiceAccountEmail string         `json:"service_account_email,omitempty"`
	TriggerURL          string         `json:"trigger_url,omitempty"`
	Labels              datatypes.JSON `json:"labels"`
	Inventory
}

func (CloudFunction) TableName() string { return "cloud_functions" }

func (f *CloudFunction) NaturalKey() map[string]any {
	return map[string]any{"project_id": f.ProjectID, "region": f.Region, "name": f.Name}
}

type CloudRunService struct {
	Base
	ProjectID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_cloud_run_services_natural" json:"project_id"`
	Region              string         `gorm:"not null;uniqueIndex:idx_cloud_run_services_natural" json:"region"`
	Name                string         `gorm:"not null;uniqueIndex:idx_cloud_run_services_natural" json:"name"`
	URL                 string         `json:"url,omitempty"`
	Image               string         `json:"image"`
	ServiceAccountEmail string         `json:"service_account_email,omitempty"`
	Labels              datatypes.JSON `json:"labels"`
	Inventory
}

func (CloudRunService) TableName() string { return "cloud_run_services" }

func (s *CloudRunService) NaturalKey() map[string]any {
	return map[string]any{"project_id": s.ProjectID, "region": s.Region, "name": s.Name}
}
