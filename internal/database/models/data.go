package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SQLInstance struct {
	Base
	ProjectID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_sql_instances_natural" json:"project_id"`
	Name            string         `gorm:"not null;uniqueIndex:idx_sql_instances_natural" json:"name"`
	DatabaseType    string         `json:"database_type"`
	DatabaseVersion string         `json:"database_version"`
	Region          string         `json:"region"`
	Tier            string         `json:"tier"`
	DiskSizeGB      int64          `json:"disk_size_gb"`
	State           string         `json:"state"`
	PrivateNetwork  string         `json:"private_network,omitempty"`
	IPAddresses     datatypes.JSON `json:"ip_addresses"`
	ConnectionName  string         `json:"connection_name"`
	Labels          datatypes.JSON `json:"labels"`
	Inventory
}

func (SQLInstance) TableName() string { return "sql_instances" }

func (s *SQLInstance) NaturalKey() map[string]any {
	return map[string]any{"project_id": s.ProjectID, "name": s.Name}
}

type SpannerInstance struct {
	Base
	ProjectID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_spanner_instances_natural" json:"project_id"`
	Name            string         `gorm:"not null;uniqueIndex:idx_spanner_instances_natural" json:"name"`
	DisplayName     string         `json:"display_name"`
	Config          string         `json:"config"`
	NodeCount       int64          `json:"node_count"`
	ProcessingUnits int64          `json:"processing_units"`
	State           string         `json:"state"`
	Labels          datatypes.JSON `json:"labels"`
	Inventory
}

func (SpannerInstance) TableName() string { return "spanner_instances" }

func (s *SpannerInstance) NaturalKey() map[string]any {
	return map[string]any{"project_id": s.ProjectID, "name": s.Name}
}

// Bucket names are globally unique, so the natural key ignores the project.
type Bucket struct {
	Base
	Name                   string         `gorm:"not null;uniqueIndex" json:"name"`
	ProjectID              uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Location               string         `json:"location"`
	LocationType           string         `json:"location_type"`
	StorageClass           string         `json:"storage_class"`
	Versioning             bool           `json:"versioning"`
	UniformAccess          bool           `json:"uniform_access"`
	PublicAccessPrevention string         `json:"public_access_prevention"`
	Labels                 datatypes.JSON `json:"labels"`
	Inventory
}

func (Bucket) TableName() string { return "buckets" }

func (b *Bucket) NaturalKey() map[string]any {
	return map[string]any{"name": b.Name}
}
