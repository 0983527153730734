package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Instance struct {
	Base
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_instances_natural" json:"project_id"`
	Zone        string         `gorm:"not null;uniqueIndex:idx_instances_natural" json:"zone"`
	Name        string         `gorm:"not null;uniqueIndex:idx_instances_natural" json:"name"`
	NetworkID   *uuid.UUID     `gorm:"type:uuid;index" json:"network_id,omitempty"`
	SubnetID    *uuid.UUID     `gorm:"type:uuid;index" json:"subnet_id,omitempty"`
	MachineType string         `json:"machine_type"`
	Status      string         `json:"status"`
	InternalIP  string         `json:"internal_ip,omitempty"`
	ExternalIP  string         `json:"external_ip,omitempty"`
	BootDiskGB  int64          `json:"boot_disk_gb"`
	Labels      datatypes.JSON `json:"labels"`
	SelfLink    string         `json:"self_link"`
	Inventory
}

func (Instance) TableName() string { return "instances" }

func (i *Instance) NaturalKey() map[string]any {
	return map[string]any{"project_id": i.ProjectID, "zone": i.Zone, "name": i.Name}
}

type InstanceTemplate struct {
	Base
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_instance_templates_natural" json:"project_id"`
	Name        string         `gorm:"not null;uniqueIndex:idx_instance_templates_natural" json:"name"`
	MachineType string         `json:"machine_type"`
	Description string         `json:"description,omitempty"`
	Labels      datatypes.JSON `json:"labels"`
	SelfLink    string         `json:"self_link"`
	Inventory
}

func (InstanceTemplate) TableName() string { return "instance_templates" }

func (t *InstanceTemplate) NaturalKey() map[string]any {
	return map[string]any{"project_id": t.ProjectID, "name": t.Name}
}

// InstanceGroup Location is a zone or a region.
type InstanceGroup struct {
	Base
	ProjectID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_instance_groups_natural" json:"project_id"`
	Location  string     `gorm:"not null;uniqueIndex:idx_instance_groups_natural" json:"location"`
	Name      string     `gorm:"not null;uniqueIndex:idx_instance_groups_natural" json:"name"`
	NetworkID *uuid.UUID `gorm:"type:uuid;index" json:"network_id,omitempty"`
	Size      int64      `json:"size"`
	SelfLink  string     `json:"self_link"`
	Inventory
}

func (InstanceGroup) TableName() string { return "instance_groups" }

func (g *InstanceGroup) NaturalKey() map[string]any {
	return map[string]any{"project_id": g.ProjectID, "location": g.Location, "name": g.Name}
}

type Disk struct {
	Base
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_disks_natural" json:"project_id"`
	Zone        string         `gorm:"not null;uniqueIndex:idx_disks_natural" json:"zone"`
	Name        string         `gorm:"not null;uniqueIndex:idx_disks_natural" json:"name"`
	SizeGB      int64          `json:"size_gb"`
	DiskType    string         `json:"disk_type"`
	Status      string         `json:"status"`
	SourceImage string         `json:"source_image,omitempty"`
	Users       datatypes.JSON `json:"users"`
	Labels      datatypes.JSON `json:"labels"`
	SelfLink    string         `json:"self_link"`
	Inventory
}

func (Disk) TableName() string { return "disks" }

func (d *Disk) NaturalKey() map[string]any {
	return map[string]any{"project_id": d.ProjectID, "zone": d.Zone, "name": d.Name}
}
