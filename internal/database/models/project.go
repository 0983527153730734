package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Project struct {
	Base
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_projects_natural" json:"organization_id"`
	ProjectID      string         `gorm:"not null;uniqueIndex:idx_projects_natural" json:"project_id"`
	Name           string         `json:"name"`
	ProjectNumber  string         `json:"project_number"`
	LifecycleState string         `json:"lifecycle_state"`
	Labels         datatypes.JSON `json:"labels"`
	Inventory
}

func (Project) TableName() string { return "projects" }

func (p *Project) NaturalKey() map[string]any {
	return map[string]any{"organization_id": p.OrganizationID, "project_id": p.ProjectID}
}
