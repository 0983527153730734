package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ServiceAccount struct {
	Base
	Email       string    `gorm:"not null;uniqueIndex" json:"email"`
	ProjectID   uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	UniqueID    string    `json:"unique_id"`
	Disabled    bool      `json:"disabled"`
	Inventory
}

func (ServiceAccount) TableName() string { return "service_accounts" }

func (s *ServiceAccount) NaturalKey() map[string]any {
	return map[string]any{"email": s.Email}
}

// IAMRole holds both custom roles (ProjectID set) and the predefined roles
// that bindings reference (ProjectID nil). Role names are globally unique.
type IAMRole struct {
	Base
	Name        string         `gorm:"not null;uniqueIndex" json:"name"`
	ProjectID   *uuid.UUID     `gorm:"type:uuid;index" json:"project_id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Stage       string         `json:"stage"`
	Custom      bool           `json:"custom"`
	Permissions datatypes.JSON `json:"permissions"`
	Inventory
}

func (IAMRole) TableName() string { return "iam_roles" }

func (r *IAMRole) NaturalKey() map[string]any {
	return map[string]any{"name": r.Name}
}

type IAMBinding struct {
	Base
	ProjectID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_iam_bindings_natural" json:"project_id"`
	RoleID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_iam_bindings_natural" json:"role_id"`
	Member              string    `gorm:"not null;uniqueIndex:idx_iam_bindings_natural" json:"member"`
	ConditionTitle      string    `gorm:"not null;default:'';uniqueIndex:idx_iam_bindings_natural" json:"condition_title,omitempty"`
	ConditionExpression string    `json:"condition_expression,omitempty"`
	Inventory
}

func (IAMBinding) TableName() string { return "iam_bindings" }

func (b *IAMBinding) NaturalKey() map[string]any {
	return map[string]any{
		"project_id":      b.ProjectID,
		"role_id":         b.RoleID,
		"member":          b.Member,
		"condition_title": b.ConditionTitle,
	}
}
