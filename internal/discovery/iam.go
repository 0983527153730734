package discovery

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"github.com/patrickmn/go-cache"
)

const (
	serviceIAM             = "iam.googleapis.com"
	serviceResourceManager = "cloudresourcemanager.googleapis.com"
)

func iamCollectors() []collector {
	return []collector{
		{kind: models.KindServiceAccounts, service: serviceIAM, collect: collectServiceAccounts},
		{kind: models.KindIAMRoles, service: serviceIAM, collect: collectCustomRoles},
		{kind: models.KindIAMBindings, service: serviceResourceManager, collect: collectBindings},
	}
}

// roleResolver caches role definitions fetched for bindings that reference
// roles the catalog has not seen. Predefined roles are shared by every
// project, so one fetch serves the whole process.
type roleResolver struct {
	defs *cache.Cache
}

func newRoleResolver(c *cache.Cache) roleResolver {
	return roleResolver{defs: c}
}

func (r roleResolver) definition(ctx context.Context, client gcp.Client, name string) (gcp.Role, error) {
	if v, ok := r.defs.Get(name); ok {
		return v.(gcp.Role), nil
	}
	role, err := client.GetRole(ctx, name)
	if err != nil {
		return gcp.Role{}, err
	}
	r.defs.SetDefault(name, role)
	return role, nil
}

func collectServiceAccounts(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListServiceAccounts, s.projectID()), func(sa gcp.ServiceAccount) error {
		return save(ctx, s, models.KindServiceAccounts, &models.ServiceAccount{
			Email:       sa.Email,
			ProjectID:   s.project.ID,
			Name:        sa.Name,
			DisplayName: sa.DisplayName,
			Description: sa.Description,
			UniqueID:    sa.UniqueID,
			Disabled:    sa.Disabled,
		})
	})
}

func collectCustomRoles(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListCustomRoles, s.projectID()), func(role gcp.Role) error {
		if role.Deleted {
			return nil
		}
		projectID := s.project.ID
		return save(ctx, s, models.KindIAMRoles, roleRecord(role, &projectID))
	})
}

func roleRecord(role gcp.Role, projectID *uuid.UUID) *models.IAMRole {
	return &models.IAMRole{
		Name:        role.Name,
		ProjectID:   projectID,
		Title:       role.Title,
		Description: role.Description,
		Stage:       role.Stage,
		Custom:      !strings.HasPrefix(role.Name, "roles/"),
		Permissions: models.JSON(role.Permissions),
	}
}

// collectBindings flattens the project policy into one row per role and
// member. Bindings whose role cannot be resolved are skipped.
func collectBindings(ctx context.Context, s *session) error {
	policy, err := s.client.GetIamPolicy(ctx, s.projectID())
	if err != nil {
		return err
	}

	for _, b := range policy.Bindings {
		roleID, err := s.roleID(ctx, b.Role)
		if err != nil {
			if err := s.skip(models.KindIAMBindings, b.Role, err); err != nil {
				return err
			}
			continue
		}

		for _, member := range b.Members {
			if err := save(ctx, s, models.KindIAMBindings, &models.IAMBinding{
				ProjectID:           s.project.ID,
				RoleID:              roleID,
				Member:              member,
				ConditionTitle:      b.ConditionTitle,
				ConditionExpression: b.ConditionExpression,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// roleID returns the catalog ID for a role name. Roles missing from the
// catalog are fetched and stored first; a role the API will not return is
// reported as a parent miss.
func (s *session) roleID(ctx context.Context, name string) (uuid.UUID, error) {
	byName := map[string]any{"name": name}

	id, err := parentID[models.IAMRole](ctx, s.db, byName)
	if !errors.Is(err, ErrParentNotFound) {
		return id, err
	}

	role, err := s.roles.definition(ctx, s.client, name)
	if err != nil {
		if gcp.Classify(err).Class == gcp.ClassWarning {
			return uuid.Nil, ErrParentNotFound
		}
		return uuid.Nil, err
	}
	if role.Name == "" {
		role.Name = name
	}
	if err := save(ctx, s, models.KindIAMRoles, roleRecord(role, nil)); err != nil {
		return uuid.Nil, err
	}
	// Another project may have inserted the role concurrently; the stored
	// row's ID is the one bindings must reference.
	return parentID[models.IAMRole](ctx, s.db, byName)
}
