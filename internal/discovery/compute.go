package discovery

import (
	"context"
	"strings"

	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
)

func computeCollectors() []collector {
	return []collector{
		{kind: models.KindInstances, service: serviceCompute, collect: collectInstances},
		{kind: models.KindInstanceTemplate, service: serviceCompute, collect: collectInstanceTemplates},
		{kind: models.KindInstanceGroups, service: serviceCompute, collect: collectInstanceGroups},
		{kind: models.KindDisks, service: serviceCompute, collect: collectDisks},
	}
}

// zoneRegion maps a zone such as "us-central1-a" to its region. Regions and
// unrecognised names are returned unchanged.
func zoneRegion(zone string) string {
	i := strings.LastIndex(zone, "-")
	if i < 0 || len(zone)-i != 2 {
		return zone
	}
	return zone[:i]
}

func collectInstances(ctx context.Context, s *session) error {
	return paginateScoped(ctx, forProject(s.client.ListInstances, s.projectID()), func(in gcp.Instance) error {
		networkID, err := s.optionalNetworkID(ctx, in.Network)
		if err != nil {
			return err
		}
		subnetID, err := s.optionalSubnetID(ctx, zoneRegion(in.Zone), in.Subnetwork)
		if err != nil {
			return err
		}
		return save(ctx, s, models.KindInstances, &models.Instance{
			ProjectID:   s.project.ID,
			Zone:        in.Zone,
			Name:        in.Name,
			NetworkID:   networkID,
			SubnetID:    subnetID,
			MachineType: in.MachineType,
			Status:      in.Status,
			InternalIP:  in.InternalIP,
			ExternalIP:  in.ExternalIP,
			BootDiskGB:  in.BootDiskGB,
			Labels:      models.JSON(in.Labels),
			SelfLink:    in.SelfLink,
		})
	})
}

func collectInstanceTemplates(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListInstanceTemplates, s.projectID()), func(t gcp.InstanceTemplate) error {
		return save(ctx, s, models.KindInstanceTemplate, &models.InstanceTemplate{
			ProjectID:   s.project.ID,
			Name:        t.Name,
			MachineType: t.MachineType,
			Description: t.Description,
			Labels:      models.JSON(t.Labels),
			SelfLink:    t.SelfLink,
		})
	})
}

func collectInstanceGroups(ctx context.Context, s *session) error {
	return paginateScoped(ctx, forProject(s.client.ListInstanceGroups, s.projectID()), func(g gcp.InstanceGroup) error {
		networkID, err := s.optionalNetworkID(ctx, g.Network)
		if err != nil {
			return err
		}
		return save(ctx, s, models.KindInstanceGroups, &models.InstanceGroup{
			ProjectID: s.project.ID,
			Location:  g.Location,
			Name:      g.Name,
			NetworkID: networkID,
			Size:      g.Size,
			SelfLink:  g.SelfLink,
		})
	})
}

func collectDisks(ctx context.Context, s *session) error {
	return paginateScoped(ctx, forProject(s.client.ListDisks, s.projectID()), func(d gcp.Disk) error {
		return save(ctx, s, models.KindDisks, &models.Disk{
			ProjectID:   s.project.ID,
			Zone:        d.Zone,
			Name:        d.Name,
			SizeGB:      d.SizeGB,
			DiskType:    d.Type,
			Status:      d.Status,
			SourceImage: d.SourceImage,
			Users:       models.JSON(d.Users),
			Labels:      models.JSON(d.Labels),
			SelfLink:    d.SelfLink,
		})
	})
}
