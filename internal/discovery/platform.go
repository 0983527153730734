package discovery

import (
	"context"
	"time"

	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
)

const (
	serviceContainer = "container.googleapis.com"
	serviceFunctions = "cloudfunctions.googleapis.com"
	serviceRun       = "run.googleapis.com"
)

func kubernetesCollectors() []collector {
	return []collector{
		// Node pools arrive inside the cluster listing and are written here.
		{kind: models.KindGKEClusters, service: serviceContainer, collect: collectClusters},
	}
}

func serverlessCollectors() []collector {
	return []collector{
		{kind: models.KindCloudFunctions, service: serviceFunctions, collect: collectFunctions},
		{kind: models.KindCloudRun, service: serviceRun, collect: collectRunServices},
	}
}

func collectClusters(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListClusters, s.projectID()), func(c gcp.Cluster) error {
		networkID, err := s.optionalNetworkID(ctx, c.Network)
		if err != nil {
			return err
		}
		subnetID, err := s.optionalSubnetID(ctx, zoneRegion(c.Location), c.Subnetwork)
		if err != nil {
			return err
		}
		if err := save(ctx, s, models.KindGKEClusters, &models.GKECluster{
			ProjectID:     s.project.ID,
			Location:      c.Location,
			Name:          c.Name,
			NetworkID:     networkID,
			SubnetID:      subnetID,
			MasterVersion: c.MasterVersion,
			Status:        c.Status,
			Endpoint:      c.Endpoint,
			NodeCount:     c.NodeCount,
			Labels:        models.JSON(c.Labels),
			SelfLink:      c.SelfLink,
		}); err != nil {
			return err
		}

		for _, np := range c.NodePools {
			if err := s.saveNodePool(ctx, c, np); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *session) saveNodePool(ctx context.Context, c gcp.Cluster, np gcp.NodePool) error {
	clusterID, err := parentID[models.GKECluster](ctx, s.db, map[string]any{
		"project_id": s.project.ID, "location": c.Location, "name": c.Name,
	})
	if err != nil {
		return s.skip(models.KindGKENodePools, np.Name, err)
	}
	return save(ctx, s, models.KindGKENodePools, &models.GKENodePool{
		ClusterID:   clusterID,
		Name:        np.Name,
		MachineType: np.MachineType,
		DiskSizeGB:  np.DiskSizeGB,
		NodeCount:   np.NodeCount,
		Autoscaling: np.Autoscaling,
		MinNodes:    np.MinNodes,
		MaxNodes:    np.MaxNodes,
		Version:     np.Version,
		Status:      np.Status,
	})
}

// timeoutSeconds parses the functions API duration format ("60s"). Anything
// unparseable reads as zero.
func timeoutSeconds(v string) int64 {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return int64(d / time.Second)
}

func collectFunctions(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListFunctions, s.projectID()), func(f gcp.Function) error {
		return save(ctx, s, models.KindCloudFunctions, &models.CloudFunction{
			ProjectID:           s.project.ID,
			Region:              f.Region,
			Name:                f.Name,
			Runtime:             f.Runtime,
			EntryPoint:          f.EntryPoint,
			Status:              f.Status,
			MemoryMB:            f.MemoryMB,
			TimeoutSeconds:      timeoutSeconds(f.Timeout),
			ServiceAccountEmail: f.ServiceAccountEmail,
			TriggerURL:          f.TriggerURL,
			Labels:              models.JSON(f.Labels),
		})
	})
}

func collectRunServices(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListRunServices, s.projectID()), func(r gcp.RunService) error {
		return save(ctx, s, models.KindCloudRun, &models.CloudRunService{
			ProjectID:           s.project.ID,
			Region:              r.Region,
			Name:                r.Name,
			URL:                 r.URL,
			Image:               r.Image,
			ServiceAccountEmail: r.ServiceAccountEmail,
			Labels:              models.JSON(r.Labels),
		})
	})
}
