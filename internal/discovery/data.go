package discovery

import (
	"context"
	"strings"

	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
)

const (
	serviceSQLAdmin = "sqladmin.googleapis.com"
	serviceSpanner  = "spanner.googleapis.com"
	serviceStorage  = "storage.googleapis.com"
)

// storageServices lists the service names that each enable bucket listing.
var storageServices = []string{serviceStorage, "storage-api.googleapis.com", "storage-component.googleapis.com"}

func databaseCollectors() []collector {
	return []collector{
		{kind: models.KindSQLInstances, service: serviceSQLAdmin, collect: collectSQLInstances},
		{kind: models.KindSpannerInstances, service: serviceSpanner, collect: collectSpannerInstances},
	}
}

func storageCollectors() []collector {
	return []collector{
		{kind: models.KindBuckets, service: serviceStorage, collect: collectBuckets},
	}
}

// databaseType derives the engine from a version such as "POSTGRES_15".
func databaseType(version string) string {
	engine, _, _ := strings.Cut(version, "_")
	return strings.ToLower(engine)
}

func collectSQLInstances(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListSQLInstances, s.projectID()), func(in gcp.SQLInstance) error {
		return save(ctx, s, models.KindSQLInstances, &models.SQLInstance{
			ProjectID:       s.project.ID,
			Name:            in.Name,
			DatabaseType:    databaseType(in.DatabaseVersion),
			DatabaseVersion: in.DatabaseVersion,
			Region:          in.Region,
			Tier:            in.Tier,
			DiskSizeGB:      in.DiskSizeGB,
			State:           in.State,
			PrivateNetwork:  in.PrivateNetwork,
			IPAddresses:     models.JSON(in.IPAddresses),
			ConnectionName:  in.ConnectionName,
			Labels:          models.JSON(in.Labels),
		})
	})
}

func collectSpannerInstances(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListSpannerInstances, s.projectID()), func(in gcp.SpannerInstance) error {
		return save(ctx, s, models.KindSpannerInstances, &models.SpannerInstance{
			ProjectID:       s.project.ID,
			Name:            in.Name,
			DisplayName:     in.DisplayName,
			Config:          in.Config,
			NodeCount:       in.NodeCount,
			ProcessingUnits: in.ProcessingUnits,
			State:           in.State,
			Labels:          models.JSON(in.Labels),
		})
	})
}

func collectBuckets(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListBuckets, s.projectID()), func(b gcp.Bucket) error {
		return save(ctx, s, models.KindBuckets, &models.Bucket{
			Name:                   b.Name,
			ProjectID:              s.project.ID,
			Location:               b.Location,
			LocationType:           b.LocationType,
			StorageClass:           b.StorageClass,
			Versioning:             b.Versioning,
			UniformAccess:          b.UniformAccess,
			PublicAccessPrevention: b.PublicAccessPrevention,
			Labels:                 models.JSON(b.Labels),
		})
	})
}
