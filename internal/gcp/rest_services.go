package gcp

import (
	"context"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/cloudfunctions/v1"
	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/container/v1"
	"google.golang.org/api/iam/v1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/run/v1"
	"google.golang.org/api/serviceusage/v1"
	"google.golang.org/api/spanner/v1"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
)

const runLocationLabel = "cloud.googleapis.com/location"

func (c *RESTClient) ListProjects(ctx context.Context, filter, pageToken string) (Page[Project], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*cloudresourcemanager.ListProjectsResponse, error) {
		req := c.crm.Projects.List().PageToken(pageToken).PageSize(c.opts.PageSize)
		if filter != "" {
			req = req.Filter(filter)
		}
		return req.Context(ctx).Do()
	})
	if err != nil {
		return Page[Project]{}, err
	}

	page := Page[Project]{NextPageToken: resp.NextPageToken}
	for _, p := range resp.Projects {
		name := p.Name
		if name == "" {
			name = p.ProjectId
		}
		page.Items = append(page.Items, Project{
			ProjectID:      p.ProjectId,
			Name:           name,
			ProjectNumber:  strconv.FormatInt(p.ProjectNumber, 10),
			LifecycleState: p.LifecycleState,
			Labels:         p.Labels,
		})
	}
	return page, nil
}

// ListEnabledServices returns short service names such as
// "compute.googleapis.com". All pages are consumed under one timeout.
func (c *RESTClient) ListEnabledServices(ctx context.Context, projectID string) ([]string, error) {
	return call(ctx, c, func(ctx context.Context) ([]string, error) {
		var names []string
		err := c.usage.Services.List("projects/"+projectID).
			Filter("state:ENABLED").
			PageSize(200).
			Pages(ctx, func(resp *serviceusage.ListServicesResponse) error {
				for _, s := range resp.Services {
					if name := lastSegment(s.Name); name != "" {
						names = append(names, name)
					}
				}
				return nil
			})
		return names, err
	})
}

func (c *RESTClient) ListSQLInstances(ctx context.Context, projectID, pageToken string) (Page[SQLInstance], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*sqladmin.InstancesListResponse, error) {
		return c.sql.Instances.List(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[SQLInstance]{}, err
	}

	page := Page[SQLInstance]{NextPageToken: resp.NextPageToken}
	for _, db := range resp.Items {
		inst := SQLInstance{
			Name:            db.Name,
			DatabaseVersion: db.DatabaseVersion,
			Region:          db.Region,
			State:           db.State,
			ConnectionName:  db.ConnectionName,
		}
		if s := db.Settings; s != nil {
			inst.Tier = s.Tier
			inst.DiskSizeGB = s.DataDiskSizeGb
			inst.Labels = s.UserLabels
			if s.IpConfiguration != nil {
				inst.PrivateNetwork = lastSegment(s.IpConfiguration.PrivateNetwork)
			}
		}
		for _, ip := range db.IpAddresses {
			inst.IPAddresses = append(inst.IPAddresses, ip.IpAddress)
		}
		page.Items = append(page.Items, inst)
	}
	return page, nil
}

func (c *RESTClient) ListSpannerInstances(ctx context.Context, projectID, pageToken string) (Page[SpannerInstance], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*spanner.ListInstancesResponse, error) {
		return c.spanner.Projects.Instances.List("projects/" + projectID).PageToken(pageToken).PageSize(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[SpannerInstance]{}, err
	}

	page := Page[SpannerInstance]{NextPageToken: resp.NextPageToken}
	for _, inst := range resp.Instances {
		page.Items = append(page.Items, SpannerInstance{
			Name:            lastSegment(inst.Name),
			DisplayName:     inst.DisplayName,
			Config:          lastSegment(inst.Config),
			State:           inst.State,
			NodeCount:       inst.NodeCount,
			ProcessingUnits: inst.ProcessingUnits,
			Labels:          inst.Labels,
		})
	}
	return page, nil
}

func (c *RESTClient) ListBuckets(ctx context.Context, projectID, pageToken string) (Page[Bucket], error) {
	type result struct {
		attrs []*storage.BucketAttrs
		next  string
	}

	res, err := call(ctx, c, func(ctx context.Context) (result, error) {
		it := c.storage.Buckets(ctx, projectID)
		var attrs []*storage.BucketAttrs
		next, err := iterator.NewPager(it, int(c.opts.PageSize), pageToken).NextPage(&attrs)
		return result{attrs: attrs, next: next}, err
	})
	if err != nil {
		return Page[Bucket]{}, err
	}

	page := Page[Bucket]{NextPageToken: res.next}
	for _, b := range res.attrs {
		page.Items = append(page.Items, Bucket{
			Name:                   b.Name,
			Location:               b.Location,
			LocationType:           b.LocationType,
			StorageClass:           b.StorageClass,
			PublicAccessPrevention: b.PublicAccessPrevention.String(),
			Versioning:             b.VersioningEnabled,
			UniformAccess:          b.UniformBucketLevelAccess.Enabled,
			Labels:                 b.Labels,
		})
	}
	return page, nil
}

// ListClusters covers every location in one unpaginated call.
func (c *RESTClient) ListClusters(ctx context.Context, projectID, _ string) (Page[Cluster], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*container.ListClustersResponse, error) {
		return c.container.Projects.Locations.Clusters.List("projects/" + projectID + "/locations/-").Context(ctx).Do()
	})
	if err != nil {
		return Page[Cluster]{}, err
	}

	var page Page[Cluster]
	for _, cl := range resp.Clusters {
		cluster := Cluster{
			Name:          cl.Name,
			Location:      cl.Location,
			Network:       cl.Network,
			Subnetwork:    cl.Subnetwork,
			MasterVersion: cl.CurrentMasterVersion,
			Status:        cl.Status,
			Endpoint:      cl.Endpoint,
			NodeCount:     cl.CurrentNodeCount,
			Labels:        cl.ResourceLabels,
			SelfLink:      cl.SelfLink,
		}
		for _, np := range cl.NodePools {
			pool := NodePool{
				Name:      np.Name,
				Version:   np.Version,
				Status:    np.Status,
				NodeCount: np.InitialNodeCount,
			}
			if np.Config != nil {
				pool.MachineType = np.Config.MachineType
				pool.DiskSizeGB = np.Config.DiskSizeGb
			}
			if np.Autoscaling != nil {
				pool.Autoscaling = np.Autoscaling.Enabled
				pool.MinNodes = np.Autoscaling.MinNodeCount
				pool.MaxNodes = np.Autoscaling.MaxNodeCount
			}
			cluster.NodePools = append(cluster.NodePools, pool)
		}
		page.Items = append(page.Items, cluster)
	}
	return page, nil
}

func (c *RESTClient) ListFunctions(ctx context.Context, projectID, pageToken string) (Page[Function], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*cloudfunctions.ListFunctionsResponse, error) {
		return c.functions.Projects.Locations.Functions.List("projects/" + projectID + "/locations/-").PageToken(pageToken).PageSize(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[Function]{}, err
	}

	page := Page[Function]{NextPageToken: resp.NextPageToken}
	for _, f := range resp.Functions {
		// projects/{project}/locations/{region}/functions/{name}
		parts := strings.Split(f.Name, "/")
		fn := Function{
			Name:                lastSegment(f.Name),
			Runtime:             f.Runtime,
			EntryPoint:          f.EntryPoint,
			Status:              f.Status,
			Timeout:             f.Timeout,
			ServiceAccountEmail: f.ServiceAccountEmail,
			MemoryMB:            f.AvailableMemoryMb,
			Labels:              f.Labels,
		}
		if len(parts) > 3 {
			fn.Region = parts[3]
		}
		if f.HttpsTrigger != nil {
			fn.TriggerURL = f.HttpsTrigger.Url
		}
		page.Items = append(page.Items, fn)
	}
	return page, nil
}

func (c *RESTClient) ListRunServices(ctx context.Context, projectID, pageToken string) (Page[RunService], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*run.ListServicesResponse, error) {
		return c.run.Namespaces.Services.List("namespaces/" + projectID).Continue(pageToken).Limit(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[RunService]{}, err
	}

	var page Page[RunService]
	if resp.Metadata != nil {
		page.NextPageToken = resp.Metadata.Continue
	}
	for _, s := range resp.Items {
		svc := RunService{}
		if s.Metadata != nil {
			svc.Name = s.Metadata.Name
			svc.Labels = s.Metadata.Labels
			svc.Region = s.Metadata.Labels[runLocationLabel]
		}
		if s.Status != nil {
			svc.URL = s.Status.Url
		}
		if s.Spec != nil && s.Spec.Template != nil && s.Spec.Template.Spec != nil {
			spec := s.Spec.Template.Spec
			svc.ServiceAccountEmail = spec.ServiceAccountName
			if len(spec.Containers) > 0 {
				svc.Image = spec.Containers[0].Image
			}
		}
		page.Items = append(page.Items, svc)
	}
	return page, nil
}

func (c *RESTClient) ListServiceAccounts(ctx context.Context, projectID, pageToken string) (Page[ServiceAccount], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*iam.ListServiceAccountsResponse, error) {
		return c.iam.Projects.ServiceAccounts.List("projects/" + projectID).PageToken(pageToken).PageSize(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[ServiceAccount]{}, err
	}

	page := Page[ServiceAccount]{NextPageToken: resp.NextPageToken}
	for _, sa := range resp.Accounts {
		page.Items = append(page.Items, ServiceAccount{
			Email:       sa.Email,
			Name:        sa.Name,
			DisplayName: sa.DisplayName,
			Description: sa.Description,
			UniqueID:    sa.UniqueId,
			Disabled:    sa.Disabled,
		})
	}
	return page, nil
}

func (c *RESTClient) ListCustomRoles(ctx context.Context, projectID, pageToken string) (Page[Role], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*iam.ListRolesResponse, error) {
		return c.iam.Projects.Roles.List("projects/" + projectID).View("FULL").PageToken(pageToken).PageSize(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[Role]{}, err
	}

	page := Page[Role]{NextPageToken: resp.NextPageToken}
	for _, r := range resp.Roles {
		page.Items = append(page.Items, convertRole(r))
	}
	return page, nil
}

// GetRole resolves predefined (roles/*), project and organization roles.
func (c *RESTClient) GetRole(ctx context.Context, name string) (Role, error) {
	r, err := call(ctx, c, func(ctx context.Context) (*iam.Role, error) {
		switch {
		case strings.HasPrefix(name, "projects/"):
			return c.iam.Projects.Roles.Get(name).Context(ctx).Do()
		case strings.HasPrefix(name, "organizations/"):
			return c.iam.Organizations.Roles.Get(name).Context(ctx).Do()
		default:
			return c.iam.Roles.Get(name).Context(ctx).Do()
		}
	})
	if err != nil {
		return Role{}, err
	}
	return convertRole(r), nil
}

func convertRole(r *iam.Role) Role {
	return Role{
		Name:        r.Name,
		Title:       r.Title,
		Description: r.Description,
		Stage:       r.Stage,
		Permissions: r.IncludedPermissions,
		Deleted:     r.Deleted,
	}
}

func (c *RESTClient) GetIamPolicy(ctx context.Context, projectID string) (Policy, error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*cloudresourcemanager.Policy, error) {
		req := &cloudresourcemanager.GetIamPolicyRequest{
			Options: &cloudresourcemanager.GetPolicyOptions{RequestedPolicyVersion: 3},
		}
		return c.crm.Projects.GetIamPolicy(projectID, req).Context(ctx).Do()
	})
	if err != nil {
		return Policy{}, err
	}

	var policy Policy
	for _, b := range resp.Bindings {
		binding := Binding{Role: b.Role, Members: b.Members}
		if b.Condition != nil {
			binding.ConditionTitle = b.Condition.Title
			binding.ConditionExpression = b.Condition.Expression
		}
		policy.Bindings = append(policy.Bindings, binding)
	}
	return policy, nil
}
