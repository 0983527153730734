// Package gcp is the boundary to Google Cloud. Collectors depend on the Client
// interface; RESTClient implements it over the public APIs.
package gcp

import "context"

// Page is one response of a flat paginated listing.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}

// ScopedPage is one response of an aggregated listing, keyed by the
// region or zone scope the provider grouped the items under.
type ScopedPage[T any] struct {
	Items         map[string][]T
	NextPageToken string
}

// Client lists resources for one authenticated organization. Page tokens are
// opaque; an empty NextPageToken ends the listing.
type Client interface {
	ListProjects(ctx context.Context, filter, pageToken string) (Page[Project], error)
	ListEnabledServices(ctx context.Context, projectID string) ([]string, error)

	ListNetworks(ctx context.Context, projectID, pageToken string) (Page[Network], error)
	ListSubnetworks(ctx context.Context, projectID, pageToken string) (ScopedPage[Subnetwork], error)
	ListFirewalls(ctx context.Context, projectID, pageToken string) (Page[Firewall], error)
	ListRouters(ctx context.Context, projectID, pageToken string) (ScopedPage[Router], error)
	ListVPNGateways(ctx context.Context, projectID, pageToken string) (ScopedPage[VPNGateway], error)
	ListVPNTunnels(ctx context.Context, projectID, pageToken string) (ScopedPage[VPNTunnel], error)
	ListForwardingRules(ctx context.Context, projectID, pageToken string) (ScopedPage[ForwardingRule], error)
	ListManagedZones(ctx context.Context, projectID, pageToken string) (Page[ManagedZone], error)
	ListRecordSets(ctx context.Context, projectID, zone, pageToken string) (Page[RecordSet], error)

	ListInstances(ctx context.Context, projectID, pageToken string) (ScopedPage[Instance], error)
	ListInstanceTemplates(ctx context.Context, projectID, pageToken string) (Page[InstanceTemplate], error)
	ListInstanceGroups(ctx context.Context, projectID, pageToken string) (ScopedPage[InstanceGroup], error)
	ListDisks(ctx context.Context, projectID, pageToken string) (ScopedPage[Disk], error)

	ListSQLInstances(ctx context.Context, projectID, pageToken string) (Page[SQLInstance], error)
	ListSpannerInstances(ctx context.Context, projectID, pageToken string) (Page[SpannerInstance], error)
	ListBuckets(ctx context.Context, projectID, pageToken string) (Page[Bucket], error)

	ListClusters(ctx context.Context, projectID, pageToken string) (Page[Cluster], error)
	ListFunctions(ctx context.Context, projectID, pageToken string) (Page[Function], error)
	ListRunServices(ctx context.Context, projectID, pageToken string) (Page[RunService], error)

	ListServiceAccounts(ctx context.Context, projectID, pageToken string) (Page[ServiceAccount], error)
	ListCustomRoles(ctx context.Context, projectID, pageToken string) (Page[Role], error)
	GetRole(ctx context.Context, name string) (Role, error)
	GetIamPolicy(ctx context.Context, projectID string) (Policy, error)

	Close() error
}
