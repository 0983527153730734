package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"google.golang.org/api/googleapi"
)

// FakeProject is the content of one project in a FakeCloud.
type FakeProject struct {
	Project gcp.Project
	// Services is the enabled-services listing; nil makes the listing fail.
	Services []string

	Networks        []gcp.Network
	Subnets         []gcp.Subnetwork
	Firewalls       []gcp.Firewall
	Routers         []gcp.Router
	VPNGateways     []gcp.VPNGateway
	VPNTunnels      []gcp.VPNTunnel
	ForwardingRules []gcp.ForwardingRule
	Zones           []gcp.ManagedZone
	Records         map[string][]gcp.RecordSet

	Instances []gcp.Instance
	Templates []gcp.InstanceTemplate
	Groups    []gcp.InstanceGroup
	Disks     []gcp.Disk

	SQLInstances     []gcp.SQLInstance
	SpannerInstances []gcp.SpannerInstance
	Buckets          []gcp.Bucket

	Clusters    []gcp.Cluster
	Functions   []gcp.Function
	RunServices []gcp.RunService

	ServiceAccounts []gcp.ServiceAccount
	CustomRoles     []gcp.Role
	Policy          gcp.Policy
}

// FakeCloud is an in-memory gcp.Client. Errors can be injected per project
// and method, and PageSize forces every listing through pagination.
type FakeCloud struct {
	PageSize int
	// Roles answers GetRole.
	Roles map[string]gcp.Role
	// OnCall runs before every call, after error injection is checked.
	OnCall func(method, projectID string)

	mu       sync.Mutex
	projects []*FakeProject
	errs     map[string]error
	calls    map[string]int
	closed   atomic.Int32
}

var _ gcp.Client = (*FakeCloud)(nil)

func NewFakeCloud(projects ...*FakeProject) *FakeCloud {
	return &FakeCloud{
		projects: projects,
		Roles:    map[string]gcp.Role{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

// Forbidden is a 403 with the forbidden reason, as the REST APIs return it.
func Forbidden() error {
	return &googleapi.Error{
		Code:    http.StatusForbidden,
		Message: "The caller does not have permission",
		Errors:  []googleapi.ErrorItem{{Reason: "forbidden"}},
	}
}

// Unavailable is a 503, which classifies as a failure.
func Unavailable() error {
	return &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "backend unavailable"}
}

// FailOn makes method fail with err for projectID. "*" matches any project.
func (f *FakeCloud) FailOn(projectID, method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[projectID+"/"+method] = err
}

// Calls returns how often method was called for projectID; "*" sums all
// projects.
func (f *FakeCloud) Calls(projectID, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if projectID == "*" {
		n := 0
		for key, c := range f.calls {
			if _, m, _ := cutLast(key); m == method {
				n += c
			}
		}
		return n
	}
	return f.calls[projectID+"/"+method]
}

func (f *FakeCloud) Closed() int { return int(f.closed.Load()) }

func cutLast(key string) (string, string, bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[:i], key[i+1:], true
		}
	}
	return key, "", false
}

func (f *FakeCloud) call(ctx context.Context, method, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.calls[projectID+"/"+method]++
	err, ok := f.errs[projectID+"/"+method]
	if !ok {
		err = f.errs["*/"+method]
	}
	hook := f.OnCall
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(method, projectID)
	}
	return nil
}

func (f *FakeCloud) project(projectID string) (*FakeProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.Project.ProjectID == projectID {
			return p, nil
		}
	}
	return nil, &googleapi.Error{
		Code:   http.StatusNotFound,
		Errors: []googleapi.ErrorItem{{Reason: "notFound"}},
	}
}

func pageOf[T any](items []T, size int, token string) (gcp.Page[T], error) {
	start := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 || n > len(items) {
			return gcp.Page[T]{}, fmt.Errorf("bad page token %q", token)
		}
		start = n
	}
	if size <= 0 {
		return gcp.Page[T]{Items: items[start:]}, nil
	}
	end := min(start+size, len(items))
	page := gcp.Page[T]{Items: items[start:end]}
	if end < len(items) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func scopedPageOf[T any](items []T, scope func(T) string, size int, token string) (gcp.ScopedPage[T], error) {
	flat, err := pageOf(items, size, token)
	if err != nil {
		return gcp.ScopedPage[T]{}, err
	}
	out := gcp.ScopedPage[T]{Items: map[string][]T{}, NextPageToken: flat.NextPageToken}
	for _, item := range flat.Items {
		key := scope(item)
		out.Items[key] = append(out.Items[key], item)
	}
	return out, nil
}

// list is the shared body of every project-scoped flat listing.
func list[T any](ctx context.Context, f *FakeCloud, method, projectID, token string, pick func(*FakeProject) []T) (gcp.Page[T], error) {
	if err := f.call(ctx, method, projectID); err != nil {
		return gcp.Page[T]{}, err
	}
	p, err := f.project(projectID)
	if err != nil {
		return gcp.Page[T]{}, err
	}
	return pageOf(pick(p), f.PageSize, token)
}

func listScoped[T any](ctx context.Context, f *FakeCloud, method, projectID, token string, pick func(*FakeProject) []T, scope func(T) string) (gcp.ScopedPage[T], error) {
	if err := f.call(ctx, method, projectID); err != nil {
		return gcp.ScopedPage[T]{}, err
	}
	p, err := f.project(projectID)
	if err != nil {
		return gcp.ScopedPage[T]{}, err
	}
	return scopedPageOf(pick(p), scope, f.PageSize, token)
}

func regionScope(region string) string { return "regions/" + region }
func zoneScope(zone string) string     { return "zones/" + zone }

func (f *FakeCloud) ListProjects(ctx context.Context, _ string, token string) (gcp.Page[gcp.Project], error) {
	if err := f.call(ctx, "ListProjects", "*"); err != nil {
		return gcp.Page[gcp.Project]{}, err
	}
	f.mu.Lock()
	projects := make([]gcp.Project, len(f.projects))
	for i, p := range f.projects {
		projects[i] = p.Project
	}
	f.mu.Unlock()
	return pageOf(projects, f.PageSize, token)
}

func (f *FakeCloud) ListEnabledServices(ctx context.Context, projectID string) ([]string, error) {
	if err := f.call(ctx, "ListEnabledServices", projectID); err != nil {
		return nil, err
	}
	p, err := f.project(projectID)
	if err != nil {
		return nil, err
	}
	if p.Services == nil {
		return nil, Unavailable()
	}
	out := append([]string(nil), p.Services...)
	sort.Strings(out)
	return out, nil
}

func (f *FakeCloud) ListNetworks(ctx context.Context, projectID, token string) (gcp.Page[gcp.Network], error) {
	return list(ctx, f, "ListNetworks", projectID, token, func(p *FakeProject) []gcp.Network { return p.Networks })
}

func (f *FakeCloud) ListSubnetworks(ctx context.Context, projectID, token string) (gcp.ScopedPage[gcp.Subnetwork], error) {
	return listScoped(ctx, f, "ListSubnetworks", projectID, token,
		func(p *FakeProject) []gcp.Subnetwork { return p.Subnets },
		func(s gcp.Subnetwork) string { return regionScope(s.Region) })
}

func (f *FakeCloud) ListFirewalls(ctx context.Context, projectID, token string) (gcp.Page[gcp.Firewall], error) {
	return list(ctx, f, "ListFirewalls", projectID, token, func(p *FakeProject) []gcp.Firewall { return p.Firewalls })
}

func (f *FakeCloud) ListRouters(ctx context.Context, projectID, token string) (gcp.ScopedPage[gcp.Router], error) {
	return listScoped(ctx, f, "ListRouters", projectID, token,
		func(p *FakeProject) []gcp.Router { return p.Routers },
		func(r gcp.Router) string { return regionScope(r.Region) })
}

func (f *FakeCloud) ListVPNGateways(ctx context.Context, projectID, token string) (gcp.ScopedPage[gcp.VPNGateway], error) {
	return listScoped(ctx, f, "ListVPNGateways", projectID, token,
		func(p *FakeProject) []gcp.VPNGateway { return p.VPNGateways },
		func(g gcp.VPNGateway) string { return regionScope(g.Region) })
}

func (f *FakeCloud) ListVPNTunnels(ctx context.Context, projectID, token string) (gcp.ScopedPage[gcp.VPNTunnel], error) {
	return listScoped(ctx, f, "ListVPNTunnels", projectID, token,
		func(p *FakeProject) []gcp.VPNTunnel { return p.VPNTunnels },
		func(t gcp.VPNTunnel) string { return regionScope(t.Region) })
}

func (f *FakeCloud) ListForwardingRules(ctx context.Context, projectID, token string) (gcp.ScopedPage[gcp.ForwardingRule], error) {
	return listScoped(ctx, f, "ListForwardingRules", projectID, token,
		func(p *FakeProject) []gcp.ForwardingRule { return p.ForwardingRules },
		func(r gcp.ForwardingRule) string {
			if r.Region == "" {
				return "global"
			}
			return regionScope(r.Region)
		})
}

func (f *FakeCloud) ListManagedZones(ctx context.Context, projectID, token string) (gcp.Page[gcp.ManagedZone], error) {
	return list(ctx, f, "ListManagedZones", projectID, token, func(p *FakeProject) []gcp.ManagedZone { return p.Zones })
}

func (f *FakeCloud) ListRecordSets(ctx context.Context, projectID, zone, token string) (gcp.Page[gcp.RecordSet], error) {
	return list(ctx, f, "ListRecordSets", projectID, token, func(p *FakeProject) []gcp.RecordSet { return p.Records[zone] })
}

func (f *FakeCloud) ListInstances(ctx context.Context, projectID, token string) (gcp.ScopedPage[gcp.Instance], error) {
	return listScoped(ctx, f, "ListInstances", projectID, token,
		func(p *FakeProject) []gcp.Instance { return p.Instances },
		func(i gcp.Instance) string { return zoneScope(i.Zone) })
}

func (f *FakeCloud) ListInstanceTemplates(ctx context.Context, projectID, token string) (gcp.Page[gcp.InstanceTemplate], error) {
	return list(ctx, f, "ListInstanceTemplates", projectID, token, func(p *FakeProject) []gcp.InstanceTemplate { return p.Templates })
}

func (f *FakeCloud) ListInstanceGroups(ctx context.Context, projectID, token string) (gcp.ScopedPage[gcp.InstanceGroup], error) {
	return listScoped(ctx, f, "ListInstanceGroups", projectID, token,
		func(p *FakeProject) []gcp.InstanceGroup { return p.Groups },
		func(g gcp.InstanceGroup) string { return zoneScope(g.Location) })
}

func (f *FakeCloud) ListDisks(ctx context.Context, projectID, token string) (gcp.ScopedPage[gcp.Disk], error) {
	return listScoped(ctx, f, "ListDisks", projectID, token,
		func(p *FakeProject) []gcp.Disk { return p.Disks },
		func(d gcp.Disk) string { return zoneScope(d.Zone) })
}

func (f *FakeCloud) ListSQLInstances(ctx context.Context, projectID, token string) (gcp.Page[gcp.SQLInstance], error) {
	return list(ctx, f, "ListSQLInstances", projectID, token, func(p *FakeProject) []gcp.SQLInstance { return p.SQLInstances })
}

func (f *FakeCloud) ListSpannerInstances(ctx context.Context, projectID, token string) (gcp.Page[gcp.SpannerInstance], error) {
	return list(ctx, f, "ListSpannerInstances", projectID, token, func(p *FakeProject) []gcp.SpannerInstance { return p.SpannerInstances })
}

func (f *FakeCloud) ListBuckets(ctx context.Context, projectID, token string) (gcp.Page[gcp.Bucket], error) {
	return list(ctx, f, "ListBuckets", projectID, token, func(p *FakeProject) []gcp.Bucket { return p.Buckets })
}

func (f *FakeCloud) ListClusters(ctx context.Context, projectID, token string) (gcp.Page[gcp.Cluster], error) {
	return list(ctx, f, "ListClusters", projectID, token, func(p *FakeProject) []gcp.Cluster { return p.Clusters })
}

func (f *FakeCloud) ListFunctions(ctx context.Context, projectID, token string) (gcp.Page[gcp.Function], error) {
	return list(ctx, f, "ListFunctions", projectID, token, func(p *FakeProject) []gcp.Function { return p.Functions })
}

func (f *FakeCloud) ListRunServices(ctx context.Context, projectID, token string) (gcp.Page[gcp.RunService], error) {
	return list(ctx, f, "ListRunServices", projectID, token, func(p *FakeProject) []gcp.RunService { return p.RunServices })
}

func (f *FakeCloud) ListServiceAccounts(ctx context.Context, projectID, token string) (gcp.Page[gcp.ServiceAccount], error) {
	return list(ctx, f, "ListServiceAccounts", projectID, token, func(p *FakeProject) []gcp.ServiceAccount { return p.ServiceAccounts })
}

func (f *FakeCloud) ListCustomRoles(ctx context.Context, projectID, token string) (gcp.Page[gcp.Role], error) {
	return list(ctx, f, "ListCustomRoles", projectID, token, func(p *FakeProject) []gcp.Role { return p.CustomRoles })
}

func (f *FakeCloud) GetRole(ctx context.Context, name string) (gcp.Role, error) {
	if err := f.call(ctx, "GetRole", "*"); err != nil {
		return gcp.Role{}, err
	}
	f.mu.Lock()
	role, ok := f.Roles[name]
	f.mu.Unlock()
	if !ok {
		return gcp.Role{}, &googleapi.Error{
			Code:   http.StatusNotFound,
			Errors: []googleapi.ErrorItem{{Reason: "notFound"}},
		}
	}
	return role, nil
}

func (f *FakeCloud) GetIamPolicy(ctx context.Context, projectID string) (gcp.Policy, error) {
	if err := f.call(ctx, "GetIamPolicy", projectID); err != nil {
		return gcp.Policy{}, err
	}
	p, err := f.project(projectID)
	if err != nil {
		return gcp.Policy{}, err
	}
	return p.Policy, nil
}

func (f *FakeCloud) Close() error {
	f.closed.Add(1)
	return nil
}

// FakeCredentials hands out Cloud, or fails with Err as an auth error.
type FakeCredentials struct {
	Cloud gcp.Client
	Err   error

	calls atomic.Int32
}

var _ gcp.CredentialProvider = (*FakeCredentials)(nil)

func (f *FakeCredentials) Client(_ context.Context, _ *models.Organization) (gcp.Client, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, &gcp.AuthError{Err: f.Err}
	}
	return f.Cloud, nil
}

func (f *FakeCredentials) Calls() int { return int(f.calls.Load()) }
