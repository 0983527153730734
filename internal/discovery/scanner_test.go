package discovery

import (
	"testing"

	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanProject_AllKinds(t *testing.T) {
	h := newHarness(t, testutil.SampleProject("proj-a"))
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	counts, err := h.store.Counts(ctx, scan.ID)
	require.NoError(t, err)
	for kind, want := range testutil.SampleProjectCounts {
		if kind == models.KindIAMRoles {
			// The custom role plus the predefined viewer role.
			want++
		}
		assert.Equal(t, want, counts[kind], kind)
	}

	var subnet models.Subnet
	require.NoError(t, h.db.First(&subnet).Error)
	var network models.Network
	require.NoError(t, h.db.First(&network).Error)
	assert.Equal(t, network.ID, subnet.NetworkID)

	var instance models.Instance
	require.NoError(t, h.db.First(&instance, "name = ?", "web-1").Error)
	require.NotNil(t, instance.SubnetID)
	assert.Equal(t, subnet.ID, *instance.SubnetID)

	var tunnel models.VPNTunnel
	require.NoError(t, h.db.First(&tunnel).Error)
	assert.NotNil(t, tunnel.GatewayID)
	assert.NotNil(t, tunnel.RouterID)

	var fn models.CloudFunction
	require.NoError(t, h.db.First(&fn).Error)
	assert.Equal(t, int64(60), fn.TimeoutSeconds)

	var sql models.SQLInstance
	require.NoError(t, h.db.First(&sql).Error)
	assert.Equal(t, "postgres", sql.DatabaseType)

	var viewer models.IAMRole
	require.NoError(t, h.db.First(&viewer, "name = ?", "roles/viewer").Error)
	assert.False(t, viewer.Custom)
	assert.Nil(t, viewer.ProjectID)
	var viewerBindings int64
	h.db.Model(&models.IAMBinding{}).Where("role_id = ?", viewer.ID).Count(&viewerBindings)
	assert.Equal(t, int64(2), viewerBindings)

	for _, m := range []any{&models.Network{}, &models.Bucket{}, &models.IAMBinding{}} {
		var discovered int64
		h.db.Model(m).Where("discovered = ?", true).Count(&discovered)
		assert.Equal(t, h.count(m), discovered)
	}
}

func TestScanProject_Pagination(t *testing.T) {
	p := testutil.SampleProject("proj-a")
	p.Instances = append(p.Instances, p.Instances[0], p.Instances[0], p.Instances[0])
	p.Instances[2].Name, p.Instances[3].Name, p.Instances[4].Name = "web-3", "web-4", "web-5"
	p.Instances[4].Zone = "us-east1-b"

	h := newHarness(t, p)
	h.cloud.PageSize = 2
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	assert.Equal(t, int64(5), h.count(&models.Instance{}))
	assert.Equal(t, 3, h.cloud.Calls("proj-a", "ListInstances"))
	assert.Equal(t, int64(2), h.count(&models.DNSRecord{}))
}

func TestScanProject_ServiceFilter(t *testing.T) {
	p := testutil.SampleProject("proj-a")
	p.Services = []string{"storage.googleapis.com", "iam.googleapis.com"}

	h := newHarness(t, p)
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	assert.Zero(t, h.cloud.Calls("proj-a", "ListNetworks"))
	assert.Zero(t, h.cloud.Calls("proj-a", "ListInstances"))
	assert.Zero(t, h.cloud.Calls("proj-a", "GetIamPolicy"))
	assert.Zero(t, h.count(&models.Network{}))
	assert.Equal(t, int64(1), h.count(&models.Bucket{}))
	assert.Equal(t, int64(1), h.count(&models.ServiceAccount{}))
}

func TestScanProject_ServiceListingFailsOpen(t *testing.T) {
	p := testutil.SampleProject("proj-a")
	p.Services = nil

	h := newHarness(t, p)
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	assert.Equal(t, int64(1), h.count(&models.Network{}))
	assert.Equal(t, int64(2), h.count(&models.Instance{}))

	logs, err := h.store.Logs(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, countLines(joinLines(logs), "WARNING: Could not list enabled services for proj-a"))
}

func TestScanProject_TogglesSkipGroups(t *testing.T) {
	h := newHarness(t, testutil.SampleProject("proj-a"))
	ctx := testutil.TestContext(t)
	require.NoError(t, h.db.Model(h.org).Updates(map[string]any{
		"discover_compute": false,
		"discover_iam":     false,
	}).Error)
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	assert.Zero(t, h.count(&models.Instance{}))
	assert.Zero(t, h.count(&models.IAMBinding{}))
	assert.Equal(t, int64(1), h.count(&models.Network{}))
	assert.Equal(t, int64(1), h.count(&models.GKECluster{}))
}

func TestScanProject_CancelStopsBetweenGroups(t *testing.T) {
	h := newHarness(t, testutil.SampleProject("proj-a"))
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)

	// Cancel arrives while the networking group is still running.
	h.cloud.OnCall = func(method, _ string) {
		if method == "ListFirewalls" {
			require.NoError(t, h.store.RequestCancel(ctx, scan.ID))
		}
	}

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	// The in-flight group finishes; no later group starts.
	assert.Equal(t, int64(1), h.count(&models.FirewallRule{}))
	assert.Equal(t, int64(1), h.count(&models.DNSZone{}))
	assert.Zero(t, h.cloud.Calls("proj-a", "ListInstances"))
	assert.Zero(t, h.cloud.Calls("proj-a", "ListBuckets"))
	assert.Zero(t, h.count(&models.Instance{}))

	logs, err := h.store.Logs(ctx, scan.ID)
	require.NoError(t, err)
	assert.Contains(t, joinLines(logs), "Cancellation requested, stopping project proj-a before compute")
}

func TestScanProject_CanceledBeforeStart(t *testing.T) {
	h := newHarness(t, testutil.SampleProject("proj-a"))
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)
	require.NoError(t, h.db.Model(h.org).Update("cancel_requested", true).Error)

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	assert.Zero(t, h.cloud.Calls("proj-a", "ListEnabledServices"))
	assert.Zero(t, h.count(&models.Network{}))
}

func TestScanProject_MissingParentsAreSkipped(t *testing.T) {
	p := testutil.SampleProject("proj-a")
	p.Networks = nil
	p.Clusters[0].NodePools = nil
	p.Policy.Bindings = append(p.Policy.Bindings, binding("roles/unknown", "user:bob@example.com"))

	h := newHarness(t, p)
	ctx := testutil.TestContext(t)
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	// Required parents missing: nothing dangling is written.
	assert.Zero(t, h.count(&models.Subnet{}))
	assert.Zero(t, h.count(&models.FirewallRule{}))
	assert.Zero(t, h.count(&models.Router{}))
	assert.Zero(t, h.count(&models.NAT{}))
	assert.Zero(t, h.count(&models.VPNGateway{}))

	// Optional references are left empty instead.
	var tunnel models.VPNTunnel
	require.NoError(t, h.db.First(&tunnel).Error)
	assert.Nil(t, tunnel.GatewayID)
	assert.Nil(t, tunnel.RouterID)

	var instance models.Instance
	require.NoError(t, h.db.First(&instance).Error)
	assert.Nil(t, instance.NetworkID)
	assert.Nil(t, instance.SubnetID)

	// Bindings to a role the API does not know are skipped; the rest stay.
	assert.Equal(t, int64(3), h.count(&models.IAMBinding{}))

	logs, err := h.store.Logs(ctx, scan.ID)
	require.NoError(t, err)
	assert.NotContains(t, joinLines(logs), "ERROR:")
}

func TestScanProject_FailureStopsOnlyThatCollector(t *testing.T) {
	h := newHarness(t, testutil.SampleProject("proj-a"))
	ctx := testutil.TestContext(t)
	h.cloud.FailOn("proj-a", "ListSubnetworks", testutil.Unavailable())
	project := testutil.CreateTestProject(t, h.db, h.org.ID, "proj-a")
	scan := testutil.CreateTestScan(t, h.db, h.org, models.ScanStatusRunning)

	h.scanner.ScanProject(ctx, h.newRun(scan.ID), project)

	assert.Zero(t, h.count(&models.Subnet{}))
	assert.Equal(t, int64(1), h.count(&models.FirewallRule{}))
	assert.Equal(t, int64(2), h.count(&models.Instance{}))

	logs, err := h.store.Logs(ctx, scan.ID)
	require.NoError(t, err)
	assert.Contains(t, joinLines(logs), "ERROR: Failed to discover subnets in proj-a")
}

func TestServiceEnabled(t *testing.T) {
	assert.True(t, serviceEnabled(nil, "compute.googleapis.com"))
	assert.True(t, serviceEnabled(map[string]bool{}, ""))
	assert.False(t, serviceEnabled(map[string]bool{"dns.googleapis.com": true}, "compute.googleapis.com"))
	assert.True(t, serviceEnabled(map[string]bool{"storage-component.googleapis.com": true}, serviceStorage))
}
