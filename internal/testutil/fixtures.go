package testutil

import (
	"fmt"

	"github.com/hugh/gcp-inventory/internal/gcp"
)

// AllServices enables every collector.
var AllServices = []string{
	"compute.googleapis.com",
	"dns.googleapis.com",
	"sqladmin.googleapis.com",
	"spanner.googleapis.com",
	"storage-api.googleapis.com",
	"container.googleapis.com",
	"cloudfunctions.googleapis.com",
	"run.googleapis.com",
	"iam.googleapis.com",
	"cloudresourcemanager.googleapis.com",
}

// ViewerRole is the predefined role SampleProject's policy references.
var ViewerRole = gcp.Role{
	Name:        "roles/viewer",
	Title:       "Viewer",
	Stage:       "GA",
	Permissions: []string{"resourcemanager.projects.get"},
}

// SampleProjectCounts is what one scan of SampleProject records per kind,
// apart from the predefined role which is shared across projects.
var SampleProjectCounts = map[string]int64{
	"networks":           1,
	"subnets":            1,
	"firewall_rules":     1,
	"routers":            1,
	"nats":               1,
	"vpn_gateways":       1,
	"vpn_tunnels":        1,
	"load_balancers":     1,
	"dns_zones":          1,
	"dns_records":        2,
	"instances":          2,
	"instance_templates": 1,
	"instance_groups":    1,
	"disks":              1,
	"sql_instances":      1,
	"spanner_instances":  1,
	"buckets":            1,
	"gke_clusters":       1,
	"gke_node_pools":     1,
	"cloud_functions":    1,
	"cloud_run_services": 1,
	"service_accounts":   1,
	"iam_roles":          1,
	"iam_bindings":       3,
}

// SampleProject returns a project with one or two resources of every kind,
// wired together the way the APIs report references.
func SampleProject(projectID string) *FakeProject {
	const region, zone = "us-central1", "us-central1-a"
	customRole := fmt.Sprintf("projects/%s/roles/auditor", projectID)
	saEmail := fmt.Sprintf("deployer@%s.iam.gserviceaccount.com", projectID)

	return &FakeProject{
		Project: gcp.Project{
			ProjectID:      projectID,
			Name:           projectID,
			ProjectNumber:  "1000" + projectID,
			LifecycleState: "ACTIVE",
			Labels:         map[string]string{"env": "test"},
		},
		Services: AllServices,

		Networks: []gcp.Network{{Name: "default", RoutingMode: "REGIONAL", MTU: 1460}},
		Subnets: []gcp.Subnetwork{{
			Name: "default", Region: region, Network: "default", IPCIDRRange: "10.128.0.0/20",
		}},
		Firewalls: []gcp.Firewall{{
			Name: "allow-ssh", Network: "default", Direction: "INGRESS", Priority: 1000,
			Allowed:      []gcp.FirewallPortRule{{Protocol: "tcp", Ports: []string{"22"}}},
			SourceRanges: []string{"35.235.240.0/20"},
		}},
		Routers: []gcp.Router{{
			Name: "nat-router", Region: region, Network: "default", ASN: 64512,
			NATs: []gcp.RouterNAT{{Name: "egress", IPAllocateOption: "AUTO_ONLY"}},
		}},
		VPNGateways: []gcp.VPNGateway{{Name: "ha-vpn", Region: region, Network: "default", IPAddresses: []string{"34.1.1.1"}}},
		VPNTunnels: []gcp.VPNTunnel{{
			Name: "tunnel-0", Region: region, Gateway: "ha-vpn", Router: "nat-router", PeerIP: "203.0.113.1", IKEVersion: 2,
		}},
		ForwardingRules: []gcp.ForwardingRule{{Name: "web", Network: "default", IPAddress: "34.2.2.2", Protocol: "TCP", PortRange: "443-443"}},
		Zones:           []gcp.ManagedZone{{Name: "internal", DNSName: "internal.example.", Visibility: "private"}},
		Records: map[string][]gcp.RecordSet{
			"internal": {
				{Name: "internal.example.", Type: "SOA", TTL: 21600, RRDatas: []string{"ns.example. admin.example. 1 21600 3600 259200 300"}},
				{Name: "db.internal.example.", Type: "A", TTL: 300, RRDatas: []string{"10.128.0.5"}},
			},
		},

		Instances: []gcp.Instance{
			{Name: "web-1", Zone: zone, MachineType: "e2-medium", Status: "RUNNING", Network: "default", Subnetwork: "default", InternalIP: "10.128.0.2"},
			{Name: "web-2", Zone: zone, MachineType: "e2-medium", Status: "RUNNING", Network: "default", Subnetwork: "default", InternalIP: "10.128.0.3"},
		},
		Templates: []gcp.InstanceTemplate{{Name: "web-template", MachineType: "e2-medium"}},
		Groups:    []gcp.InstanceGroup{{Name: "web-group", Location: zone, Network: "default", Size: 2}},
		Disks:     []gcp.Disk{{Name: "web-1", Zone: zone, Type: "pd-balanced", SizeGB: 10, Users: []string{"web-1"}}},

		SQLInstances:     []gcp.SQLInstance{{Name: "orders", DatabaseVersion: "POSTGRES_15", Region: region, Tier: "db-custom-2-7680", State: "RUNNABLE"}},
		SpannerInstances: []gcp.SpannerInstance{{Name: "ledger", DisplayName: "Ledger", Config: "regional-us-central1", NodeCount: 1}},
		Buckets:          []gcp.Bucket{{Name: projectID + "-assets", Location: "US", StorageClass: "STANDARD", UniformAccess: true}},

		Clusters: []gcp.Cluster{{
			Name: "apps", Location: region, Network: "default", Subnetwork: "default", Status: "RUNNING", NodeCount: 3,
			NodePools: []gcp.NodePool{{Name: "default-pool", MachineType: "e2-standard-4", NodeCount: 3}},
		}},
		Functions:   []gcp.Function{{Name: "resize", Region: region, Runtime: "go122", Status: "ACTIVE", Timeout: "60s", MemoryMB: 256}},
		RunServices: []gcp.RunService{{Name: "api", Region: region, URL: "https://api-xyz.a.run.app", Image: "gcr.io/" + projectID + "/api"}},

		ServiceAccounts: []gcp.ServiceAccount{{Email: saEmail, Name: "deployer", DisplayName: "Deployer"}},
		CustomRoles:     []gcp.Role{{Name: customRole, Title: "Auditor", Stage: "GA", Permissions: []string{"compute.instances.list"}}},
		Policy: gcp.Policy{Bindings: []gcp.Binding{
			{Role: "roles/viewer", Members: []string{"user:alice@example.com", "group:ops@example.com"}},
			{Role: customRole, Members: []string{"serviceAccount:" + saEmail}},
		}},
	}
}
