package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ScanTrigger string

const (
	ScanTriggerAPI      ScanTrigger = "api"
	ScanTriggerSchedule ScanTrigger = "schedule"
	ScanTriggerCLI      ScanTrigger = "cli"
)

// Counter keys written by collectors. KindProjects is recorded by the
// coordinator when it lists projects.
const (
	KindProjects         = "projects"
	KindNetworks         = "networks"
	KindSubnets          = "subnets"
	KindFirewallRules    = "firewall_rules"
	KindRouters          = "routers"
	KindNATs             = "nats"
	KindVPNGateways      = "vpn_gateways"
	KindVPNTunnels       = "vpn_tunnels"
	KindLoadBalancers    = "load_balancers"
	KindDNSZones         = "dns_zones"
	KindDNSRecords       = "dns_records"
	KindInstances        = "instances"
	KindInstanceTemplate = "instance_templates"
	KindInstanceGroups   = "instance_groups"
	KindDisks            = "disks"
	KindSQLInstances     = "sql_instances"
	KindSpannerInstances = "spanner_instances"
	KindBuckets          = "buckets"
	KindGKEClusters      = "gke_clusters"
	KindGKENodePools     = "gke_node_pools"
	KindCloudFunctions   = "cloud_functions"
	KindCloudRun         = "cloud_run_services"
	KindServiceAccounts  = "service_accounts"
	KindIAMRoles         = "iam_roles"
	KindIAMBindings      = "iam_bindings"
)

// Scan is the persistent record of one discovery run.
type Scan struct {
	Base
	OrganizationID uuid.UUID   `gorm:"type:uuid;index;not null" json:"organization_id"`
	Status         ScanStatus  `gorm:"not null;index" json:"status"`
	Trigger        ScanTrigger `json:"trigger"`
	TaskID         string      `gorm:"index" json:"task_id,omitempty"`

	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TotalBatches int        `json:"total_batches"`

	ProjectsDiscovered  int64 `json:"projects_discovered"`
	NetworksDiscovered  int64 `json:"networks_discovered"`
	InstancesDiscovered int64 `json:"instances_discovered"`
	DatabasesDiscovered int64 `json:"databases_discovered"`
	BucketsDiscovered   int64 `json:"buckets_discovered"`
	ClustersDiscovered  int64 `json:"clusters_discovered"`

	Counts         datatypes.JSON `json:"counts"`
	TotalResources int64          `json:"total_resources"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	LogOutput      string         `gorm:"type:text" json:"log_output,omitempty"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Scan) TableName() string {
	return "scans"
}

// CountMap decodes the per-kind counters. A missing or malformed column reads
// as empty.
func (s *Scan) CountMap() map[string]int64 {
	out := map[string]int64{}
	if len(s.Counts) == 0 {
		return out
	}
	_ = json.Unmarshal(s.Counts, &out)
	return out
}

// ApplyCounts stores counts and derives the summary columns and total.
func (s *Scan) ApplyCounts(counts map[string]int64) {
	s.Counts = JSON(counts)
	s.ProjectsDiscovered = counts[KindProjects]
	s.NetworksDiscovered = counts[KindNetworks]
	s.InstancesDiscovered = counts[KindInstances]
	s.DatabasesDiscovered = counts[KindSQLInstances] + counts[KindSpannerInstances]
	s.BucketsDiscovered = counts[KindBuckets]
	s.ClustersDiscovered = counts[KindGKEClusters]

	var total int64
	for _, n := range counts {
		total += n
	}
	s.TotalResources = total
}

// CountColumns returns the column updates matching ApplyCounts.
func (s *Scan) CountColumns() map[string]any {
	return map[string]any{
		"counts":               s.Counts,
		"projects_discovered":  s.ProjectsDiscovered,
		"networks_discovered":  s.NetworksDiscovered,
		"instances_discovered": s.InstancesDiscovered,
		"databases_discovered": s.DatabasesDiscovered,
		"buckets_discovered":   s.BucketsDiscovered,
		"clusters_discovered":  s.ClustersDiscovered,
		"total_resources":      s.TotalResources,
	}
}
