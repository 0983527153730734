package models

// All returns every model for AutoMigrate, parents before children.
func All() []any {
	return []any{
		&Organization{}, &Scan{}, &Project{},
		&Network{}, &Subnet{}, &FirewallRule{}, &Router{}, &NAT{},
		&VPNGateway{}, &VPNTunnel{}, &LoadBalancer{}, &DNSZone{}, &DNSRecord{},
		&Instance{}, &InstanceTemplate{}, &InstanceGroup{}, &Disk{},
		&SQLInstance{}, &SpannerInstance{}, &Bucket{},
		&GKECluster{}, &GKENodePool{}, &CloudFunction{}, &CloudRunService{},
		&ServiceAccount{}, &IAMRole{}, &IAMBinding{},
	}
}
