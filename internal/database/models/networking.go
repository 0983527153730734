package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Network struct {
	Base
	ProjectID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_networks_natural" json:"project_id"`
	Name              string    `gorm:"not null;uniqueIndex:idx_networks_natural" json:"name"`
	Description       string    `json:"description,omitempty"`
	AutoCreateSubnets bool      `json:"auto_create_subnets"`
	RoutingMode       string    `json:"routing_mode"`
	MTU               int64     `json:"mtu"`
	SelfLink          string    `json:"self_link"`
	Inventory
}

func (Network) TableName() string { return "networks" }

func (n *Network) NaturalKey() map[string]any {
	return map[string]any{"project_id": n.ProjectID, "name": n.Name}
}

type Subnet struct {
	Base
	ProjectID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_subnets_natural" json:"project_id"`
	Region              string    `gorm:"not null;uniqueIndex:idx_subnets_natural" json:"region"`
	Name                string    `gorm:"not null;uniqueIndex:idx_subnets_natural" json:"name"`
	NetworkID           uuid.UUID `gorm:"type:uuid;not null;index" json:"network_id"`
	IPCIDRRange         string    `json:"ip_cidr_range"`
	GatewayAddress      string    `json:"gateway_address"`
	PrivateGoogleAccess bool      `json:"private_google_access"`
	Purpose             string    `json:"purpose,omitempty"`
	SelfLink            string    `json:"self_link"`
	Inventory
}

func (Subnet) TableName() string { return "subnets" }

func (s *Subnet) NaturalKey() map[string]any {
	return map[string]any{"project_id": s.ProjectID, "region": s.Region, "name": s.Name}
}

type FirewallRule struct {
	Base
	ProjectID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_firewall_rules_natural" json:"project_id"`
	Name              string         `gorm:"not null;uniqueIndex:idx_firewall_rules_natural" json:"name"`
	NetworkID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"network_id"`
	Direction         string         `json:"direction"`
	Priority          int64          `json:"priority"`
	Action            string         `json:"action"`
	Rules             datatypes.JSON `json:"rules"`
	SourceRanges      datatypes.JSON `json:"source_ranges"`
	DestinationRanges datatypes.JSON `json:"destination_ranges"`
	TargetTags        datatypes.JSON `json:"target_tags"`
	Disabled          bool           `json:"disabled"`
	SelfLink          string         `json:"self_link"`
	Inventory
}

func (FirewallRule) TableName() string { return "firewall_rules" }

func (f *FirewallRule) NaturalKey() map[string]any {
	return map[string]any{"project_id": f.ProjectID, "name": f.Name}
}

type Router struct {
	Base
	ProjectID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_routers_natural" json:"project_id"`
	Region        string    `gorm:"not null;uniqueIndex:idx_routers_natural" json:"region"`
	Name          string    `gorm:"not null;uniqueIndex:idx_routers_natural" json:"name"`
	NetworkID     uuid.UUID `gorm:"type:uuid;not null;index" json:"network_id"`
	ASN           int64     `json:"asn"`
	AdvertiseMode string    `json:"advertise_mode"`
	SelfLink      string    `json:"self_link"`
	Inventory
}

func (Router) TableName() string { return "routers" }

func (r *Router) NaturalKey() map[string]any {
	return map[string]any{"project_id": r.ProjectID, "region": r.Region, "name": r.Name}
}

// NAT is a Cloud NAT configuration, which only exists inside a router.
type NAT struct {
	Base
	RouterID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_nats_natural" json:"router_id"`
	Name               string         `gorm:"not null;uniqueIndex:idx_nats_natural" json:"name"`
	ProjectID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	IPAllocateOption   string         `json:"ip_allocate_option"`
	SourceSubnetRanges string         `json:"source_subnet_ranges"`
	NATIPs             datatypes.JSON `json:"nat_ips"`
	MinPortsPerVM      int64          `json:"min_ports_per_vm"`
	Inventory
}

func (NAT) TableName() string { return "nats" }

func (n *NAT) NaturalKey() map[string]any {
	return map[string]any{"router_id": n.RouterID, "name": n.Name}
}

type VPNGateway struct {
	Base
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_vpn_gateways_natural" json:"project_id"`
	Region      string         `gorm:"not null;uniqueIndex:idx_vpn_gateways_natural" json:"region"`
	Name        string         `gorm:"not null;uniqueIndex:idx_vpn_gateways_natural" json:"name"`
	NetworkID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"network_id"`
	IPAddresses datatypes.JSON `json:"ip_addresses"`
	Labels      datatypes.JSON `json:"labels"`
	SelfLink    string         `json:"self_link"`
	Inventory
}

func (VPNGateway) TableName() string { return "vpn_gateways" }

func (g *VPNGateway) NaturalKey() map[string]any {
	return map[string]any{"project_id": g.ProjectID, "region": g.Region, "name": g.Name}
}

// VPNTunnel references its gateway and router when they are known; classic
// tunnels have neither.
type VPNTunnel struct {
	Base
	ProjectID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_vpn_tunnels_natural" json:"project_id"`
	Region     string     `gorm:"not null;uniqueIndex:idx_vpn_tunnels_natural" json:"region"`
	Name       string     `gorm:"not null;uniqueIndex:idx_vpn_tunnels_natural" json:"name"`
	GatewayID  *uuid.UUID `gorm:"type:uuid;index" json:"gateway_id,omitempty"`
	RouterID   *uuid.UUID `gorm:"type:uuid;index" json:"router_id,omitempty"`
	PeerIP     string     `json:"peer_ip"`
	Status     string     `json:"status"`
	IKEVersion int64      `json:"ike_version"`
	SelfLink   string     `json:"self_link"`
	Inventory
}

func (VPNTunnel) TableName() string { return "vpn_tunnels" }

func (t *VPNTunnel) NaturalKey() map[string]any {
	return map[string]any{"project_id": t.ProjectID, "region": t.Region, "name": t.Name}
}

// LoadBalancer is a forwarding rule; Region is "global" for global rules.
type LoadBalancer struct {
	Base
	ProjectID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_load_balancers_natural" json:"project_id"`
	Region    string     `gorm:"not null;uniqueIndex:idx_load_balancers_natural" json:"region"`
	Name      string     `gorm:"not null;uniqueIndex:idx_load_balancers_natural" json:"name"`
	NetworkID *uuid.UUID `gorm:"type:uuid;index" json:"network_id,omitempty"`
	IPAddress string     `json:"ip_address"`
	Protocol  string     `json:"protocol"`
	PortRange string     `json:"port_range"`
	Scheme    string     `json:"scheme"`
	Target    string     `json:"target"`
	SelfLink  string     `json:"self_link"`
	Inventory
}

func (LoadBalancer) TableName() string { return "load_balancers" }

func (l *LoadBalancer) NaturalKey() map[string]any {
	return map[string]any{"project_id": l.ProjectID, "region": l.Region, "name": l.Name}
}

type DNSZone struct {
	Base
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_dns_zones_natural" json:"project_id"`
	Name        string         `gorm:"not null;uniqueIndex:idx_dns_zones_natural" json:"name"`
	DNSName     string         `json:"dns_name"`
	Visibility  string         `json:"visibility"`
	Description string         `json:"description,omitempty"`
	Labels      datatypes.JSON `json:"labels"`
	Inventory
}

func (DNSZone) TableName() string { return "dns_zones" }

func (z *DNSZone) NaturalKey() map[string]any {
	return map[string]any{"project_id": z.ProjectID, "name": z.Name}
}

type DNSRecord struct {
	Base
	ZoneID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_dns_records_natural" json:"zone_id"`
	Name    string         `gorm:"not null;uniqueIndex:idx_dns_records_natural" json:"name"`
	Type    string         `gorm:"not null;uniqueIndex:idx_dns_records_natural" json:"type"`
	TTL     int64          `json:"ttl"`
	RRDatas datatypes.JSON `json:"rrdatas"`
	Inventory
}

func (DNSRecord) TableName() string { return "dns_records" }

func (r *DNSRecord) NaturalKey() map[string]any {
	return map[string]any{"zone_id": r.ZoneID, "name": r.Name, "type": r.Type}
}
