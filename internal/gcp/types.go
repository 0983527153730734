package gcp

// Resource shapes returned by Client. Cross-resource references (Network,
// Router, Gateway, ...) are short names, not self links, and Region/Zone
// fields hold the bare location name.

type Project struct {
	ProjectID      string
	Name           string
	ProjectNumber  string
	LifecycleState string
	Labels         map[string]string
}

type Network struct {
	Name                  string
	Description           string
	AutoCreateSubnetworks bool
	RoutingMode           string
	MTU                   int64
	SelfLink              string
}

type Subnetwork struct {
	Name                  string
	Region                string
	Network               string
	IPCIDRRange           string
	GatewayAddress        string
	PrivateIPGoogleAccess bool
	Purpose               string
	SelfLink              string
}

type FirewallPortRule struct {
	Protocol string   `json:"protocol"`
	Ports    []string `json:"ports,omitempty"`
}

type Firewall struct {
	Name              string
	Network           string
	Direction         string
	Priority          int64
	Allowed           []FirewallPortRule
	Denied            []FirewallPortRule
	SourceRanges      []string
	DestinationRanges []string
	TargetTags        []string
	Disabled          bool
	SelfLink          string
}

type RouterNAT struct {
	Name               string
	IPAllocateOption   string
	SourceSubnetRanges string
	NATIPs             []string
	MinPortsPerVM      int64
}

type Router struct {
	Name          string
	Region        string
	Network       string
	ASN           int64
	AdvertiseMode string
	NATs          []RouterNAT
	SelfLink      string
}

type VPNGateway struct {
	Name        string
	Region      string
	Network     string
	IPAddresses []string
	Labels      map[string]string
	SelfLink    string
}

type VPNTunnel struct {
	Name       string
	Region     string
	Gateway    string
	Router     string
	PeerIP     string
	Status     string
	IKEVersion int64
	SelfLink   string
}

type ForwardingRule struct {
	Name      string
	Region    string
	Network   string
	IPAddress string
	Protocol  string
	PortRange string
	Scheme    string
	Target    string
	SelfLink  string
}

type ManagedZone struct {
	Name        string
	DNSName     string
	Visibility  string
	Description string
	Labels      map[string]string
}

type RecordSet struct {
	Name    string
	Type    string
	TTL     int64
	RRDatas []string
}

type Instance struct {
	Name        string
	Zone        string
	MachineType string
	Status      string
	Network     string
	Subnetwork  string
	InternalIP  string
	ExternalIP  string
	BootDiskGB  int64
	Labels      map[string]string
	SelfLink    string
}

type InstanceTemplate struct {
	Name        string
	Description string
	MachineType string
	Labels      map[string]string
	SelfLink    string
}

type InstanceGroup struct {
	Name     string
	Location string
	Network  string
	Size     int64
	SelfLink string
}

type Disk struct {
	Name        string
	Zone        string
	Type        string
	Status      string
	SourceImage string
	SizeGB      int64
	Users       []string
	Labels      map[string]string
	SelfLink    string
}

type SQLInstance struct {
	Name            string
	DatabaseVersion string
	Region          string
	Tier            string
	State           string
	PrivateNetwork  string
	ConnectionName  string
	DiskSizeGB      int64
	IPAddresses     []string
	Labels          map[string]string
}

type SpannerInstance struct {
	Name            string
	DisplayName     string
	Config          string
	State           string
	NodeCount       int64
	ProcessingUnits int64
	Labels          map[string]string
}

type Bucket struct {
	Name                   string
	Location               string
	LocationType           string
	StorageClass           string
	PublicAccessPrevention string
	Versioning             bool
	UniformAccess          bool
	Labels                 map[string]string
}

type NodePool struct {
	Name        string
	MachineType string
	Version     string
	Status      string
	DiskSizeGB  int64
	NodeCount   int64
	Autoscaling bool
	MinNodes    int64
	MaxNodes    int64
}

type Cluster struct {
	Name          string
	Location      string
	Network       string
	Subnetwork    string
	MasterVersion string
	Status        string
	Endpoint      string
	NodeCount     int64
	Labels        map[string]string
	NodePools     []NodePool
	SelfLink      string
}

type Function struct {
	Name                string
	Region              string
	Runtime             string
	EntryPoint          string
	Status              string
	Timeout             string
	ServiceAccountEmail string
	TriggerURL          string
	MemoryMB            int64
	Labels              map[string]string
}

type RunService struct {
	Name                string
	Region              string
	URL                 string
	Image               string
	ServiceAccountEmail string
	Labels              map[string]string
}

type ServiceAccount struct {
	Email       string
	Name        string
	DisplayName string
	Description string
	UniqueID    string
	Disabled    bool
}

type Role struct {
	Name        string
	Title       string
	Description string
	Stage       string
	Permissions []string
	Deleted     bool
}

type Binding struct {
	Role                string
	Members             []string
	ConditionTitle      string
	ConditionExpression string
}

type Policy struct {
	Bindings []Binding
}
