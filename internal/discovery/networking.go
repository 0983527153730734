package discovery

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
)

const (
	serviceCompute = "compute.googleapis.com"
	serviceDNS     = "dns.googleapis.com"
)

func networkingCollectors() []collector {
	return []collector{
		{kind: models.KindNetworks, service: serviceCompute, collect: collectNetworks},
		{kind: models.KindSubnets, service: serviceCompute, collect: collectSubnets},
		{kind: models.KindFirewallRules, service: serviceCompute, collect: collectFirewalls},
		// Routers also write their NAT configurations.
		{kind: models.KindRouters, service: serviceCompute, collect: collectRouters},
		{kind: models.KindVPNGateways, service: serviceCompute, collect: collectVPNGateways},
		{kind: models.KindVPNTunnels, service: serviceCompute, collect: collectVPNTunnels},
		{kind: models.KindLoadBalancers, service: serviceCompute, collect: collectLoadBalancers},
		{kind: models.KindDNSZones, service: serviceDNS, collect: collectDNS},
	}
}

func (s *session) networkID(ctx context.Context, name string) (uuid.UUID, error) {
	return parentID[models.Network](ctx, s.db, map[string]any{"project_id": s.project.ID, "name": name})
}

func (s *session) optionalNetworkID(ctx context.Context, name string) (*uuid.UUID, error) {
	return optionalParentID[models.Network](ctx, s.db, name, map[string]any{"project_id": s.project.ID, "name": name})
}

// optionalSubnetID resolves a subnet by region and name. Callers that only
// know a zone pass its region.
func (s *session) optionalSubnetID(ctx context.Context, region, name string) (*uuid.UUID, error) {
	return optionalParentID[models.Subnet](ctx, s.db, name, map[string]any{
		"project_id": s.project.ID, "region": region, "name": name,
	})
}

func collectNetworks(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListNetworks, s.projectID()), func(n gcp.Network) error {
		return save(ctx, s, models.KindNetworks, &models.Network{
			ProjectID:         s.project.ID,
			Name:              n.Name,
			Description:       n.Description,
			AutoCreateSubnets: n.AutoCreateSubnetworks,
			RoutingMode:       n.RoutingMode,
			MTU:               n.MTU,
			SelfLink:          n.SelfLink,
		})
	})
}

func collectSubnets(ctx context.Context, s *session) error {
	return paginateScoped(ctx, forProject(s.client.ListSubnetworks, s.projectID()), func(sn gcp.Subnetwork) error {
		networkID, err := s.networkID(ctx, sn.Network)
		if err != nil {
			return s.skip(models.KindSubnets, sn.Name, err)
		}
		return save(ctx, s, models.KindSubnets, &models.Subnet{
			ProjectID:           s.project.ID,
			Region:              sn.Region,
			Name:                sn.Name,
			NetworkID:           networkID,
			IPCIDRRange:         sn.IPCIDRRange,
			GatewayAddress:      sn.GatewayAddress,
			PrivateGoogleAccess: sn.PrivateIPGoogleAccess,
			Purpose:             sn.Purpose,
			SelfLink:            sn.SelfLink,
		})
	})
}

func collectFirewalls(ctx context.Context, s *session) error {
	return paginate(ctx, forProject(s.client.ListFirewalls, s.projectID()), func(fw gcp.Firewall) error {
		networkID, err := s.networkID(ctx, fw.Network)
		if err != nil {
			return s.skip(models.KindFirewallRules, fw.Name, err)
		}

		action, rules := "allow", fw.Allowed
		if len(fw.Denied) > 0 {
			action, rules = "deny", fw.Denied
		}
		return save(ctx, s, models.KindFirewallRules, &models.FirewallRule{
			ProjectID:         s.project.ID,
			Name:              fw.Name,
			NetworkID:         networkID,
			Direction:         fw.Direction,
			Priority:          fw.Priority,
			Action:            action,
			Rules:             models.JSON(rules),
			SourceRanges:      models.JSON(fw.SourceRanges),
			DestinationRanges: models.JSON(fw.DestinationRanges),
			TargetTags:        models.JSON(fw.TargetTags),
			Disabled:          fw.Disabled,
			SelfLink:          fw.SelfLink,
		})
	})
}

// collectRouters upserts each router and then the NAT configurations nested in
// it. NATs are resolved against the stored router, so a router that could not
// be written takes its NATs with it.
func collectRouters(ctx context.Context, s *session) error {
	return paginateScoped(ctx, forProject(s.client.ListRouters, s.projectID()), func(r gcp.Router) error {
		networkID, err := s.networkID(ctx, r.Network)
		if err != nil {
			return s.skip(models.KindRouters, r.Name, err)
		}
		if err := save(ctx, s, models.KindRouters, &models.Router{
			ProjectID:     s.project.ID,
			Region:        r.Region,
			Name:          r.Name,
			NetworkID:     networkID,
			ASN:           r.ASN,
			AdvertiseMode: r.AdvertiseMode,
			SelfLink:      r.SelfLink,
		}); err != nil {
			return err
		}

		for _, nat := range r.NATs {
			if err := s.saveNAT(ctx, r, nat); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *session) saveNAT(ctx context.Context, r gcp.Router, nat gcp.RouterNAT) error {
	routerID, err := parentID[models.Router](ctx, s.db, map[string]any{
		"project_id": s.project.ID, "region": r.Region, "name": r.Name,
	})
	if err != nil {
		return s.skip(models.KindNATs, nat.Name, err)
	}
	return save(ctx, s, models.KindNATs, &models.NAT{
		RouterID:           routerID,
		Name:               nat.Name,
		ProjectID:          s.project.ID,
		IPAllocateOption:   nat.IPAllocateOption,
		SourceSubnetRanges: nat.SourceSubnetRanges,
		NATIPs:             models.JSON(nat.NATIPs),
		MinPortsPerVM:      nat.MinPortsPerVM,
	})
}

func collectVPNGateways(ctx context.Context, s *session) error {
	return paginateScoped(ctx, forProject(s.client.ListVPNGateways, s.projectID()), func(g gcp.VPNGateway) error {
		networkID, err := s.networkID(ctx, g.Network)
		if err != nil {
			return s.skip(models.KindVPNGateways, g.Name, err)
		}
		return save(ctx, s, models.KindVPNGateways, &models.VPNGateway{
			ProjectID:   s.project.ID,
			Region:      g.Region,
			Name:        g.Name,
			NetworkID:   networkID,
			IPAddresses: models.JSON(g.IPAddresses),
			Labels:      models.JSON(g.Labels),
			SelfLink:    g.SelfLink,
		})
	})
}

func collectVPNTunnels(ctx context.Context, s *session) error {
	return paginateScoped(ctx, forProject(s.client.ListVPNTunnels, s.projectID()), func(t gcp.VPNTunnel) error {
		scope := map[string]any{"project_id": s.project.ID, "region": t.Region}

		gatewayID, err := optionalParentID[models.VPNGateway](ctx, s.db, t.Gateway, with(scope, "name", t.Gateway))
		if err != nil {
			return err
		}
		routerID, err := optionalParentID[models.Router](ctx, s.db, t.Router, with(scope, "name", t.Router))
		if err != nil {
			return err
		}
		return save(ctx, s, models.KindVPNTunnels, &models.VPNTunnel{
			ProjectID:  s.project.ID,
			Region:     t.Region,
			Name:       t.Name,
			GatewayID:  gatewayID,
			RouterID:   routerID,
			PeerIP:     t.PeerIP,
			Status:     t.Status,
			IKEVersion: t.IKEVersion,
			SelfLink:   t.SelfLink,
		})
	})
}

func collectLoadBalancers(ctx context.Context, s *session) error {
	return paginateScoped(ctx, forProject(s.client.ListForwardingRules, s.projectID()), func(fr gcp.ForwardingRule) error {
		networkID, err := s.optionalNetworkID(ctx, fr.Network)
		if err != nil {
			return err
		}
		region := fr.Region
		if region == "" {
			region = "global"
		}
		return save(ctx, s, models.KindLoadBalancers, &models.LoadBalancer{
			ProjectID: s.project.ID,
			Region:    region,
			Name:      fr.Name,
			NetworkID: networkID,
			IPAddress: fr.IPAddress,
			Protocol:  fr.Protocol,
			PortRange: fr.PortRange,
			Scheme:    fr.Scheme,
			Target:    fr.Target,
			SelfLink:  fr.SelfLink,
		})
	})
}

// collectDNS walks managed zones and, for each stored zone, its record sets.
// A record-set listing error for one zone is reported and the next zone is
// tried.
func collectDNS(ctx context.Context, s *session) error {
	var zones []gcp.ManagedZone
	err := paginate(ctx, forProject(s.client.ListManagedZones, s.projectID()), func(z gcp.ManagedZone) error {
		if err := save(ctx, s, models.KindDNSZones, &models.DNSZone{
			ProjectID:   s.project.ID,
			Name:        z.Name,
			DNSName:     z.DNSName,
			Visibility:  z.Visibility,
			Description: z.Description,
			Labels:      models.JSON(z.Labels),
		}); err != nil {
			return err
		}
		zones = append(zones, z)
		return nil
	})
	if err != nil {
		return err
	}

	for _, z := range zones {
		if err := s.collectRecordSets(ctx, z.Name); err != nil {
			if gcp.Classify(err).Class != gcp.ClassWarning {
				return err
			}
			s.report(ctx, models.KindDNSRecords, err)
		}
	}
	return nil
}

func (s *session) collectRecordSets(ctx context.Context, zone string) error {
	zoneID, err := parentID[models.DNSZone](ctx, s.db, map[string]any{"project_id": s.project.ID, "name": zone})
	if err != nil {
		return s.skip(models.KindDNSRecords, zone, err)
	}

	list := func(ctx context.Context, token string) (gcp.Page[gcp.RecordSet], error) {
		return s.client.ListRecordSets(ctx, s.projectID(), zone, token)
	}
	return paginate(ctx, list, func(rs gcp.RecordSet) error {
		return save(ctx, s, models.KindDNSRecords, &models.DNSRecord{
			ZoneID:  zoneID,
			Name:    rs.Name,
			Type:    rs.Type,
			TTL:     rs.TTL,
			RRDatas: models.JSON(rs.RRDatas),
		})
	})
}

func with(scope map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(scope)+1)
	for k, v := range scope {
		out[k] = v
	}
	out[key] = value
	return out
}
