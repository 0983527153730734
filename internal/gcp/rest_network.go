package gcp

import (
	"context"

	"google.golang.org/api/compute/v1"
	"google.golang.org/api/dns/v1"
)

func (c *RESTClient) ListNetworks(ctx context.Context, projectID, pageToken string) (Page[Network], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.NetworkList, error) {
		return c.compute.Networks.List(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[Network]{}, err
	}

	page := Page[Network]{NextPageToken: resp.NextPageToken}
	for _, n := range resp.Items {
		nw := Network{
			Name:                  n.Name,
			Description:           n.Description,
			AutoCreateSubnetworks: n.AutoCreateSubnetworks,
			MTU:                   n.Mtu,
			SelfLink:              n.SelfLink,
		}
		if n.RoutingConfig != nil {
			nw.RoutingMode = n.RoutingConfig.RoutingMode
		}
		page.Items = append(page.Items, nw)
	}
	return page, nil
}

func (c *RESTClient) ListSubnetworks(ctx context.Context, projectID, pageToken string) (ScopedPage[Subnetwork], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.SubnetworkAggregatedList, error) {
		return c.compute.Subnetworks.AggregatedList(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return ScopedPage[Subnetwork]{}, err
	}

	page := ScopedPage[Subnetwork]{Items: map[string][]Subnetwork{}, NextPageToken: resp.NextPageToken}
	for scope, list := range resp.Items {
		for _, s := range list.Subnetworks {
			page.Items[scope] = append(page.Items[scope], Subnetwork{
				Name:                  s.Name,
				Region:                lastSegment(s.Region),
				Network:               lastSegment(s.Network),
				IPCIDRRange:           s.IpCidrRange,
				GatewayAddress:        s.GatewayAddress,
				PrivateIPGoogleAccess: s.PrivateIpGoogleAccess,
				Purpose:               s.Purpose,
				SelfLink:              s.SelfLink,
			})
		}
	}
	return page, nil
}

func (c *RESTClient) ListFirewalls(ctx context.Context, projectID, pageToken string) (Page[Firewall], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.FirewallList, error) {
		return c.compute.Firewalls.List(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[Firewall]{}, err
	}

	page := Page[Firewall]{NextPageToken: resp.NextPageToken}
	for _, f := range resp.Items {
		fw := Firewall{
			Name:              f.Name,
			Network:           lastSegment(f.Network),
			Direction:         f.Direction,
			Priority:          f.Priority,
			SourceRanges:      f.SourceRanges,
			DestinationRanges: f.DestinationRanges,
			TargetTags:        f.TargetTags,
			Disabled:          f.Disabled,
			SelfLink:          f.SelfLink,
		}
		for _, a := range f.Allowed {
			fw.Allowed = append(fw.Allowed, FirewallPortRule{Protocol: a.IPProtocol, Ports: a.Ports})
		}
		for _, d := range f.Denied {
			fw.Denied = append(fw.Denied, FirewallPortRule{Protocol: d.IPProtocol, Ports: d.Ports})
		}
		page.Items = append(page.Items, fw)
	}
	return page, nil
}

func (c *RESTClient) ListRouters(ctx context.Context, projectID, pageToken string) (ScopedPage[Router], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.RouterAggregatedList, error) {
		return c.compute.Routers.AggregatedList(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return ScopedPage[Router]{}, err
	}

	page := ScopedPage[Router]{Items: map[string][]Router{}, NextPageToken: resp.NextPageToken}
	for scope, list := range resp.Items {
		for _, r := range list.Routers {
			router := Router{
				Name:     r.Name,
				Region:   lastSegment(r.Region),
				Network:  lastSegment(r.Network),
				SelfLink: r.SelfLink,
			}
			if r.Bgp != nil {
				router.ASN = r.Bgp.Asn
				router.AdvertiseMode = r.Bgp.AdvertiseMode
			}
			for _, n := range r.Nats {
				router.NATs = append(router.NATs, RouterNAT{
					Name:               n.Name,
					IPAllocateOption:   n.NatIpAllocateOption,
					SourceSubnetRanges: n.SourceSubnetworkIpRangesToNat,
					NATIPs:             n.NatIps,
					MinPortsPerVM:      n.MinPortsPerVm,
				})
			}
			page.Items[scope] = append(page.Items[scope], router)
		}
	}
	return page, nil
}

func (c *RESTClient) ListVPNGateways(ctx context.Context, projectID, pageToken string) (ScopedPage[VPNGateway], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.VpnGatewayAggregatedList, error) {
		return c.compute.VpnGateways.AggregatedList(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return ScopedPage[VPNGateway]{}, err
	}

	page := ScopedPage[VPNGateway]{Items: map[string][]VPNGateway{}, NextPageToken: resp.NextPageToken}
	for scope, list := range resp.Items {
		for _, g := range list.VpnGateways {
			gw := VPNGateway{
				Name:     g.Name,
				Region:   lastSegment(g.Region),
				Network:  lastSegment(g.Network),
				Labels:   g.Labels,
				SelfLink: g.SelfLink,
			}
			for _, iface := range g.VpnInterfaces {
				gw.IPAddresses = append(gw.IPAddresses, iface.IpAddress)
			}
			page.Items[scope] = append(page.Items[scope], gw)
		}
	}
	return page, nil
}

func (c *RESTClient) ListVPNTunnels(ctx context.Context, projectID, pageToken string) (ScopedPage[VPNTunnel], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.VpnTunnelAggregatedList, error) {
		return c.compute.VpnTunnels.AggregatedList(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return ScopedPage[VPNTunnel]{}, err
	}

	page := ScopedPage[VPNTunnel]{Items: map[string][]VPNTunnel{}, NextPageToken: resp.NextPageToken}
	for scope, list := range resp.Items {
		for _, t := range list.VpnTunnels {
			page.Items[scope] = append(page.Items[scope], VPNTunnel{
				Name:       t.Name,
				Region:     lastSegment(t.Region),
				Gateway:    lastSegment(t.VpnGateway),
				Router:     lastSegment(t.Router),
				PeerIP:     t.PeerIp,
				Status:     t.Status,
				IKEVersion: t.IkeVersion,
				SelfLink:   t.SelfLink,
			})
		}
	}
	return page, nil
}

func (c *RESTClient) ListForwardingRules(ctx context.Context, projectID, pageToken string) (ScopedPage[ForwardingRule], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.ForwardingRuleAggregatedList, error) {
		return c.compute.ForwardingRules.AggregatedList(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return ScopedPage[ForwardingRule]{}, err
	}

	page := ScopedPage[ForwardingRule]{Items: map[string][]ForwardingRule{}, NextPageToken: resp.NextPageToken}
	for scope, list := range resp.Items {
		for _, r := range list.ForwardingRules {
			region := lastSegment(r.Region)
			if region == "" {
				region = "global"
			}
			page.Items[scope] = append(page.Items[scope], ForwardingRule{
				Name:      r.Name,
				Region:    region,
				Network:   lastSegment(r.Network),
				IPAddress: r.IPAddress,
				Protocol:  r.IPProtocol,
				PortRange: r.PortRange,
				Scheme:    r.LoadBalancingScheme,
				Target:    lastSegment(r.Target),
				SelfLink:  r.SelfLink,
			})
		}
	}
	return page, nil
}

func (c *RESTClient) ListManagedZones(ctx context.Context, projectID, pageToken string) (Page[ManagedZone], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*dns.ManagedZonesListResponse, error) {
		return c.dns.ManagedZones.List(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[ManagedZone]{}, err
	}

	page := Page[ManagedZone]{NextPageToken: resp.NextPageToken}
	for _, z := range resp.ManagedZones {
		page.Items = append(page.Items, ManagedZone{
			Name:        z.Name,
			DNSName:     z.DnsName,
			Visibility:  z.Visibility,
			Description: z.Description,
			Labels:      z.Labels,
		})
	}
	return page, nil
}

func (c *RESTClient) ListRecordSets(ctx context.Context, projectID, zone, pageToken string) (Page[RecordSet], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*dns.ResourceRecordSetsListResponse, error) {
		return c.dns.ResourceRecordSets.List(projectID, zone).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[RecordSet]{}, err
	}

	page := Page[RecordSet]{NextPageToken: resp.NextPageToken}
	for _, r := range resp.Rrsets {
		page.Items = append(page.Items, RecordSet{Name: r.Name, Type: r.Type, TTL: r.Ttl, RRDatas: r.Rrdatas})
	}
	return page, nil
}
