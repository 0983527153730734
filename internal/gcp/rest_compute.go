package gcp

import (
	"context"

	computeapi "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/iterator"
)

// ListInstances uses the compute client library; its iterator is paged
// explicitly so the caller keeps control of continuation tokens.
func (c *RESTClient) ListInstances(ctx context.Context, projectID, pageToken string) (ScopedPage[Instance], error) {
	type result struct {
		pairs []computeapi.InstancesScopedListPair
		next  string
	}

	res, err := call(ctx, c, func(ctx context.Context) (result, error) {
		it := c.instances.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{Project: projectID})
		var pairs []computeapi.InstancesScopedListPair
		next, err := iterator.NewPager(it, int(c.opts.PageSize), pageToken).NextPage(&pairs)
		return result{pairs: pairs, next: next}, err
	})
	if err != nil {
		return ScopedPage[Instance]{}, err
	}

	page := ScopedPage[Instance]{Items: map[string][]Instance{}, NextPageToken: res.next}
	for _, pair := range res.pairs {
		for _, inst := range pair.Value.GetInstances() {
			page.Items[pair.Key] = append(page.Items[pair.Key], convertInstance(inst))
		}
	}
	return page, nil
}

func convertInstance(inst *computepb.Instance) Instance {
	out := Instance{
		Name:        inst.GetName(),
		Zone:        lastSegment(inst.GetZone()),
		MachineType: lastSegment(inst.GetMachineType()),
		Status:      inst.GetStatus(),
		Labels:      inst.GetLabels(),
		SelfLink:    inst.GetSelfLink(),
	}

	if nics := inst.GetNetworkInterfaces(); len(nics) > 0 {
		nic := nics[0]
		out.Network = lastSegment(nic.GetNetwork())
		out.Subnetwork = lastSegment(nic.GetSubnetwork())
		out.InternalIP = nic.GetNetworkIP()
		if acs := nic.GetAccessConfigs(); len(acs) > 0 {
			out.ExternalIP = acs[0].GetNatIP()
		}
	}
	for _, d := range inst.GetDisks() {
		if d.GetBoot() {
			out.BootDiskGB = d.GetDiskSizeGb()
			break
		}
	}
	return out
}

func (c *RESTClient) ListInstanceTemplates(ctx context.Context, projectID, pageToken string) (Page[InstanceTemplate], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.InstanceTemplateList, error) {
		return c.compute.InstanceTemplates.List(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return Page[InstanceTemplate]{}, err
	}

	page := Page[InstanceTemplate]{NextPageToken: resp.NextPageToken}
	for _, t := range resp.Items {
		tmpl := InstanceTemplate{Name: t.Name, Description: t.Description, SelfLink: t.SelfLink}
		if t.Properties != nil {
			tmpl.MachineType = t.Properties.MachineType
			tmpl.Labels = t.Properties.Labels
		}
		page.Items = append(page.Items, tmpl)
	}
	return page, nil
}

func (c *RESTClient) ListInstanceGroups(ctx context.Context, projectID, pageToken string) (ScopedPage[InstanceGroup], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.InstanceGroupAggregatedList, error) {
		return c.compute.InstanceGroups.AggregatedList(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return ScopedPage[InstanceGroup]{}, err
	}

	page := ScopedPage[InstanceGroup]{Items: map[string][]InstanceGroup{}, NextPageToken: resp.NextPageToken}
	for scope, list := range resp.Items {
		for _, g := range list.InstanceGroups {
			location := lastSegment(g.Zone)
			if location == "" {
				location = lastSegment(g.Region)
			}
			page.Items[scope] = append(page.Items[scope], InstanceGroup{
				Name:     g.Name,
				Location: location,
				Network:  lastSegment(g.Network),
				Size:     g.Size,
				SelfLink: g.SelfLink,
			})
		}
	}
	return page, nil
}

func (c *RESTClient) ListDisks(ctx context.Context, projectID, pageToken string) (ScopedPage[Disk], error) {
	resp, err := call(ctx, c, func(ctx context.Context) (*compute.DiskAggregatedList, error) {
		return c.compute.Disks.AggregatedList(projectID).PageToken(pageToken).MaxResults(c.opts.PageSize).Context(ctx).Do()
	})
	if err != nil {
		return ScopedPage[Disk]{}, err
	}

	page := ScopedPage[Disk]{Items: map[string][]Disk{}, NextPageToken: resp.NextPageToken}
	for scope, list := range resp.Items {
		for _, d := range list.Disks {
			page.Items[scope] = append(page.Items[scope], Disk{
				Name:        d.Name,
				Zone:        lastSegment(d.Zone),
				Type:        lastSegment(d.Type),
				Status:      d.Status,
				SourceImage: lastSegment(d.SourceImage),
				SizeGB:      d.SizeGb,
				Users:       d.Users,
				Labels:      d.Labels,
				SelfLink:    d.SelfLink,
			})
		}
	}
	return page, nil
}
