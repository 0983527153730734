package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	computeapi "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/storage"
	"golang.org/x/time/rate"
	"google.golang.org/api/cloudfunctions/v1"
	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/container/v1"
	"google.golang.org/api/dns/v1"
	"google.golang.org/api/iam/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/run/v1"
	"google.golang.org/api/serviceusage/v1"
	"google.golang.org/api/spanner/v1"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
)

// ClientOptions bounds every outbound call.
type ClientOptions struct {
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	PageSize          int64
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 10
	}
	if o.Burst <= 0 {
		o.Burst = 20
	}
	if o.PageSize <= 0 {
		o.PageSize = 500
	}
	return o
}

// RESTClient implements Client. All services share one rate limiter, so
// concurrent project scans inside a batch draw from the same budget.
type RESTClient struct {
	opts    ClientOptions
	limiter *rate.Limiter

	crm       *cloudresourcemanager.Service
	usage     *serviceusage.Service
	compute   *compute.Service
	instances *computeapi.InstancesClient
	dns       *dns.Service
	sql       *sqladmin.Service
	spanner   *spanner.Service
	container *container.Service
	functions *cloudfunctions.Service
	run       *run.APIService
	iam       *iam.Service
	storage   *storage.Client
}

var _ Client = (*RESTClient)(nil)

func NewRESTClient(ctx context.Context, opts ClientOptions, clientOpts ...option.ClientOption) (*RESTClient, error) {
	opts = opts.withDefaults()
	c := &RESTClient{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}

	var err error
	if c.crm, err = cloudresourcemanager.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating resource manager client: %w", err)
	}
	if c.usage, err = serviceusage.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating service usage client: %w", err)
	}
	if c.compute, err = compute.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating compute client: %w", err)
	}
	if c.instances, err = computeapi.NewInstancesRESTClient(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating instances client: %w", err)
	}
	if c.dns, err = dns.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating dns client: %w", err)
	}
	if c.sql, err = sqladmin.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating sql admin client: %w", err)
	}
	if c.spanner, err = spanner.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating spanner client: %w", err)
	}
	if c.container, err = container.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating container client: %w", err)
	}
	if c.functions, err = cloudfunctions.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating cloud functions client: %w", err)
	}
	if c.run, err = run.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating cloud run client: %w", err)
	}
	if c.iam, err = iam.NewService(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating iam client: %w", err)
	}
	if c.storage, err = storage.NewClient(ctx, clientOpts...); err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return c, nil
}

func (c *RESTClient) Close() error {
	var firstErr error
	if c.instances != nil {
		firstErr = c.instances.Close()
	}
	if c.storage != nil {
		if err := c.storage.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// call waits for the shared limiter and runs fn under the per-request timeout.
func call[R any](ctx context.Context, c *RESTClient, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	return fn(ctx)
}

// lastSegment reduces a resource URL to its final path element.
func lastSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
