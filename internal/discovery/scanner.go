package discovery

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"github.com/hugh/gcp-inventory/internal/metrics"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const tracerName = "github.com/hugh/gcp-inventory/internal/discovery"

// group is a set of collectors behind one organization toggle. Groups run in
// the order returned by groups so that parents are stored before children.
type group struct {
	name       string
	enabled    func(org *models.Organization) bool
	collectors []collector
}

func groups() []group {
	return []group{
		{"networking", func(o *models.Organization) bool { return o.DiscoverNetworking }, networkingCollectors()},
		{"compute", func(o *models.Organization) bool { return o.DiscoverCompute }, computeCollectors()},
		{"databases", func(o *models.Organization) bool { return o.DiscoverDatabases }, databaseCollectors()},
		{"storage", func(o *models.Organization) bool { return o.DiscoverStorage }, storageCollectors()},
		{"kubernetes", func(o *models.Organization) bool { return o.DiscoverKubernetes }, kubernetesCollectors()},
		{"serverless", func(o *models.Organization) bool { return o.DiscoverServerless }, serverlessCollectors()},
		{"iam", func(o *models.Organization) bool { return o.DiscoverIAM }, iamCollectors()},
	}
}

// serviceAliases lists alternate service names that also enable a collector.
var serviceAliases = map[string][]string{
	serviceStorage: storageServices,
}

// Run is the batch-wide state shared by the project scans of one batch.
type Run struct {
	Org     *models.Organization
	Client  gcp.Client
	Tracker *progress.Tracker

	canceled atomic.Bool
}

// Scanner runs the enabled collectors against one project.
type Scanner struct {
	db       *gorm.DB
	services *cache.Cache
	roles    *cache.Cache
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

func NewScanner(db *gorm.DB, serviceTTL time.Duration, logger *slog.Logger) *Scanner {
	return &Scanner{
		db:       db,
		services: cache.New(serviceTTL, 2*serviceTTL),
		roles:    cache.New(6*time.Hour, time.Hour),
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		now:      time.Now,
	}
}

// Canceled reports whether the scan behind run was asked to stop. Once seen,
// the answer sticks for the rest of the batch. The Store's cancel key is read
// first and the organization row second, so a Store outage still lets a
// cancel through.
func (s *Scanner) Canceled(ctx context.Context, run *Run) bool {
	if run.canceled.Load() {
		return true
	}

	requested, err := run.Tracker.CancelRequested(ctx)
	if err != nil || !requested {
		var org models.Organization
		if dbErr := s.db.WithContext(ctx).Select("cancel_requested").First(&org, "id = ?", run.Org.ID).Error; dbErr == nil {
			requested = org.CancelRequested
		}
	}
	if requested {
		run.canceled.Store(true)
	}
	return requested
}

// ScanProject discovers every enabled resource kind in project. Collector
// errors are classified and logged against the scan; nothing is returned.
func (s *Scanner) ScanProject(ctx context.Context, run *Run, project *models.Project) {
	if s.Canceled(ctx, run) {
		run.Tracker.Infof(ctx, "Skipping project %s: scan canceled", project.ProjectID)
		return
	}

	ctx, span := s.tracer.Start(ctx, "discovery.project",
		trace.WithAttributes(attribute.String("gcp.project_id", project.ProjectID)))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ProjectScanDuration.Observe(time.Since(start).Seconds())
	}()

	run.Tracker.Infof(ctx, "Scanning project %s", project.ProjectID)

	sess := &session{
		db:      s.db,
		client:  run.Client,
		project: project,
		tracker: run.Tracker,
		logger:  s.logger.With("project", project.ProjectID, "scan_id", run.Tracker.ScanID()),
		roles:   newRoleResolver(s.roles),
		now:     s.now(),
		counts:  make(map[string]int),
	}
	enabled := s.enabledServices(ctx, run, project.ProjectID)

	var selected []group
	for _, g := range groups() {
		if g.enabled(run.Org) {
			selected = append(selected, g)
		}
	}

	for i, g := range selected {
		if i > 0 && s.Canceled(ctx, run) {
			run.Tracker.Infof(ctx, "Cancellation requested, stopping project %s before %s", project.ProjectID, g.name)
			return
		}
		s.runGroup(ctx, sess, g, enabled)
	}

	total := 0
	for _, n := range sess.counts {
		total += n
	}
	run.Tracker.Infof(ctx, "Finished project %s: %d resources", project.ProjectID, total)
}

func (s *Scanner) runGroup(ctx context.Context, sess *session, g group, enabled map[string]bool) {
	ctx, span := s.tracer.Start(ctx, "discovery.group", trace.WithAttributes(attribute.String("group", g.name)))
	defer span.End()

	for _, c := range g.collectors {
		if !serviceEnabled(enabled, c.service) {
			metrics.CollectorRuns.WithLabelValues(c.kind, "skipped").Inc()
			sess.logger.Debug("service disabled, skipping collector", "kind", c.kind, "service", c.service)
			continue
		}

		if err := c.collect(ctx, sess); err != nil {
			sess.report(ctx, c.kind, err)
			continue
		}
		metrics.CollectorRuns.WithLabelValues(c.kind, "ok").Inc()
		if n := sess.counts[c.kind]; n > 0 {
			sess.logger.Debug("collector finished", "kind", c.kind, "count", n)
		}
	}
}

// enabledServices returns the project's enabled APIs, or nil when they could
// not be listed. Nil enables every collector.
func (s *Scanner) enabledServices(ctx context.Context, run *Run, projectID string) map[string]bool {
	if v, ok := s.services.Get(projectID); ok {
		return v.(map[string]bool)
	}

	names, err := run.Client.ListEnabledServices(ctx, projectID)
	if err != nil {
		run.Tracker.Warnf(ctx, "Could not list enabled services for %s, running all collectors: %v", projectID, err)
		return nil
	}

	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	s.services.SetDefault(projectID, set)
	return set
}

func serviceEnabled(enabled map[string]bool, service string) bool {
	if enabled == nil || service == "" || enabled[service] {
		return true
	}
	for _, alias := range serviceAliases[service] {
		if enabled[alias] {
			return true
		}
	}
	return false
}

// report logs a collector error at the level its class calls for.
func (s *session) report(ctx context.Context, kind string, err error) {
	c := gcp.Classify(err)
	metrics.CollectorRuns.WithLabelValues(kind, c.Class.String()).Inc()

	if c.Class == gcp.ClassWarning {
		reason := c.Reason
		if reason == "" {
			reason = err.Error()
		}
		s.tracker.Warnf(ctx, "Skipping %s in %s: %s", kind, s.projectID(), reason)
		return
	}
	s.tracker.Errorf(ctx, "Failed to discover %s in %s: %v", kind, s.projectID(), err)
}
