package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"github.com/hugh/gcp-inventory/internal/metrics"
	"github.com/hugh/gcp-inventory/internal/progress"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// collector discovers one resource kind for a project.
type collector struct {
	kind string
	// service is the API that must be enabled in the project; empty means
	// the collector always runs.
	service string
	collect func(ctx context.Context, s *session) error
}

// session carries one project scan. Collectors of a session run sequentially.
type session struct {
	db      *gorm.DB
	client  gcp.Client
	project *models.Project
	tracker *progress.Tracker
	logger  *slog.Logger
	roles   roleResolver
	now     time.Time
	counts  map[string]int
}

func (s *session) projectID() string { return s.project.ProjectID }

// save upserts rec and records it against kind.
func save[T any, PT interface {
	*T
	models.Discoverable
}](ctx context.Context, s *session, kind string, rec PT) error {
	created, err := upsert[T](ctx, s.db, rec, s.now)
	if err != nil {
		return err
	}

	op := "update"
	if created {
		op = "create"
	}
	metrics.ResourcesUpserted.WithLabelValues(kind, op).Inc()
	s.tracker.Incr(ctx, kind, 1)
	s.counts[kind]++
	return nil
}

// skip absorbs a parent miss for one item and passes every other error on.
func (s *session) skip(kind, item string, err error) error {
	if errors.Is(err, ErrParentNotFound) {
		metrics.ParentMisses.WithLabelValues(kind).Inc()
		s.logger.Debug("skipping item with undiscovered parent", "kind", kind, "item", item)
		return nil
	}
	return err
}

// upsert writes rec keyed on its natural key and reports whether the row was
// created. Soft-deleted rows are revived rather than duplicated.
func upsert[T any, PT interface {
	*T
	models.Discoverable
}](ctx context.Context, db *gorm.DB, rec PT, now time.Time) (bool, error) {
	rec.Touch(now)
	key := rec.NaturalKey()

	var existing T
	err := db.WithContext(ctx).Unscoped().Where(key).Take(&existing).Error
	switch {
	case err == nil:
		prev := PT(&existing).Record()
		base := rec.Record()
		base.ID = prev.ID
		base.CreatedAt = prev.CreatedAt
		base.DeletedAt = gorm.DeletedAt{}
		return false, db.WithContext(ctx).Unscoped().Save(rec).Error

	case errors.Is(err, gorm.ErrRecordNotFound):
		// A concurrent writer may insert the same key between the read and
		// this insert; the conflict clause turns that into an update.
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   conflictColumns(key),
			UpdateAll: true,
		}).Create(rec).Error
		return err == nil, err

	default:
		return false, err
	}
}

func conflictColumns(key map[string]any) []clause.Column {
	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]clause.Column, len(names))
	for i, name := range names {
		cols[i] = clause.Column{Name: name}
	}
	return cols
}

// parentID resolves a previously upserted resource by scope and name.
func parentID[T any, PT interface {
	*T
	Record() *models.Base
}](ctx context.Context, db *gorm.DB, where map[string]any) (uuid.UUID, error) {
	var out T
	err := db.WithContext(ctx).Select("id").Where(where).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, ErrParentNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return PT(&out).Record().ID, nil
}

// optionalParentID is parentID for nullable references: an empty name or a
// miss yields nil.
func optionalParentID[T any, PT interface {
	*T
	Record() *models.Base
}](ctx context.Context, db *gorm.DB, name string, where map[string]any) (*uuid.UUID, error) {
	if name == "" {
		return nil, nil
	}
	id, err := parentID[T, PT](ctx, db, where)
	if errors.Is(err, ErrParentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

type lister[P any] func(ctx context.Context, token string) (P, error)

// forProject binds a project-scoped list call.
func forProject[P any](list func(ctx context.Context, projectID, token string) (P, error), projectID string) lister[P] {
	return func(ctx context.Context, token string) (P, error) {
		return list(ctx, projectID, token)
	}
}

// paginate walks a flat listing until the continuation token runs out.
func paginate[T any](ctx context.Context, list lister[gcp.Page[T]], each func(T) error) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := list(ctx, token)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := each(item); err != nil {
				return err
			}
		}
		if page.NextPageToken == "" || page.NextPageToken == token {
			return nil
		}
		token = page.NextPageToken
	}
}

// paginateScoped walks an aggregated listing. Scopes are visited in sorted
// order so repeated scans upsert in the same sequence.
func paginateScoped[T any](ctx context.Context, list lister[gcp.ScopedPage[T]], each func(T) error) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := list(ctx, token)
		if err != nil {
			return err
		}
		scopes := make([]string, 0, len(page.Items))
		for scope := range page.Items {
			scopes = append(scopes, scope)
		}
		sort.Strings(scopes)
		for _, scope := range scopes {
			for _, item := range page.Items[scope] {
				if err := each(item); err != nil {
					return err
				}
			}
		}
		if page.NextPageToken == "" || page.NextPageToken == token {
			return nil
		}
		token = page.NextPageToken
	}
}
