package handlers_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/gcp-inventory/internal/api/handlers"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/discovery"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/hugh/gcp-inventory/internal/tasks"
	"github.com/hugh/gcp-inventory/internal/testutil"
	"github.com/hugh/gcp-inventory/pkg/config"
	"gorm.io/gorm"
)

type apiSetup struct {
	db       *gorm.DB
	store    *progress.MemoryStore
	enqueuer *testutil.FakeEnqueuer
	router   *chi.Mux
	org      *models.Organization
}

func setupRouter(t *testing.T) *apiSetup {
	t.Helper()

	db := testutil.SetupTestDB(t)
	logger := testutil.Logger()
	store := progress.NewMemoryStore()
	enq := &testutil.FakeEnqueuer{}

	finalizer := discovery.NewFinalizer(db, store, logger)
	creds := &testutil.FakeCredentials{Cloud: testutil.NewFakeCloud()}
	coordinator := discovery.NewCoordinator(db, store, creds, tasks.NewDispatcher(enq, 0), finalizer,
		config.DiscoveryConfig{BatchSize: 10, PoolSize: 2}, logger)

	orgHandler := handlers.NewOrganizationHandler(db, coordinator, enq, logger)
	scanHandler := handlers.NewScanHandler(db, store, logger)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/organizations", orgHandler.List)
		r.Get("/organizations/{id}", orgHandler.Get)
		r.Get("/organizations/{id}/scans", scanHandler.List)
		r.Post("/organizations/{id}/scans", orgHandler.StartScan)
		r.Post("/organizations/{id}/cancel", orgHandler.Cancel)
		r.Post("/organizations/{id}/reset", orgHandler.Reset)
		r.Get("/scans/{id}", scanHandler.Get)
	})

	return &apiSetup{
		db:       db,
		store:    store,
		enqueuer: enq,
		router:   r,
		org:      testutil.CreateTestOrg(t, db),
	}
}

func (s *apiSetup) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, testutil.JSONRequest(t, method, path, nil))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	testutil.ParseJSONResponse(t, rr, &v)
	return v
}

func rawPayload(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	return m
}
