package discovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizationStateMachine(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	org := testutil.CreateTestOrg(t, db)

	status := func() models.ScanStatus {
		t.Helper()
		o, err := loadOrganization(ctx, db, org.ID)
		require.NoError(t, err)
		return o.ScanStatus
	}

	scanID := uuid.New()
	require.NoError(t, claimOrganization(ctx, db, org.ID, scanID))
	assert.Equal(t, models.ScanStatusRunning, status())

	assert.ErrorIs(t, claimOrganization(ctx, db, org.ID, uuid.New()), ErrConflict, "second claim")
	assert.ErrorIs(t, resetOrganization(ctx, db, org.ID), ErrConflict, "reset while running")

	already, err := cancelOrganization(ctx, db, org.ID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, models.ScanStatusCanceling, status())

	already, err = cancelOrganization(ctx, db, org.ID)
	require.NoError(t, err)
	assert.True(t, already)

	assert.ErrorIs(t, finishOrganization(ctx, db, org.ID, uuid.New(), models.ScanStatusCanceled, "", time.Now()), ErrConflict,
		"only the owning scan may finish")
	require.NoError(t, finishOrganization(ctx, db, org.ID, scanID, models.ScanStatusCanceled, "", time.Now()))
	assert.Equal(t, models.ScanStatusCanceled, status())

	assert.ErrorIs(t, finishOrganization(ctx, db, org.ID, scanID, models.ScanStatusCompleted, "", time.Now()), ErrConflict,
		"terminal states are final")

	_, err = cancelOrganization(ctx, db, org.ID)
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, resetOrganization(ctx, db, org.ID))
	assert.Equal(t, models.ScanStatusPending, status())

	require.NoError(t, claimOrganization(ctx, db, org.ID, uuid.New()))
	o, err := loadOrganization(ctx, db, org.ID)
	require.NoError(t, err)
	assert.False(t, o.CancelRequested, "claim clears the cancel flag")
}

func TestFinishOrganization_RejectsNonTerminal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	org := testutil.CreateTestOrg(t, db)

	err := finishOrganization(testutil.TestContext(t), db, org.ID, uuid.New(), models.ScanStatusRunning, "", time.Now())
	assert.Error(t, err)
}

func TestLoadOrganization_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)

	_, err := loadOrganization(testutil.TestContext(t), db, uuid.New())
	assert.ErrorIs(t, err, ErrOrgNotFound)
}
