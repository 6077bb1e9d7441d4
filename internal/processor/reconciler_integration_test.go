package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinsa/importer/internal/database"
	"tinsa/importer/internal/models"
)

func setupTestDB(t *testing.T) *database.Database {
	db, err := database.NewTestDatabase()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReconcileIntegration(t *testing.T) {
	db := setupTestDB(t)
	r := newTestReconciler(db, 2)
	ctx := context.Background()

	first := []models.Project{
		{Name: "Torre", Commune: "Ñuñoa", SoldUnits: intp(4), Developer: strp("Inmobiliaria Andes"), Latitude: floatp(-33.4565), Longitude: floatp(-70.66)},
		{Name: "Plaza", Commune: "Arica", SoldUnits: intp(2)},
		{Name: "Mirador", Commune: "Arica"},
	}
	firstTypologies := []models.Typology{
		{Project: models.ProjectKey{Name: "Torre", Commune: "Ñuñoa"}, TypologyCode: "1D-1B"},
		{Project: models.ProjectKey{Name: "Torre", Commune: "Ñuñoa"}, TypologyCode: "2D-2B"},
		{Project: models.ProjectKey{Name: "Plaza", Commune: "Arica"}, TypologyCode: "3D-2B"},
	}

	res, err := r.Reconcile(ctx, first, firstTypologies, []models.ProjectSnapshot{
		{Project: models.ProjectKey{Name: "Torre", Commune: "Ñuñoa"}, Year: 2024, Period: "1P", SoldUnits: intp(4)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ProjectsWritten)
	assert.Equal(t, 3, res.TypologiesInserted)
	assert.Equal(t, 1, res.SnapshotsWritten)
	assert.Zero(t, res.Errors)

	// Re-import: Torre loses its developer and coordinates in the export and
	// now has a single typology; Plaza has none.
	second := []models.Project{
		{Name: "Torre", Commune: "Ñuñoa", SoldUnits: intp(9)},
		{Name: "Plaza", Commune: "Arica", SoldUnits: intp(2)},
	}
	secondTypologies := []models.Typology{
		{Project: models.ProjectKey{Name: "Torre", Commune: "Ñuñoa"}, TypologyCode: "3D-2B"},
	}

	res, err = r.Reconcile(ctx, second, secondTypologies, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.TypologiesDeleted)
	assert.Equal(t, 1, res.TypologiesInserted)

	n, err := db.CountProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	projects, err := db.ListProjects(ctx, database.ProjectFilter{Commune: "Ñuñoa"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	torre := projects[0]
	assert.Equal(t, intp(9), torre.SoldUnits)
	assert.Equal(t, "Inmobiliaria Andes", *torre.Developer)
	assert.True(t, torre.HasCoordinates())

	typologies, err := db.TypologiesFor(ctx, torre.ID)
	require.NoError(t, err)
	require.Len(t, typologies, 1)
	assert.Equal(t, "3D-2B", typologies[0].TypologyCode)

	plazaID := res.ProjectIDs[models.ProjectKey{Name: "Plaza", Commune: "Arica"}]
	require.NotZero(t, plazaID)
	typologies, err = db.TypologiesFor(ctx, plazaID)
	require.NoError(t, err)
	assert.Empty(t, typologies)

	snapshots, err := db.SnapshotsFor(ctx, torre.ID)
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
}
