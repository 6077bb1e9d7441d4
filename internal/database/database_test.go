package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinsa/importer/internal/models"
)

func strp(s string) *string     { return &s }
func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func setupTestDatabase(t *testing.T) *Database {
	db, err := NewTestDatabase()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func upsert(t *testing.T, db *Database, projects ...models.Project) {
	t.Helper()
	for _, p := range projects {
		cols, err := PresentColumns(&p)
		require.NoError(t, err)
		require.NoError(t, db.UpsertProjects(context.Background(), cols, []models.Project{p}))
	}
}

func TestPresentColumns(t *testing.T) {
	pilot := false
	p := &models.Project{
		ID:             7,
		Name:           "Torre",
		Commune:        "Ñuñoa",
		Zone:           strp("Oriente"),
		AvailableUnits: intp(13),
		MinPriceUF:     floatp(2950),
		PilotAvailable: &pilot,
	}

	cols, err := PresentColumns(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"zona", "available_units", "min_price_uf", "pilot_available"}, cols)

	cols, err = PresentColumns(&models.Project{Name: "Vacío", Commune: "Arica"})
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestUpsertProjectsIsIdempotent(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	p := models.Project{Name: "Torre", Commune: "Ñuñoa", AvailableUnits: intp(13), SoldUnits: intp(7)}
	upsert(t, db, p)
	upsert(t, db, p)

	n, err := db.CountProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := db.ListProjects(ctx, ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, intp(13), stored[0].AvailableUnits)
	assert.Equal(t, intp(7), stored[0].SoldUnits)
}

func TestUpsertProjectsKeepsStoredValuesForAbsentFields(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	upsert(t, db, models.Project{
		Name:      "Torre",
		Commune:   "Ñuñoa",
		Developer: strp("Inmobiliaria Andes"),
		Latitude:  floatp(-33.4565),
		Longitude: floatp(-70.66),
		SoldUnits: intp(4),
	})
	upsert(t, db, models.Project{
		Name:      "Torre",
		Commune:   "Ñuñoa",
		SoldUnits: intp(9),
	})

	stored, err := db.ListProjects(ctx, ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, intp(9), stored[0].SoldUnits)
	assert.Equal(t, "Inmobiliaria Andes", *stored[0].Developer)
	require.True(t, stored[0].HasCoordinates())
	assert.Equal(t, -33.4565, *stored[0].Latitude)
}

func TestUpsertProjectsBatch(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	batch := []models.Project{
		{Name: "A", Commune: "Arica", SoldUnits: intp(1)},
		{Name: "B", Commune: "Arica", SoldUnits: intp(2)},
		{Name: "A", Commune: "Iquique", SoldUnits: intp(3)},
	}
	require.NoError(t, db.UpsertProjects(ctx, []string{"sold_units"}, batch))

	ids, err := db.ResolveProjectIDs(ctx, []models.ProjectKey{
		{Name: "A", Commune: "Arica"},
		{Name: "A", Commune: "Iquique"},
		{Name: "B", Commune: "Iquique"},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.NotZero(t, ids[models.ProjectKey{Name: "A", Commune: "Arica"}])
	assert.NotZero(t, ids[models.ProjectKey{Name: "A", Commune: "Iquique"}])
	assert.NotContains(t, ids, models.ProjectKey{Name: "B", Commune: "Iquique"})
}

func TestTypologyReplacement(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	upsert(t, db, models.Project{Name: "Torre", Commune: "Ñuñoa"})
	ids, err := db.ResolveProjectIDs(ctx, []models.ProjectKey{{Name: "Torre", Commune: "Ñuñoa"}})
	require.NoError(t, err)
	id := ids[models.ProjectKey{Name: "Torre", Commune: "Ñuñoa"}]

	require.NoError(t, db.InsertTypologies(ctx, []models.Typology{
		{ProjectID: id, TypologyCode: "1D-1B"},
		{ProjectID: id, TypologyCode: "2D-2B"},
	}))

	deleted, err := db.DeleteTypologies(ctx, []uint{id})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	require.NoError(t, db.InsertTypologies(ctx, []models.Typology{
		{ProjectID: id, TypologyCode: "3D-2B", Bedrooms: intp(3)},
	}))

	typologies, err := db.TypologiesFor(ctx, id)
	require.NoError(t, err)
	require.Len(t, typologies, 1)
	assert.Equal(t, "3D-2B", typologies[0].TypologyCode)
	assert.Equal(t, intp(3), typologies[0].Bedrooms)
}

func TestUpsertSnapshotsReplacesPeriod(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	upsert(t, db, models.Project{Name: "Torre", Commune: "Ñuñoa"})
	ids, err := db.ResolveProjectIDs(ctx, []models.ProjectKey{{Name: "Torre", Commune: "Ñuñoa"}})
	require.NoError(t, err)
	id := ids[models.ProjectKey{Name: "Torre", Commune: "Ñuñoa"}]

	require.NoError(t, db.UpsertSnapshots(ctx, []models.ProjectSnapshot{
		{ProjectID: id, Year: 2024, Period: "1P", SoldUnits: intp(3)},
		{ProjectID: id, Year: 2023, Period: "2P", SoldUnits: intp(1)},
	}))
	require.NoError(t, db.UpsertSnapshots(ctx, []models.ProjectSnapshot{
		{ProjectID: id, Year: 2024, Period: "1P", SoldUnits: intp(5), Typologies: 2},
	}))

	snapshots, err := db.SnapshotsFor(ctx, id)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, 2024, snapshots[0].Year)
	assert.Equal(t, intp(5), snapshots[0].SoldUnits)
	assert.Equal(t, 2, snapshots[0].Typologies)
	assert.Equal(t, 2023, snapshots[1].Year)
}

func TestCoordinates(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	upsert(t, db,
		models.Project{Name: "Con dirección", Commune: "Temuco", Address: strp("Av. Alemania 0945")},
		models.Project{Name: "Sin dirección", Commune: "Temuco"},
		models.Project{Name: "Ubicado", Commune: "Temuco", Address: strp("Prat 100"), Latitude: floatp(-38.73), Longitude: floatp(-72.6)},
	)

	pending, err := db.ProjectsWithoutCoordinates(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Con dirección", pending[0].Name)

	require.NoError(t, db.UpdateCoordinates(ctx, pending[0].ID, -38.7359, -72.5904))

	pending, err = db.ProjectsWithoutCoordinates(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	located, err := db.ListProjects(ctx, ProjectFilter{Commune: "temuco", WithCoordinates: true})
	require.NoError(t, err)
	require.Len(t, located, 2)
	assert.Equal(t, "Con dirección", located[0].Name)

	assert.Error(t, db.UpdateCoordinates(ctx, 9999, -38, -72))
}

func TestRecordImportRun(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	run := &models.ImportRun{ID: uuid.New(), File: "tinsa_rm.csv", Projects: 3}
	require.NoError(t, db.RecordImportRun(ctx, run))

	var stored models.ImportRun
	require.NoError(t, db.GetDB().First(&stored, "id = ?", run.ID).Error)
	assert.Equal(t, "tinsa_rm.csv", stored.File)
	assert.Equal(t, 3, stored.Projects)
}
