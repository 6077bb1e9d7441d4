package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tinsa/importer/config"
	"tinsa/importer/internal/models"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertProjects(ctx context.Context, columns []string, batch []models.Project) error {
	args := m.Called(columns, batch)
	return args.Error(0)
}

func (m *MockStore) ResolveProjectIDs(ctx context.Context, keys []models.ProjectKey) (map[models.ProjectKey]uint, error) {
	args := m.Called(keys)
	ids, _ := args.Get(0).(map[models.ProjectKey]uint)
	return ids, args.Error(1)
}

func (m *MockStore) DeleteTypologies(ctx context.Context, projectIDs []uint) (int64, error) {
	args := m.Called(projectIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) InsertTypologies(ctx context.Context, batch []models.Typology) error {
	args := m.Called(batch)
	return args.Error(0)
}

func (m *MockStore) UpsertSnapshots(ctx context.Context, batch []models.ProjectSnapshot) error {
	args := m.Called(batch)
	return args.Error(0)
}

func intp(v int) *int           { return &v }
func strp(s string) *string     { return &s }
func floatp(v float64) *float64 { return &v }

func key(name string) models.ProjectKey {
	return models.ProjectKey{Name: name, Commune: "Ñuñoa"}
}

func project(name string) models.Project {
	return models.Project{Name: name, Commune: "Ñuñoa", SoldUnits: intp(1)}
}

func newTestReconciler(store Store, batchSize int) *Reconciler {
	cfg := config.Default()
	cfg.Import.BatchSize = batchSize
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewReconciler(store, cfg, logger)
}

func batchOf(names ...string) interface{} {
	return mock.MatchedBy(func(batch []models.Project) bool {
		if len(batch) != len(names) {
			return false
		}
		for i, n := range names {
			if batch[i].Name != n {
				return false
			}
		}
		return true
	})
}

func TestNewReconciler(t *testing.T) {
	store := &MockStore{}
	logger := logrus.New()

	r := NewReconciler(store, config.Default(), logger)
	assert.Equal(t, store, r.store)
	assert.Equal(t, logger, r.logger)
	assert.Equal(t, 50, r.batchSize)

	r = NewReconciler(store, nil, nil)
	assert.NotNil(t, r.logger)
	assert.Equal(t, 50, r.batchSize)
}

func TestGroupByShape(t *testing.T) {
	a := models.Project{Name: "A", Commune: "C", SoldUnits: intp(1)}
	b := models.Project{Name: "B", Commune: "C", SoldUnits: intp(2), Developer: strp("Dev")}
	c := models.Project{Name: "C", Commune: "C", SoldUnits: intp(3)}
	d := models.Project{Name: "D", Commune: "C"}

	shapes, err := groupByShape([]models.Project{a, b, c, d})
	require.NoError(t, err)
	require.Len(t, shapes, 3)

	assert.Equal(t, []string{"sold_units"}, shapes[0].columns)
	assert.Len(t, shapes[0].projects, 2)
	assert.Equal(t, []string{"developer", "sold_units"}, shapes[1].columns)
	assert.Empty(t, shapes[2].columns)
	assert.Equal(t, "D", shapes[2].projects[0].Name)
}

func TestReconcileBatches(t *testing.T) {
	store := &MockStore{}
	r := newTestReconciler(store, 2)

	projects := []models.Project{project("A"), project("B"), project("C")}
	typologies := []models.Typology{
		{Project: key("A"), TypologyCode: "1D-1B"},
		{Project: key("C"), TypologyCode: "2D-2B"},
		{Project: key("Z"), TypologyCode: "3D-2B"},
	}
	snapshots := []models.ProjectSnapshot{
		{Project: key("A"), Year: 2024, Period: "1P"},
		{Project: key("Z"), Year: 2024, Period: "1P"},
	}

	cols := []string{"sold_units"}
	store.On("UpsertProjects", cols, batchOf("A", "B")).Return(nil).Once()
	store.On("UpsertProjects", cols, batchOf("C")).Return(nil).Once()
	store.On("ResolveProjectIDs", []models.ProjectKey{key("A"), key("B")}).
		Return(map[models.ProjectKey]uint{key("A"): 1, key("B"): 2}, nil).Once()
	store.On("ResolveProjectIDs", []models.ProjectKey{key("C")}).
		Return(map[models.ProjectKey]uint{key("C"): 3}, nil).Once()
	store.On("DeleteTypologies", []uint{1, 2}).Return(int64(4), nil).Once()
	store.On("DeleteTypologies", []uint{3}).Return(int64(1), nil).Once()
	store.On("InsertTypologies", mock.MatchedBy(func(batch []models.Typology) bool {
		return len(batch) == 2 && batch[0].ProjectID == 1 && batch[1].ProjectID == 3
	})).Return(nil).Once()
	store.On("UpsertSnapshots", mock.MatchedBy(func(batch []models.ProjectSnapshot) bool {
		return len(batch) == 1 && batch[0].ProjectID == 1
	})).Return(nil).Once()

	res, err := r.Reconcile(context.Background(), projects, typologies, snapshots)
	require.NoError(t, err)

	assert.Equal(t, 3, res.ProjectsWritten)
	assert.Len(t, res.ProjectIDs, 3)
	assert.Equal(t, int64(5), res.TypologiesDeleted)
	assert.Equal(t, 2, res.TypologiesInserted)
	assert.Equal(t, 1, res.SnapshotsWritten)
	assert.Equal(t, 1, res.Unresolved)
	assert.Zero(t, res.Errors)
	assert.Empty(t, res.Failed)
	store.AssertExpectations(t)
}

func TestReconcileRetriesFailedBatchPerRecord(t *testing.T) {
	store := &MockStore{}
	r := newTestReconciler(store, 50)

	cols := []string{"sold_units"}
	store.On("UpsertProjects", cols, batchOf("A", "B", "C")).Return(errors.New("constraint failed")).Once()
	store.On("UpsertProjects", cols, batchOf("A")).Return(nil).Once()
	store.On("UpsertProjects", cols, batchOf("B")).Return(errors.New("constraint failed")).Once()
	store.On("UpsertProjects", cols, batchOf("C")).Return(nil).Once()
	store.On("ResolveProjectIDs", []models.ProjectKey{key("A")}).
		Return(map[models.ProjectKey]uint{key("A"): 1}, nil).Once()
	store.On("ResolveProjectIDs", []models.ProjectKey{key("C")}).
		Return(map[models.ProjectKey]uint{key("C"): 3}, nil).Once()
	store.On("DeleteTypologies", []uint{1, 3}).Return(int64(0), nil).Once()

	typologies := []models.Typology{{Project: key("B"), TypologyCode: "1D-1B"}}

	res, err := r.Reconcile(context.Background(), []models.Project{project("A"), project("B"), project("C")}, typologies, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.ProjectsWritten)
	assert.Equal(t, 2, res.Errors)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "project", res.Failed[0].Stage)
	assert.Equal(t, key("B"), res.Failed[0].Project)
	assert.Equal(t, 1, res.Unresolved)
	assert.Zero(t, res.TypologiesInserted)
	store.AssertExpectations(t)
}

func TestReconcileContinuesAfterDeleteFailure(t *testing.T) {
	store := &MockStore{}
	r := newTestReconciler(store, 50)

	store.On("UpsertProjects", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("ResolveProjectIDs", mock.Anything).
		Return(map[models.ProjectKey]uint{key("A"): 1}, nil).Once()
	store.On("DeleteTypologies", []uint{1}).Return(int64(0), errors.New("database is locked")).Once()
	store.On("InsertTypologies", mock.Anything).Return(nil).Once()

	res, err := r.Reconcile(context.Background(),
		[]models.Project{project("A")},
		[]models.Typology{{Project: key("A"), TypologyCode: "1D-1B"}},
		nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.TypologiesInserted)
	store.AssertExpectations(t)
}

func TestReconcileCountsResolveFailure(t *testing.T) {
	store := &MockStore{}
	r := newTestReconciler(store, 50)

	store.On("UpsertProjects", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("ResolveProjectIDs", mock.Anything).Return(nil, errors.New("disk I/O error")).Once()

	res, err := r.Reconcile(context.Background(),
		[]models.Project{project("A")},
		[]models.Typology{{Project: key("A"), TypologyCode: "1D-1B"}},
		nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.ProjectsWritten)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Unresolved)
	store.AssertNotCalled(t, "DeleteTypologies", mock.Anything)
	store.AssertNotCalled(t, "InsertTypologies", mock.Anything)
}

func TestReconcileStopsWhenCancelled(t *testing.T) {
	store := &MockStore{}
	r := newTestReconciler(store, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reconcile(ctx, []models.Project{project("A")}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	store.AssertNotCalled(t, "UpsertProjects", mock.Anything, mock.Anything)
}
