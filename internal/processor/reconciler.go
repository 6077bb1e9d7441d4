package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"tinsa/importer/config"
	"tinsa/importer/internal/database"
	"tinsa/importer/internal/models"
)

// Store is the storage the reconciler writes through.
type Store interface {
	UpsertProjects(ctx context.Context, columns []string, batch []models.Project) error
	ResolveProjectIDs(ctx context.Context, keys []models.ProjectKey) (map[models.ProjectKey]uint, error)
	DeleteTypologies(ctx context.Context, projectIDs []uint) (int64, error)
	InsertTypologies(ctx context.Context, batch []models.Typology) error
	UpsertSnapshots(ctx context.Context, batch []models.ProjectSnapshot) error
}

// Failure is a single record that could not be written even on its own.
type Failure struct {
	Stage   string
	Project models.ProjectKey
	Err     error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s: %v", f.Stage, f.Project, f.Err)
}

// Result counts what one Reconcile call wrote.
type Result struct {
	ProjectIDs         map[models.ProjectKey]uint
	ProjectsWritten    int
	TypologiesDeleted  int64
	TypologiesInserted int
	SnapshotsWritten   int
	// Typologies dropped because their project id could not be resolved
	Unresolved int
	// Failed batches plus failed single records
	Errors int
	Failed []Failure
}

// Reconciler writes aggregated projects and their children to a Store in
// batches. A failed batch is retried one record at a time so that one bad
// record does not take the rest of its batch down with it.
type Reconciler struct {
	store     Store
	logger    *logrus.Logger
	batchSize int
}

func NewReconciler(store Store, cfg *config.Config, logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.New()
	}
	batchSize := 50
	if cfg != nil && cfg.Import.BatchSize > 0 {
		batchSize = cfg.Import.BatchSize
	}
	return &Reconciler{
		store:     store,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Reconcile upserts the projects, replaces the typologies of every project it
// resolved, and upserts the snapshots. Storage failures are counted in the
// result; the returned error is only set when the context is done.
func (r *Reconciler) Reconcile(ctx context.Context, projects []models.Project, typologies []models.Typology, snapshots []models.ProjectSnapshot) (*Result, error) {
	res := &Result{ProjectIDs: make(map[models.ProjectKey]uint, len(projects))}

	if err := r.writeProjects(ctx, res, projects); err != nil {
		return res, err
	}
	if err := r.replaceTypologies(ctx, res, typologies); err != nil {
		return res, err
	}
	if err := r.writeSnapshots(ctx, res, snapshots); err != nil {
		return res, err
	}

	r.logger.WithFields(logrus.Fields{
		"projects":   res.ProjectsWritten,
		"resolved":   len(res.ProjectIDs),
		"deleted":    res.TypologiesDeleted,
		"typologies": res.TypologiesInserted,
		"snapshots":  res.SnapshotsWritten,
		"unresolved": res.Unresolved,
		"errors":     res.Errors,
	}).Info("Reconciliation finished")
	return res, nil
}

type shape struct {
	columns  []string
	projects []models.Project
}

// groupByShape splits projects by their set of present columns, in order of
// first appearance, so each upsert only touches columns every record has.
func groupByShape(projects []models.Project) ([]*shape, error) {
	var shapes []*shape
	byKey := make(map[string]*shape)
	for i := range projects {
		cols, err := database.PresentColumns(&projects[i])
		if err != nil {
			return nil, err
		}
		k := strings.Join(cols, ",")
		s, ok := byKey[k]
		if !ok {
			s = &shape{columns: cols}
			byKey[k] = s
			shapes = append(shapes, s)
		}
		s.projects = append(s.projects, projects[i])
	}
	return shapes, nil
}

func (r *Reconciler) writeProjects(ctx context.Context, res *Result, projects []models.Project) error {
	shapes, err := groupByShape(projects)
	if err != nil {
		return err
	}

	for _, s := range shapes {
		columns := s.columns
		write := func(ctx context.Context, batch []models.Project) error {
			return r.store.UpsertProjects(ctx, columns, batch)
		}
		written := func(ctx context.Context, batch []models.Project) {
			res.ProjectsWritten += len(batch)
			r.resolve(ctx, res, batch)
		}
		if err := writeBatches(ctx, r, res, "project", s.projects, r.batchSize, projectKey, write, written); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, res *Result, batch []models.Project) {
	keys := make([]models.ProjectKey, len(batch))
	for i := range batch {
		keys[i] = batch[i].Key()
	}
	ids, err := r.store.ResolveProjectIDs(ctx, keys)
	if err != nil {
		res.Errors++
		r.logger.WithError(err).WithField("projects", len(keys)).Error("Failed to resolve project ids")
		return
	}
	for k, id := range ids {
		res.ProjectIDs[k] = id
	}
}

func (r *Reconciler) replaceTypologies(ctx context.Context, res *Result, typologies []models.Typology) error {
	resolved := make([]models.Typology, 0, len(typologies))
	for _, t := range typologies {
		id, ok := res.ProjectIDs[t.Project]
		if !ok {
			res.Unresolved++
			r.logger.WithFields(logrus.Fields{
				"project":  t.Project.String(),
				"typology": t.TypologyCode,
			}).Debug("Dropping typology of unresolved project")
			continue
		}
		t.ProjectID = id
		resolved = append(resolved, t)
	}

	// Every resolved project gets its typologies replaced, including projects
	// whose latest period has none, so nothing stale survives a re-import.
	ids := make([]uint, 0, len(res.ProjectIDs))
	for _, id := range res.ProjectIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for start := 0; start < len(ids); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := ids[start:min(start+r.batchSize, len(ids))]
		n, err := r.store.DeleteTypologies(ctx, chunk)
		if err != nil {
			res.Errors++
			r.logger.WithError(err).WithField("projects", len(chunk)).Error("Failed to delete previous typologies")
			continue
		}
		res.TypologiesDeleted += n
	}

	written := func(_ context.Context, batch []models.Typology) {
		res.TypologiesInserted += len(batch)
	}
	return writeBatches(ctx, r, res, "typology", resolved, r.batchSize, typologyKey, r.store.InsertTypologies, written)
}

func (r *Reconciler) writeSnapshots(ctx context.Context, res *Result, snapshots []models.ProjectSnapshot) error {
	resolved := make([]models.ProjectSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		id, ok := res.ProjectIDs[s.Project]
		if !ok {
			continue
		}
		s.ProjectID = id
		resolved = append(resolved, s)
	}

	written := func(_ context.Context, batch []models.ProjectSnapshot) {
		res.SnapshotsWritten += len(batch)
	}
	return writeBatches(ctx, r, res, "snapshot", resolved, r.batchSize, snapshotKey, r.store.UpsertSnapshots, written)
}

func projectKey(p *models.Project) models.ProjectKey          { return p.Key() }
func typologyKey(t *models.Typology) models.ProjectKey        { return t.Project }
func snapshotKey(s *models.ProjectSnapshot) models.ProjectKey { return s.Project }

// writeBatches writes items in chunks of size. When a chunk fails it is
// counted as one error and each of its records is written on its own;
// records that still fail are reported in res.Failed.
func writeBatches[T any](
	ctx context.Context,
	r *Reconciler,
	res *Result,
	stage string,
	items []T,
	size int,
	key func(*T) models.ProjectKey,
	write func(context.Context, []T) error,
	written func(context.Context, []T),
) error {
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := items[start:min(start+size, len(items))]

		err := write(ctx, batch)
		if err == nil {
			written(ctx, batch)
			continue
		}

		res.Errors++
		r.logger.WithError(err).WithFields(logrus.Fields{
			"stage": stage,
			"size":  len(batch),
		}).Warn("Batch write failed, retrying records one by one")

		for i := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			single := batch[i : i+1]
			if err := write(ctx, single); err != nil {
				res.Errors++
				res.Failed = append(res.Failed, Failure{Stage: stage, Project: key(&batch[i]), Err: err})
				r.logger.WithError(err).WithFields(logrus.Fields{
					"stage":   stage,
					"project": key(&batch[i]).String(),
				}).Error("Record write failed")
				continue
			}
			written(ctx, single)
		}
	}
	return nil
}
