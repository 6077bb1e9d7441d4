package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"tinsa/importer/internal/models"
)

type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// ProjectFilter narrows ListProjects. Zero values match everything.
type ProjectFilter struct {
	Commune         string
	WithCoordinates bool
}

func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gormLog := gormLogger.New(logger, gormLogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormLogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	db, err := open(dbPath, gormLog)
	if err != nil {
		return nil, err
	}
	return &Database{db: db, logger: logger}, nil
}

// NewTestDB opens a private in-memory database with the schema applied.
func NewTestDB() (*gorm.DB, error) {
	db, err := open(":memory:", gormLogger.Default.LogMode(gormLogger.Silent))
	if err != nil {
		return nil, err
	}
	if err := MigrateSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewTestDatabase wraps NewTestDB for callers that work with *Database.
func NewTestDatabase() (*Database, error) {
	db, err := NewTestDB()
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return &Database{db: db, logger: logger}, nil
}

func open(dsn string, gormLog gormLogger.Interface) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Each connection to ":memory:" is its own database, and SQLite takes
	// one writer at a time anyway.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) RunMigrations() error {
	if err := MigrateSchema(d.db); err != nil {
		return err
	}
	d.logger.Debug("Schema migrated")
	return nil
}

func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// UpsertProjects inserts the batch or, for an existing (name, commune),
// updates only the given columns. Every project in the batch must have the
// same set of present columns, see PresentColumns.
func (d *Database) UpsertProjects(ctx context.Context, columns []string, batch []models.Project) error {
	if len(batch) == 0 {
		return nil
	}
	insert := make([]string, 0, len(columns)+4)
	insert = append(insert, "name", "commune", "created_at", "updated_at")
	insert = append(insert, columns...)

	update := make([]string, 0, len(columns)+1)
	update = append(update, columns...)
	update = append(update, "updated_at")

	return d.db.WithContext(ctx).
		Select(insert).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "commune"}},
			DoUpdates: clause.AssignmentColumns(update),
		}).
		Create(&batch).Error
}

// ResolveProjectIDs looks up the stored ids of the given identities. Keys
// that are not stored are missing from the result.
func (d *Database) ResolveProjectIDs(ctx context.Context, keys []models.ProjectKey) (map[models.ProjectKey]uint, error) {
	ids := make(map[models.ProjectKey]uint, len(keys))
	if len(keys) == 0 {
		return ids, nil
	}

	wanted := make(map[models.ProjectKey]struct{}, len(keys))
	var names, communes []string
	seenName := make(map[string]struct{})
	seenCommune := make(map[string]struct{})
	for _, k := range keys {
		wanted[k] = struct{}{}
		if _, ok := seenName[k.Name]; !ok {
			seenName[k.Name] = struct{}{}
			names = append(names, k.Name)
		}
		if _, ok := seenCommune[k.Commune]; !ok {
			seenCommune[k.Commune] = struct{}{}
			communes = append(communes, k.Commune)
		}
	}

	var rows []models.Project
	err := d.db.WithContext(ctx).
		Select("id", "name", "commune").
		Where("name IN ? AND commune IN ?", names, communes).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project ids: %w", err)
	}

	// The IN filter is a cross product; keep only the exact pairs asked for.
	for _, p := range rows {
		if _, ok := wanted[p.Key()]; ok {
			ids[p.Key()] = p.ID
		}
	}
	return ids, nil
}

// DeleteTypologies removes every typology of the given projects and returns
// how many rows were deleted.
func (d *Database) DeleteTypologies(ctx context.Context, projectIDs []uint) (int64, error) {
	if len(projectIDs) == 0 {
		return 0, nil
	}
	res := d.db.WithContext(ctx).
		Where("project_id IN ?", projectIDs).
		Delete(&models.Typology{})
	return res.RowsAffected, res.Error
}

func (d *Database) InsertTypologies(ctx context.Context, batch []models.Typology) error {
	if len(batch) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Create(&batch).Error
}

// UpsertSnapshots writes one row per (project, year, period). A re-imported
// period replaces the stored metrics.
func (d *Database) UpsertSnapshots(ctx context.Context, batch []models.ProjectSnapshot) error {
	if len(batch) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "year"}, {Name: "period"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"initial_stock", "available_units", "sold_units", "period_offer",
				"sales_speed_monthly", "velocity_projected",
				"min_price_uf", "max_price_uf", "avg_price_uf", "avg_price_m2_uf",
				"typologies", "updated_at",
			}),
		}).
		Create(&batch).Error
}

func (d *Database) RecordImportRun(ctx context.Context, run *models.ImportRun) error {
	if err := d.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to record import run: %w", err)
	}
	return nil
}

func (d *Database) ListProjects(ctx context.Context, filter ProjectFilter) ([]models.Project, error) {
	q := d.db.WithContext(ctx).Model(&models.Project{})
	if filter.Commune != "" {
		q = q.Where("LOWER(commune) = LOWER(?)", filter.Commune)
	}
	if filter.WithCoordinates {
		q = q.Where("latitude IS NOT NULL AND longitude IS NOT NULL")
	}

	var projects []models.Project
	if err := q.Order("name").Order("commune").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// ProjectsWithoutCoordinates returns projects that have an address to look
// up but no location. limit <= 0 means no limit.
func (d *Database) ProjectsWithoutCoordinates(ctx context.Context, limit int) ([]models.Project, error) {
	q := d.db.WithContext(ctx).
		Where("(latitude IS NULL OR longitude IS NULL) AND address IS NOT NULL AND address <> ''").
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var projects []models.Project
	if err := q.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to query projects without coordinates: %w", err)
	}
	return projects, nil
}

func (d *Database) UpdateCoordinates(ctx context.Context, id uint, lat, lon float64) error {
	res := d.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"latitude": lat, "longitude": lon})
	if res.Error != nil {
		return fmt.Errorf("failed to update coordinates of project %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("project %d: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (d *Database) TypologiesFor(ctx context.Context, projectID uint) ([]models.Typology, error) {
	var typologies []models.Typology
	err := d.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id").
		Find(&typologies).Error
	return typologies, err
}

func (d *Database) SnapshotsFor(ctx context.Context, projectID uint) ([]models.ProjectSnapshot, error) {
	var snapshots []models.ProjectSnapshot
	err := d.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("year DESC").Order("period DESC").
		Find(&snapshots).Error
	return snapshots, err
}

func (d *Database) CountProjects(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.Project{}).Count(&n).Error
	return n, err
}
