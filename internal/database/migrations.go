package database

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"tinsa/importer/internal/models"
)

// MigrateSchema creates or extends every table the importer writes.
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Project{},
		&models.Typology{},
		&models.ProjectSnapshot{},
		&models.ImportRun{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Columns never written from an import record: identity is the conflict
// target and the timestamps are managed by gorm.
var fixedColumns = map[string]bool{
	"id":         true,
	"name":       true,
	"commune":    true,
	"created_at": true,
	"updated_at": true,
}

var (
	projectSchemaOnce sync.Once
	projectSchema     *schema.Schema
	projectSchemaErr  error
)

// PresentColumns returns the database columns for which p carries a value,
// in schema order. Projects with equal results can be upserted together.
func PresentColumns(p *models.Project) ([]string, error) {
	projectSchemaOnce.Do(func() {
		projectSchema, projectSchemaErr = schema.Parse(&models.Project{}, &sync.Map{}, schema.NamingStrategy{})
	})
	if projectSchemaErr != nil {
		return nil, fmt.Errorf("failed to parse project schema: %w", projectSchemaErr)
	}

	rv := reflect.ValueOf(p)
	ctx := context.Background()
	var cols []string
	for _, f := range projectSchema.Fields {
		if f.DBName == "" || fixedColumns[f.DBName] {
			continue
		}
		if _, zero := f.ValueOf(ctx, rv); zero {
			continue
		}
		cols = append(cols, f.DBName)
	}
	return cols, nil
}
