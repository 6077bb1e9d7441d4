package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportRun records the outcome of one committed file import.
type ImportRun struct {
	ID                 uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	File               string    `gorm:"not null" json:"file"`
	Encoding           string    `json:"encoding"`
	Delimiter          string    `json:"delimiter"`
	RawRows            int       `json:"raw_rows"`
	Projects           int       `json:"projects"`
	Typologies         int       `json:"typologies"`
	Skipped            int       `json:"skipped"`
	WithCoordinates    int       `json:"with_coordinates"`
	ProjectsWritten    int       `json:"projects_written"`
	TypologiesInserted int       `json:"typologies_inserted"`
	SnapshotsWritten   int       `json:"snapshots_written"`
	Unresolved         int       `json:"unresolved"`
	Errors             int       `json:"errors"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

func (ImportRun) TableName() string { return "import_runs" }
