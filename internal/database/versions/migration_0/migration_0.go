package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// These structs are a snapshot of the schema at the time of this migration.

type Workspace struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null"`
	CreationTime time.Time

	BuildJobs    []BuildJob    `gorm:"foreignKey:WorkspaceId;constraint:OnDelete:CASCADE"`
	ResearchJobs []ResearchJob `gorm:"foreignKey:WorkspaceId;constraint:OnDelete:CASCADE"`
}

type BuildJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorkspaceId uuid.UUID  `gorm:"type:uuid"`
	Workspace   *Workspace `gorm:"foreignKey:WorkspaceId"`

	Status   string         `gorm:"size:20;not null"`
	Messages datatypes.JSON `gorm:"type:jsonb"`
	Error    string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

type ResearchJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorkspaceId uuid.UUID  `gorm:"type:uuid"`
	Workspace   *Workspace `gorm:"foreignKey:WorkspaceId"`

	Query       string `gorm:"not null"`
	Status      string `gorm:"size:20;not null"`
	ResultCount int    `gorm:"default:0"`
	Error       string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Workspace{}, &BuildJob{}, &ResearchJob{}); err != nil {
		return fmt.Errorf("Migration0 failed: %w", err)
	}
	return nil
}
