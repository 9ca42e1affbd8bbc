package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

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

	Status string `gorm:"size:20;not null"`

	// Placeholder is the runtime input marker the payload was assembled with.
	Placeholder string

	// Messages holds the assembled payload once the job completes.
	Messages datatypes.JSON `gorm:"type:jsonb"`
	Error    string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

type ResearchJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	WorkspaceId uuid.UUID  `gorm:"type:uuid"`
	Workspace   *Workspace `gorm:"foreignKey:WorkspaceId"`

	Query  string `gorm:"not null"`
	Status string `gorm:"size:20;not null"`

	// MaxResults and FetchPages are kept on the row so a queued job can be
	// re-published with the options it was submitted with.
	MaxResults int  `gorm:"default:0"`
	FetchPages bool `gorm:"default:false"`

	ResultCount int `gorm:"default:0"`
	Error       string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}
