package migration_2

import (
	"fmt"

	"gorm.io/gorm"
)

type ResearchJob struct {
	MaxResults int  `gorm:"default:0"`
	FetchPages bool `gorm:"default:false"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&ResearchJob{}, "max_results"); err != nil {
		return fmt.Errorf("error adding MaxResults column: %w", err)
	}

	if err := db.Migrator().AddColumn(&ResearchJob{}, "fetch_pages"); err != nil {
		return fmt.Errorf("error adding FetchPages column: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&ResearchJob{}, "MaxResults"); err != nil {
		return fmt.Errorf("error dropping MaxResults column: %w", err)
	}

	if err := db.Migrator().DropColumn(&ResearchJob{}, "FetchPages"); err != nil {
		return fmt.Errorf("error dropping FetchPages column: %w", err)
	}

	return nil
}
