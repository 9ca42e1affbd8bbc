package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type BuildJob struct {
	Placeholder string
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&BuildJob{}, "placeholder"); err != nil {
		return fmt.Errorf("error adding Placeholder column: %w", err)
	}

	// rows created before this migration were built with the default marker
	if err := db.Model(&BuildJob{}).
		Where("placeholder IS NULL").
		Update("placeholder", "{{user_input}}").Error; err != nil {
		return fmt.Errorf("error setting default value for Placeholder: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&BuildJob{}, "Placeholder"); err != nil {
		return fmt.Errorf("error dropping Placeholder column: %w", err)
	}

	return nil
}
