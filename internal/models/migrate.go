package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table the API owns
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&User{},
		&UserReport{},
		&SerialNumber{},
		&Report{},
		&AuditLog{},
		&SystemPreference{},
	); err != nil {
		log.Printf("Migration failed: %v", err)
		return err
	}

	log.Println("Database migrations completed")
	return nil
}
