package database

import (
	"gorm.io/gorm"

	"github.com/clientdeck/clientdeck/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Space{},
		&models.SpaceMembership{},
		&models.PortalToken{},
		&models.AuditLog{},
	)
}
