package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Facility must be migrated before Member and Inquiry, which reference it
func AllModels() []interface{} {
	return []interface{}{
		&AdminUser{},
		&ProviderAccount{},
		&ProviderRefreshToken{},
		&Facility{},
		&Member{},
		&Announcement{},
		&FAQ{},
		&Inquiry{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
