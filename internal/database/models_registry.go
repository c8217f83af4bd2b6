package database

import "giftdesk/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []any {
	return []any{
		&models.Request{},
		&models.Admin{},
		&models.BlacklistedIP{},
	}
}
