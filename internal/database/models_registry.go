package database

import "ghostwriter/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Agency{},
		&models.AgencyInvite{},
		&models.Client{},
		&models.Post{},
		&models.PostAnalytics{},
		&models.ClientAnalytics{},
		&models.LinkedInToken{},
		&models.WebhookEvent{},
		&models.Activity{},
	}
}
