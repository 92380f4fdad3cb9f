package repository

import (
	"context"
	"errors"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository stores LinkedIn OAuth credentials, one row per client.
type TokenRepository interface {
	// GetByClientID returns (nil, nil) when the client is not connected.
	GetByClientID(ctx context.Context, clientID uint) (*models.LinkedInToken, error)
	Upsert(ctx context.Context, token *models.LinkedInToken) error
	Update(ctx context.Context, token *models.LinkedInToken) error
	DeleteByClientID(ctx context.Context, clientID uint) error
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository returns a new TokenRepository implementation.
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) GetByClientID(ctx context.Context, clientID uint) (*models.LinkedInToken, error) {
	var token models.LinkedInToken
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &token, nil
}

func (r *tokenRepository) Upsert(ctx context.Context, token *models.LinkedInToken) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "scope", "updated_at"}),
	}).Create(token).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tokenRepository) Update(ctx context.Context, token *models.LinkedInToken) error {
	if err := r.db.WithContext(ctx).Save(token).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tokenRepository) DeleteByClientID(ctx context.Context, clientID uint) error {
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).Delete(&models.LinkedInToken{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
