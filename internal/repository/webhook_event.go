package repository

import (
	"context"
	"time"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEventRepository is the inbound webhook log.
type WebhookEventRepository interface {
	// Record inserts the event unless (source, external_id) already exists,
	// and returns the stored row either way.
	Record(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, at time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string) error
}

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository returns a new WebhookEventRepository implementation.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Record(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		return nil, models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		return event, nil
	}

	var existing models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("source = ? AND external_id = ?", event.Source, event.ExternalID).
		First(&existing).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return &existing, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": at, "error": ""}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).
		Update("error", reason).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
