package repository

import (
	"context"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
)

// ActivityRepository appends and lists feed entries.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Activity, int64, error)
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository returns a new ActivityRepository implementation.
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if err := r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *activityRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Activity, int64, error) {
	limit, offset = clampPage(limit, offset)
	q := readDB(r.db).WithContext(ctx).Model(&models.Activity{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var items []models.Activity
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return items, total, nil
}
