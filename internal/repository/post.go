package repository

import (
	"context"
	"errors"
	"time"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostFilter narrows a post listing.
type PostFilter struct {
	ClientID uint
	Status   string
	Limit    int
	Offset   int
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	// GetByID loads a post with its client, without visibility checks.
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	// GetVisible loads a post whose client is in scope, or NotFound.
	GetVisible(ctx context.Context, id uint, scope Scope) (*models.Post, error)
	List(ctx context.Context, scope Scope, filter PostFilter) ([]models.Post, int64, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Post, error)
	ListDueScheduled(ctx context.Context, now time.Time) ([]models.Post, error)
	ListPublishedWithExternalID(ctx context.Context) ([]models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Client").First(&post, id).Error; err != nil {
		return nil, mapFindError(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) GetVisible(ctx context.Context, id uint, scope Scope) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("Client").
		Where("posts.id = ?", id).
		Where("posts.client_id IN (?)", visibleClientIDs(r.db, scope)).
		First(&post).Error
	if err != nil {
		return nil, mapFindError(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, scope Scope, filter PostFilter) ([]models.Post, int64, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)

	q := readDB(r.db).WithContext(ctx).Model(&models.Post{}).
		Where("posts.client_id IN (?)", visibleClientIDs(r.db, scope))
	if filter.ClientID != 0 {
		q = q.Where("posts.client_id = ?", filter.ClientID)
	}
	if filter.Status != "" {
		q = q.Where("posts.status = ?", filter.Status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var posts []models.Post
	if err := q.Preload("Client").
		Order("posts.created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

// GetByExternalID returns (nil, nil) when no post carries the URN.
func (r *postRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Post, error) {
	if externalID == "" {
		return nil, nil
	}
	var post models.Post
	if err := r.db.WithContext(ctx).Where("external_post_id = ?", externalID).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]models.Post, error) {
	var posts []models.Post
	if err := r.db.WithContext(ctx).
		Preload("Client").
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.PostStatusScheduled, now).
		Order("scheduled_at ASC").
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) ListPublishedWithExternalID(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := r.db.WithContext(ctx).
		Preload("Client").
		Where("status = ? AND external_post_id IS NOT NULL AND external_post_id <> ''", models.PostStatusPublished).
		Order("id ASC").
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.PostAnalytics{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return mapFindError(err, "Post", id)
	}
	return nil
}
