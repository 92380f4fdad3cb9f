package repository

import (
	"context"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClientRepository persists client profiles.
type ClientRepository interface {
	Create(ctx context.Context, client *models.Client) error
	// GetByID loads a client without visibility checks. Used by jobs and
	// integration callbacks.
	GetByID(ctx context.Context, id uint) (*models.Client, error)
	// GetVisible loads a client in scope, or NotFound.
	GetVisible(ctx context.Context, id uint, scope Scope) (*models.Client, error)
	ListVisible(ctx context.Context, scope Scope) ([]models.Client, error)
	ListAll(ctx context.Context) ([]models.Client, error)
	CountOwned(ctx context.Context, userID uint) (int64, error)
	Update(ctx context.Context, client *models.Client) error
	// Delete removes the client with its posts, snapshots, rollups and token.
	Delete(ctx context.Context, id uint) error
}

type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository returns a new ClientRepository implementation.
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *models.Client) error {
	if err := r.db.WithContext(ctx).Create(client).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *clientRepository) GetByID(ctx context.Context, id uint) (*models.Client, error) {
	var client models.Client
	if err := r.db.WithContext(ctx).First(&client, id).Error; err != nil {
		return nil, mapFindError(err, "Client", id)
	}
	return &client, nil
}

func (r *clientRepository) GetVisible(ctx context.Context, id uint, scope Scope) (*models.Client, error) {
	var client models.Client
	err := visibleClients(r.db.WithContext(ctx), scope).
		Where("clients.id = ?", id).
		First(&client).Error
	if err != nil {
		return nil, mapFindError(err, "Client", id)
	}
	return &client, nil
}

func (r *clientRepository) ListVisible(ctx context.Context, scope Scope) ([]models.Client, error) {
	var clients []models.Client
	if err := visibleClients(readDB(r.db).WithContext(ctx), scope).
		Order("clients.created_at DESC").
		Find(&clients).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return clients, nil
}

func (r *clientRepository) ListAll(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	if err := readDB(r.db).WithContext(ctx).Order("id ASC").Find(&clients).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return clients, nil
}

func (r *clientRepository) CountOwned(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Client{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *clientRepository) Update(ctx context.Context, client *models.Client) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(client).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *clientRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		postIDs := tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.Post{}).Select("id").Where("client_id = ?", id)
		if err := tx.Where("post_id IN (?)", postIDs).Delete(&models.PostAnalytics{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", id).Delete(&models.ClientAnalytics{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", id).Delete(&models.LinkedInToken{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Client{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return mapFindError(err, "Client", id)
	}
	return nil
}
