package repository

import (
	"context"
	"errors"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*models.User, error)
	GetByResetToken(ctx context.Context, token string) (*models.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	ListVerified(ctx context.Context) ([]models.User, error)
	ListIDsByAgency(ctx context.Context, agencyID uint) ([]uint, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, mapFindError(err, "User", id)
	}
	return &user, nil
}

// GetByEmail returns (nil, nil) when no user has the email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

// GetByVerificationToken returns (nil, nil) for an unknown token.
func (r *userRepository) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, "verification_token = ?", token)
}

// GetByResetToken returns (nil, nil) for an unknown token.
func (r *userRepository) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, "reset_token = ?", token)
}

func (r *userRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	if customerID == "" {
		return nil, models.NewNotFoundError("User", customerID)
	}
	user, err := r.findOne(ctx, "stripe_customer_id = ?", customerID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", customerID)
	}
	return user, nil
}

func (r *userRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) ListVerified(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := readDB(r.db).WithContext(ctx).
		Where("email_verified = ?", true).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) ListIDsByAgency(ctx context.Context, agencyID uint) ([]uint, error) {
	var ids []uint
	if err := readDB(r.db).WithContext(ctx).Model(&models.User{}).
		Where("agency_id = ?", agencyID).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
