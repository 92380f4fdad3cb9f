package repository

import (
	"context"
	"errors"
	"time"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
)

// AgencyRepository persists agencies, their membership and invites.
type AgencyRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Agency, error)
	// CreateWithOwner creates the agency, makes owner its owner and moves
	// the owner's clients into it.
	CreateWithOwner(ctx context.Context, agency *models.Agency, owner *models.User) error
	Rename(ctx context.Context, id uint, name string) error
	// AddMember joins user to the agency, shares their clients and consumes the invite.
	AddMember(ctx context.Context, invite *models.AgencyInvite, user *models.User) error
	// RemoveMember detaches user and their clients from the agency.
	RemoveMember(ctx context.Context, agencyID, userID uint) error

	CreateInvite(ctx context.Context, invite *models.AgencyInvite) error
	GetInviteByToken(ctx context.Context, token string) (*models.AgencyInvite, error)
	ListPendingInvites(ctx context.Context, agencyID uint, now time.Time) ([]models.AgencyInvite, error)
}

type agencyRepository struct {
	db *gorm.DB
}

// NewAgencyRepository returns a new AgencyRepository implementation.
func NewAgencyRepository(db *gorm.DB) AgencyRepository {
	return &agencyRepository{db: db}
}

func (r *agencyRepository) GetByID(ctx context.Context, id uint) (*models.Agency, error) {
	var agency models.Agency
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("users.id ASC")
		}).
		First(&agency, id).Error
	if err != nil {
		return nil, mapFindError(err, "Agency", id)
	}
	return &agency, nil
}

func (r *agencyRepository) CreateWithOwner(ctx context.Context, agency *models.Agency, owner *models.User) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		agency.OwnerID = owner.ID
		if err := tx.Omit("Members").Create(agency).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", owner.ID).
			Updates(map[string]interface{}{"agency_id": agency.ID, "agency_role": models.AgencyRoleOwner}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Client{}).Where("user_id = ?", owner.ID).
			Update("agency_id", agency.ID).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	owner.AgencyID = &agency.ID
	owner.AgencyRole = models.AgencyRoleOwner
	return nil
}

func (r *agencyRepository) Rename(ctx context.Context, id uint, name string) error {
	res := r.db.WithContext(ctx).Model(&models.Agency{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Agency", id)
	}
	return nil
}

func (r *agencyRepository) AddMember(ctx context.Context, invite *models.AgencyInvite, user *models.User) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guard against a concurrent accept of the same invite.
		res := tx.Model(&models.AgencyInvite{}).
			Where("id = ? AND accepted_at IS NULL", invite.ID).
			Update("accepted_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errInviteConsumed
		}
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{"agency_id": invite.AgencyID, "agency_role": models.AgencyRoleMember}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Client{}).Where("user_id = ?", user.ID).
			Update("agency_id", invite.AgencyID).Error
	})
	if errors.Is(err, errInviteConsumed) {
		return models.NewValidationError("Invite has already been used")
	}
	if err != nil {
		return models.NewInternalError(err)
	}
	invite.AcceptedAt = &now
	user.AgencyID = &invite.AgencyID
	user.AgencyRole = models.AgencyRoleMember
	return nil
}

var errInviteConsumed = errors.New("invite already accepted")

func (r *agencyRepository) RemoveMember(ctx context.Context, agencyID, userID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND agency_id = ?", userID, agencyID).
			Updates(map[string]interface{}{"agency_id": nil, "agency_role": ""})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Client{}).
			Where("user_id = ? AND agency_id = ?", userID, agencyID).
			Update("agency_id", nil).Error
	})
	if err != nil {
		return mapFindError(err, "Member", userID)
	}
	return nil
}

func (r *agencyRepository) CreateInvite(ctx context.Context, invite *models.AgencyInvite) error {
	if err := r.db.WithContext(ctx).Create(invite).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// GetInviteByToken returns (nil, nil) for an unknown token.
func (r *agencyRepository) GetInviteByToken(ctx context.Context, token string) (*models.AgencyInvite, error) {
	var invite models.AgencyInvite
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &invite, nil
}

func (r *agencyRepository) ListPendingInvites(ctx context.Context, agencyID uint, now time.Time) ([]models.AgencyInvite, error) {
	var invites []models.AgencyInvite
	if err := r.db.WithContext(ctx).
		Where("agency_id = ? AND accepted_at IS NULL AND expires_at > ?", agencyID, now).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return invites, nil
}
