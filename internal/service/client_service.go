package service

import (
	"context"
	"strings"

	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"
	"ghostwriter/internal/validation"
)

// PlanLimits reports how many clients a plan may own. *billing.Catalog implements it.
type PlanLimits interface {
	MaxClients(planID string) int
}

type ClientService struct {
	clientRepo repository.ClientRepository
	userRepo   repository.UserRepository
	limits     PlanLimits
	activity   *ActivityService
}

// ClientInput carries client fields. On update, nil fields are left unchanged.
type ClientInput struct {
	Name           *string
	Industry       *string
	Tone           *string
	BrandVoice     *string
	TargetAudience *string
	Topics         []string
	AccountType    *string
	LinkedInOrgID  *string
}

func NewClientService(
	clientRepo repository.ClientRepository,
	userRepo repository.UserRepository,
	limits PlanLimits,
	activity *ActivityService,
) *ClientService {
	return &ClientService{
		clientRepo: clientRepo,
		userRepo:   userRepo,
		limits:     limits,
		activity:   activity,
	}
}

func (s *ClientService) List(ctx context.Context, userID uint) ([]models.Client, error) {
	_, scope, err := loadScope(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return s.clientRepo.ListVisible(ctx, scope)
}

func (s *ClientService) Get(ctx context.Context, userID, clientID uint) (*models.Client, error) {
	_, scope, err := loadScope(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return s.clientRepo.GetVisible(ctx, clientID, scope)
}

func (s *ClientService) Create(ctx context.Context, userID uint, in ClientInput) (*models.Client, error) {
	if in.Name == nil {
		return nil, models.NewValidationError("name is required")
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.limits != nil {
		owned, err := s.clientRepo.CountOwned(ctx, userID)
		if err != nil {
			return nil, err
		}
		if owned >= int64(s.limits.MaxClients(user.EffectivePlan())) {
			return nil, models.NewForbiddenError("Plan limit reached")
		}
	}

	client := &models.Client{
		UserID:      userID,
		AgencyID:    user.AgencyID,
		AccountType: models.AccountTypePersonal,
		TopicList:   []string{},
	}
	if err := applyClientInput(client, in); err != nil {
		return nil, err
	}
	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, userID, models.ActivityClientCreated, "Added client "+client.Name,
		map[string]any{"client_id": client.ID})
	invalidateOverviews(ctx, s.userRepo, userID, client)
	return client, nil
}

func (s *ClientService) Update(ctx context.Context, userID, clientID uint, in ClientInput) (*models.Client, error) {
	client, err := s.Get(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}
	if err := applyClientInput(client, in); err != nil {
		return nil, err
	}
	if err := s.clientRepo.Update(ctx, client); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, userID, models.ActivityClientUpdated, "Updated client "+client.Name,
		map[string]any{"client_id": client.ID})
	return client, nil
}

// Delete removes a visible client and everything hanging off it.
func (s *ClientService) Delete(ctx context.Context, userID, clientID uint) error {
	client, err := s.Get(ctx, userID, clientID)
	if err != nil {
		return err
	}
	if err := s.clientRepo.Delete(ctx, client.ID); err != nil {
		return err
	}

	s.activity.Record(ctx, userID, models.ActivityClientDeleted, "Removed client "+client.Name,
		map[string]any{"client_id": client.ID})
	invalidateOverviews(ctx, s.userRepo, userID, client)
	return nil
}

// applyClientInput validates and copies the set fields of in onto client.
func applyClientInput(client *models.Client, in ClientInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validation.ValidateName("name", name); err != nil {
			return models.NewValidationError(err.Error())
		}
		client.Name = name
	}
	if in.Industry != nil {
		if err := validation.ValidateMaxLength("industry", *in.Industry, validation.MaxIndustryLength); err != nil {
			return models.NewValidationError(err.Error())
		}
		client.Industry = strings.TrimSpace(*in.Industry)
	}
	if in.Tone != nil {
		tone := strings.ToLower(strings.TrimSpace(*in.Tone))
		if err := validation.ValidateTone(tone); err != nil {
			return models.NewValidationError(err.Error())
		}
		client.Tone = tone
	}
	if in.BrandVoice != nil {
		if err := validation.ValidateMaxLength("brand_voice", *in.BrandVoice, validation.MaxLongTextLength); err != nil {
			return models.NewValidationError(err.Error())
		}
		client.BrandVoice = *in.BrandVoice
	}
	if in.TargetAudience != nil {
		if err := validation.ValidateMaxLength("target_audience", *in.TargetAudience, validation.MaxLongTextLength); err != nil {
			return models.NewValidationError(err.Error())
		}
		client.TargetAudience = *in.TargetAudience
	}
	if in.Topics != nil {
		if err := validation.ValidateTopics(in.Topics); err != nil {
			return models.NewValidationError(err.Error())
		}
		client.SetTopics(in.Topics)
	}
	if in.AccountType != nil && *in.AccountType != "" {
		if err := validation.ValidateAccountType(*in.AccountType); err != nil {
			return models.NewValidationError(err.Error())
		}
		client.AccountType = *in.AccountType
	}
	if in.LinkedInOrgID != nil {
		orgID := strings.TrimSpace(*in.LinkedInOrgID)
		if err := validation.ValidateLinkedInOrgID(orgID); err != nil {
			return models.NewValidationError(err.Error())
		}
		client.LinkedInOrgID = orgID
	}
	return nil
}
