package service

import (
	"context"
	"strings"
	"time"

	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"
	"ghostwriter/internal/validation"
)

// InviteTTL is how long an agency invite stays valid.
const InviteTTL = 7 * 24 * time.Hour

type AgencyService struct {
	agencyRepo repository.AgencyRepository
	userRepo   repository.UserRepository
	mailer     Mailer
	activity   *ActivityService
	now        func() time.Time
	runAsync   asyncRunner
}

func NewAgencyService(
	agencyRepo repository.AgencyRepository,
	userRepo repository.UserRepository,
	mailer Mailer,
	activity *ActivityService,
) *AgencyService {
	return &AgencyService{
		agencyRepo: agencyRepo,
		userRepo:   userRepo,
		mailer:     mailer,
		activity:   activity,
		now:        utcNow,
		runAsync:   runInBackground,
	}
}

var errNoAgency = &models.AppError{Code: models.CodeNotFound, Message: "You are not a member of an agency"}

func validateAgencyName(name string) error {
	if name == "" {
		return models.NewValidationError("name is required")
	}
	if err := validation.ValidateMaxLength("name", name, validation.MaxAgencyNameLength); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}

// Create makes the caller the owner of a new agency and shares their clients with it.
func (s *AgencyService) Create(ctx context.Context, userID uint, name string) (*models.Agency, error) {
	name = strings.TrimSpace(name)
	if err := validateAgencyName(name); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AgencyID != nil {
		return nil, models.NewValidationError("You already belong to an agency")
	}

	agency := &models.Agency{Name: name}
	if err := s.agencyRepo.CreateWithOwner(ctx, agency, user); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, userID, models.ActivityAgencyCreated, "Created agency "+agency.Name,
		map[string]any{"agency_id": agency.ID})
	return s.agencyRepo.GetByID(ctx, agency.ID)
}

// Mine returns the caller's agency with its members.
func (s *AgencyService) Mine(ctx context.Context, userID uint) (*models.Agency, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AgencyID == nil {
		return nil, errNoAgency
	}
	return s.agencyRepo.GetByID(ctx, *user.AgencyID)
}

// owned loads the caller's agency, failing unless they own it.
func (s *AgencyService) owned(ctx context.Context, userID uint) (*models.User, *models.Agency, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user.AgencyID == nil {
		return nil, nil, errNoAgency
	}
	if !user.IsAgencyOwner() {
		return nil, nil, models.NewForbiddenError("Only the agency owner can do that")
	}
	agency, err := s.agencyRepo.GetByID(ctx, *user.AgencyID)
	if err != nil {
		return nil, nil, err
	}
	return user, agency, nil
}

func (s *AgencyService) Rename(ctx context.Context, userID uint, name string) (*models.Agency, error) {
	name = strings.TrimSpace(name)
	if err := validateAgencyName(name); err != nil {
		return nil, err
	}
	_, agency, err := s.owned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.agencyRepo.Rename(ctx, agency.ID, name); err != nil {
		return nil, err
	}
	agency.Name = name
	return agency, nil
}

// Invite creates a single-use invite and emails it.
func (s *AgencyService) Invite(ctx context.Context, userID uint, addr string) (*models.AgencyInvite, error) {
	addr = normalizeEmail(addr)
	if err := validation.ValidateEmail(addr); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	owner, agency, err := s.owned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(owner.Email, addr) {
		return nil, models.NewValidationError("You cannot invite yourself")
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	invite := &models.AgencyInvite{
		AgencyID:    agency.ID,
		Email:       addr,
		Token:       token,
		InvitedByID: owner.ID,
		ExpiresAt:   s.now().Add(InviteTTL),
	}
	if err := s.agencyRepo.CreateInvite(ctx, invite); err != nil {
		return nil, err
	}

	if s.mailer != nil {
		inviter, agencyName := owner.Name, agency.Name
		s.runAsync(ctx, "agency_invite_email", func(ctx context.Context) error {
			return s.mailer.SendAgencyInvite(ctx, addr, inviter, agencyName, token)
		})
	}
	return invite, nil
}

func (s *AgencyService) ListInvites(ctx context.Context, userID uint) ([]models.AgencyInvite, error) {
	_, agency, err := s.owned(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.agencyRepo.ListPendingInvites(ctx, agency.ID, s.now())
}

// AcceptInvite joins the caller to the inviting agency as a member.
func (s *AgencyService) AcceptInvite(ctx context.Context, userID uint, token string) (*models.Agency, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, models.NewValidationError("Invalid or expired invite")
	}
	invite, err := s.agencyRepo.GetInviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invite == nil || !invite.IsPending(s.now()) {
		return nil, models.NewValidationError("Invalid or expired invite")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, invite.Email) {
		return nil, models.NewForbiddenError("This invite was sent to a different email")
	}
	if user.AgencyID != nil {
		return nil, models.NewValidationError("You already belong to an agency")
	}

	if err := s.agencyRepo.AddMember(ctx, invite, user); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, userID, models.ActivityAgencyJoined, "Joined an agency",
		map[string]any{"agency_id": invite.AgencyID})
	return s.agencyRepo.GetByID(ctx, invite.AgencyID)
}

// RemoveMember detaches a member and their clients. The owner cannot remove themself.
func (s *AgencyService) RemoveMember(ctx context.Context, userID, memberID uint) error {
	if userID == memberID {
		return models.NewValidationError("The agency owner cannot be removed")
	}
	_, agency, err := s.owned(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.agencyRepo.RemoveMember(ctx, agency.ID, memberID); err != nil {
		return err
	}
	s.activity.Record(ctx, userID, models.ActivityAgencyMemberLeft, "Removed a member from "+agency.Name,
		map[string]any{"agency_id": agency.ID, "member_id": memberID})
	return nil
}
