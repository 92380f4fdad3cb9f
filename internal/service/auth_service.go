package service

import (
	"context"
	"strings"
	"time"

	"ghostwriter/internal/middleware"
	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"
	"ghostwriter/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const (
	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = time.Hour
)

// ForgotPasswordMessage is returned whether or not the email is registered.
const ForgotPasswordMessage = "If that email is registered, a reset link is on its way"

type AuthService struct {
	userRepo  repository.UserRepository
	mailer    Mailer
	jwtSecret string
	now       func() time.Time
	runAsync  asyncRunner
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthResult is a user with a fresh session token.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func NewAuthService(userRepo repository.UserRepository, mailer Mailer, jwtSecret string) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		mailer:    mailer,
		jwtSecret: jwtSecret,
		now:       utcNow,
		runAsync:  runInBackground,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	addr := normalizeEmail(in.Email)

	if err := validation.ValidateName("name", name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(addr); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.userRepo.GetByEmail(ctx, addr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("User already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(VerificationTokenTTL)

	user := &models.User{
		Name:                       name,
		Email:                      addr,
		Password:                   string(hash),
		Plan:                       models.PlanFree,
		VerificationToken:          token,
		VerificationTokenExpiresAt: &expires,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.sendVerification(ctx, user)
	return s.session(user)
}

func (s *AuthService) Login(ctx context.Context, addr, password string) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(addr))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return s.session(user)
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.userRepo.GetByVerificationToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	if user == nil || expired(user.VerificationTokenExpiresAt, s.now()) {
		return models.NewValidationError("Invalid or expired token")
	}

	user.EmailVerified = true
	user.VerificationToken = ""
	user.VerificationTokenExpiresAt = nil
	return s.userRepo.Update(ctx, user)
}

// ResendVerification rotates the verification token and emails it again.
func (s *AuthService) ResendVerification(ctx context.Context, userID uint) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return models.NewValidationError("Email is already verified")
	}

	token, err := newToken()
	if err != nil {
		return err
	}
	expires := s.now().Add(VerificationTokenTTL)
	user.VerificationToken = token
	user.VerificationTokenExpiresAt = &expires
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	s.sendVerification(ctx, user)
	return nil
}

// ForgotPassword stores a reset token and emails it when the address is
// registered. Unknown addresses succeed silently.
func (s *AuthService) ForgotPassword(ctx context.Context, addr string) error {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(addr))
	if err != nil || user == nil {
		return err
	}

	token, err := newToken()
	if err != nil {
		return err
	}
	expires := s.now().Add(ResetTokenTTL)
	user.ResetToken = token
	user.ResetTokenExpiresAt = &expires
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	if s.mailer != nil {
		to, name := user.Email, user.Name
		s.runAsync(ctx, "password_reset_email", func(ctx context.Context) error {
			return s.mailer.SendPasswordReset(ctx, to, name, token)
		})
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return models.NewValidationError(err.Error())
	}

	user, err := s.userRepo.GetByResetToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	if user == nil || expired(user.ResetTokenExpiresAt, s.now()) {
		return models.NewValidationError("Invalid or expired token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	user.Password = string(hash)
	user.ResetToken = ""
	user.ResetTokenExpiresAt = nil
	return s.userRepo.Update(ctx, user)
}

func (s *AuthService) session(user *models.User) (*AuthResult, error) {
	token, err := middleware.IssueToken(s.jwtSecret, user.ID, s.now())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) {
	if s.mailer == nil {
		return
	}
	to, name, token := user.Email, user.Name, user.VerificationToken
	s.runAsync(ctx, "verification_email", func(ctx context.Context) error {
		return s.mailer.SendVerification(ctx, to, name, token)
	})
}

func expired(at *time.Time, now time.Time) bool {
	return at == nil || !now.Before(*at)
}
