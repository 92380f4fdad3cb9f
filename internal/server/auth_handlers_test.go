package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ghostwriter/internal/config"
	"ghostwriter/internal/middleware"
	"ghostwriter/internal/models"
	"ghostwriter/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock of the UserRepository interface
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) user(args mock.Arguments) (*models.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return m.user(m.Called(ctx, id))
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.user(m.Called(ctx, email))
}

func (m *MockUserRepository) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return m.user(m.Called(ctx, token))
}

func (m *MockUserRepository) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	return m.user(m.Called(ctx, token))
}

func (m *MockUserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	return m.user(m.Called(ctx, customerID))
}

func (m *MockUserRepository) ListVerified(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserRepository) ListIDsByAgency(ctx context.Context, agencyID uint) ([]uint, error) {
	args := m.Called(ctx, agencyID)
	return args.Get(0).([]uint), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

const testJWTSecret = "test_secret_that_is_long_enough_for_hs256"

func newAuthTestApp(repo *MockUserRepository) *fiber.App {
	s := &Server{
		config:      &config.Config{JWTSecret: testJWTSecret},
		authService: service.NewAuthService(repo, nil, testJWTSecret),
	}

	app := fiber.New()
	app.Post("/register", s.Register)
	app.Post("/login", s.Login)
	app.Post("/forgot-password", s.ForgotPassword)
	app.Get("/me", middleware.RequireAuth(testJWTSecret), s.Me)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name           string
		body           map[string]string
		mockSetup      func(*MockUserRepository)
		expectedStatus int
		expectedError  string
	}{
		{
			name: "Success",
			body: map[string]string{"name": "Jo", "email": "jo@x.com", "password": "secret1"},
			mockSetup: func(m *MockUserRepository) {
				m.On("GetByEmail", mock.Anything, "jo@x.com").Return(nil, nil)
				m.On("Create", mock.Anything, mock.AnythingOfType("*models.User")).
					Run(func(args mock.Arguments) { args.Get(1).(*models.User).ID = 7 }).
					Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Duplicate User",
			body: map[string]string{"name": "Jo", "email": "Jo@X.com", "password": "secret1"},
			mockSetup: func(m *MockUserRepository) {
				m.On("GetByEmail", mock.Anything, "jo@x.com").Return(&models.User{ID: 1}, nil)
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "User already exists",
		},
		{
			name:           "Short Password",
			body:           map[string]string{"name": "Jo", "email": "jo@x.com", "password": "abc"},
			mockSetup:      func(*MockUserRepository) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid Email",
			body:           map[string]string{"name": "Jo", "email": "not-an-email", "password": "secret1"},
			mockSetup:      func(*MockUserRepository) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockUserRepository)
			tt.mockSetup(repo)

			resp, body := postJSON(t, newAuthTestApp(repo), "/register", tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, body["error"])
			}
			if tt.expectedStatus == http.StatusOK {
				assert.NotEmpty(t, body["token"])
				user, ok := body["user"].(map[string]any)
				require.True(t, ok)
				assert.NotContains(t, user, "password")
				assert.Equal(t, "free", user["plan"])
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := &models.User{ID: 3, Name: "Jo", Email: "jo@x.com", Password: string(hash)}

	t.Run("Success", func(t *testing.T) {
		repo := new(MockUserRepository)
		repo.On("GetByEmail", mock.Anything, "jo@x.com").Return(stored, nil)

		resp, body := postJSON(t, newAuthTestApp(repo), "/login", map[string]string{"email": "jo@x.com", "password": "secret1"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		token, _ := body["token"].(string)
		userID, err := middleware.ParseToken(testJWTSecret, token)
		require.NoError(t, err)
		assert.Equal(t, uint(3), userID)
	})

	for name, creds := range map[string]map[string]string{
		"Wrong Password": {"email": "jo@x.com", "password": "nope123"},
		"Unknown Email":  {"email": "who@x.com", "password": "secret1"},
	} {
		t.Run(name, func(t *testing.T) {
			repo := new(MockUserRepository)
			repo.On("GetByEmail", mock.Anything, "jo@x.com").Return(stored, nil).Maybe()
			repo.On("GetByEmail", mock.Anything, "who@x.com").Return(nil, nil).Maybe()

			resp, body := postJSON(t, newAuthTestApp(repo), "/login", creds)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Invalid credentials", body["error"])
		})
	}
}

func TestForgotPassword_DoesNotRevealAccounts(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("GetByEmail", mock.Anything, "ghost@x.com").Return(nil, nil)
	repo.On("GetByEmail", mock.Anything, "jo@x.com").Return(&models.User{ID: 1, Email: "jo@x.com"}, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.ResetToken != "" && u.ResetTokenExpiresAt != nil
	})).Return(nil)
	app := newAuthTestApp(repo)

	unknown, unknownBody := postJSON(t, app, "/forgot-password", map[string]string{"email": "ghost@x.com"})
	known, knownBody := postJSON(t, app, "/forgot-password", map[string]string{"email": "jo@x.com"})

	assert.Equal(t, http.StatusOK, unknown.StatusCode)
	assert.Equal(t, http.StatusOK, known.StatusCode)
	assert.Equal(t, unknownBody, knownBody)
	assert.Equal(t, service.ForgotPasswordMessage, knownBody["message"])
	repo.AssertExpectations(t)
}

func TestMe(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("GetByID", mock.Anything, uint(5)).Return(&models.User{ID: 5, Name: "Jo", Email: "jo@x.com"}, nil)
	app := newAuthTestApp(repo)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := middleware.IssueToken(testJWTSecret, 5, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var user models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, uint(5), user.ID)
}
