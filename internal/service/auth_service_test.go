package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cmcs-platform/claims-api/internal/models"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
)

type authRepoStub struct {
	users   map[string]*models.User
	tokens  map[string]*models.RefreshToken
	audits  []*models.AuditLog
	revoked []string
}

func newAuthRepoStub(users ...*models.User) *authRepoStub {
	stub := &authRepoStub{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
	for _, u := range users {
		stub.users[u.ID] = u
	}
	return stub
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *authRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if u, ok := s.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.revoked = append(s.revoked, userID)
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := s.tokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, stored := range s.tokens {
		if stored.ID == id {
			stored.Revoked = true
		}
	}
	return nil
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "claims-api",
	}
}

func activeUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "u1",
		Email:        "a@uni.example",
		PasswordHash: string(hash),
		FullName:     "Dr A",
		Role:         models.RoleLecturer,
		Active:       true,
	}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := newAuthRepoStub(activeUser(t))
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@uni.example", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleLecturer, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleLecturer, claims.Role)
	assert.Equal(t, "a@uni.example", claims.Email)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub(activeUser(t))
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@uni.example", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	user := activeUser(t)
	user.Active = false
	svc := NewAuthService(newAuthRepoStub(user), validator.New(), nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@uni.example", Password: "password123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newAuthRepoStub(activeUser(t))
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@uni.example", Password: "password123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked; a second exchange must fail.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(newAuthRepoStub(), validator.New(), nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	repo := newAuthRepoStub(activeUser(t))
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{
		OldPassword: "password123",
		NewPassword: "newpassword",
	})
	require.NoError(t, err)
	assert.Contains(t, repo.revoked, "u1")

	err = bcrypt.CompareHashAndPassword([]byte(repo.users["u1"].PasswordHash), []byte("newpassword"))
	assert.NoError(t, err)
}
