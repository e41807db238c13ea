package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
)

type userRepoStub struct {
	users   map[string]*models.User
	revoked []string
}

func newUserRepoStub(users ...*models.User) *userRepoStub {
	stub := &userRepoStub{users: make(map[string]*models.User)}
	for _, u := range users {
		stub.users[u.ID] = u
	}
	return stub
}

func (s *userRepoStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var result []models.User
	for _, u := range s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		result = append(result, *u)
	}
	return result, len(result), nil
}

func (s *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	for _, u := range s.users {
		if u.ID != excludeID && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	user.ID = "new-user"
	s.users[user.ID] = user
	return nil
}

func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *userRepoStub) Deactivate(ctx context.Context, id string) error {
	if u, ok := s.users[id]; ok {
		u.Active = false
	}
	return nil
}

func (s *userRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.revoked = append(s.revoked, userID)
	return nil
}

func TestUserServiceCreateGeneratesInitialPassword(t *testing.T) {
	repo := newUserRepoStub()
	svc := NewUserService(repo, validator.New(), nil)

	resp, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "coord@uni.example",
		FullName: "Coordinator One",
		Role:     models.RoleCoordinator,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.InitialPassword)
	assert.True(t, resp.User.Active)

	err = bcrypt.CompareHashAndPassword([]byte(repo.users["new-user"].PasswordHash), []byte(resp.InitialPassword))
	assert.NoError(t, err)
}

func TestUserServiceCreateWithSuppliedPassword(t *testing.T) {
	svc := NewUserService(newUserRepoStub(), validator.New(), nil)

	resp, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "mgr@uni.example",
		FullName: "Manager One",
		Role:     models.RoleManager,
		Password: "chosen-password",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.InitialPassword)
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	repo := newUserRepoStub(&models.User{ID: "u1", Email: "coord@uni.example"})
	svc := NewUserService(repo, validator.New(), nil)

	_, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "coord@uni.example",
		FullName: "Coordinator Two",
		Role:     models.RoleCoordinator,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(newUserRepoStub(), validator.New(), nil)

	_, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "x@uni.example",
		FullName: "X",
		Role:     models.UserRole("SUPERADMIN"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceRoleChangeRevokesSessions(t *testing.T) {
	repo := newUserRepoStub(&models.User{ID: "u1", Email: "a@uni.example", FullName: "Dr A", Role: models.RoleCoordinator, Active: true})
	svc := NewUserService(repo, validator.New(), nil)

	role := models.RoleManager
	user, err := svc.Update(context.Background(), "u1", dto.UpdateUserRequest{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, user.Role)
	assert.Contains(t, repo.revoked, "u1")
}

func TestUserServiceDeactivateRevokesSessions(t *testing.T) {
	repo := newUserRepoStub(&models.User{ID: "u1", Active: true})
	svc := NewUserService(repo, validator.New(), nil)

	require.NoError(t, svc.Deactivate(context.Background(), "u1"))
	assert.False(t, repo.users["u1"].Active)
	assert.Contains(t, repo.revoked, "u1")
}
