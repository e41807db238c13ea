package dto

import "github.com/cmcs-platform/claims-api/internal/models"

// CreateUserRequest is the HR payload for provisioning a staff account.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required,min=2"`
	Role     models.UserRole `json:"role" validate:"required,oneof=LECTURER COORDINATOR MANAGER HR"`
	Password string          `json:"password,omitempty" validate:"omitempty,min=6"`
}

// CreateUserResponse returns the created account and, when HR did not supply
// one, the generated initial password. It is shown exactly once.
type CreateUserResponse struct {
	User            models.User `json:"user"`
	InitialPassword string      `json:"initial_password,omitempty"`
}

// UpdateUserRequest is the HR payload for editing a staff account.
type UpdateUserRequest struct {
	Email    *string          `json:"email,omitempty" validate:"omitempty,email"`
	FullName *string          `json:"full_name,omitempty" validate:"omitempty,min=2"`
	Role     *models.UserRole `json:"role,omitempty" validate:"omitempty,oneof=LECTURER COORDINATOR MANAGER HR"`
	Active   *bool            `json:"active,omitempty"`
}
