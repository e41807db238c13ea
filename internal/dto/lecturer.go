package dto

// CreateLecturerRequest is the HR payload for onboarding a lecturer. The rate
// is a decimal string to avoid float rounding on the way in.
type CreateLecturerRequest struct {
	Name       string `json:"name" validate:"required,min=2"`
	Email      string `json:"email" validate:"required,email"`
	HourlyRate string `json:"hourly_rate" validate:"required"`
}

// UpdateLecturerRequest is the HR payload for editing a lecturer.
type UpdateLecturerRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=2"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	HourlyRate *string `json:"hourly_rate,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}
