package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lecturer is a contract instructor with an hourly rate, distinct from the
// user account of the same person. Owned and mutated by HR only.
type Lecturer struct {
	ID         string          `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Email      string          `db:"email" json:"email"`
	HourlyRate decimal.Decimal `db:"hourly_rate" json:"hourly_rate"`
	Active     bool            `db:"active" json:"active"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// LecturerFilter captures filtering options for listing lecturers.
type LecturerFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
