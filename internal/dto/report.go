package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cmcs-platform/claims-api/internal/models"
)

// ReportRequest is the payload for queueing a report job.
type ReportRequest struct {
	Type       models.ReportType   `json:"type" validate:"required,oneof=payroll invoice claims lecturer staff"`
	Format     models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	LecturerID string              `json:"lecturer_id,omitempty"`
	Month      int                 `json:"month,omitempty" validate:"omitempty,min=1,max=12"`
	Year       int                 `json:"year,omitempty" validate:"omitempty,min=2000,max=2100"`
	StartDate  string              `json:"start_date,omitempty"`
	EndDate    string              `json:"end_date,omitempty"`
	Status     string              `json:"status,omitempty"`
}

// ReportJobResponse acknowledges a queued job.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress and the signed result URL.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}

// ReportTotals carries derived sums alongside every projection.
type ReportTotals struct {
	TotalHours  decimal.Decimal `json:"total_hours"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ClaimCount  int             `json:"claim_count"`
}

// PayrollReportRow is one manager-approved claim joined to its lecturer,
// snapshot rate included.
type PayrollReportRow struct {
	LecturerName string          `db:"lecturer_name" json:"lecturer_name"`
	Email        string          `db:"email" json:"email"`
	HoursWorked  decimal.Decimal `db:"hours_worked" json:"hours_worked"`
	HourlyRate   decimal.Decimal `db:"hourly_rate" json:"hourly_rate"`
	TotalAmount  decimal.Decimal `db:"total_amount" json:"total_amount"`
	ClaimMonth   time.Time       `db:"claim_month" json:"claim_month"`
}

// InvoiceSummary aggregates one lecturer's approved claims for a month.
type InvoiceSummary struct {
	LecturerID   string          `json:"lecturer_id"`
	LecturerName string          `json:"lecturer_name"`
	Email        string          `json:"email"`
	Month        time.Time       `json:"month"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ClaimCount   int             `json:"claim_count"`
}

// ClaimsReportRow is one claim within a date range, lecturer identity resolved.
type ClaimsReportRow struct {
	LecturerName  string             `db:"lecturer_name" json:"lecturer_name"`
	Email         string             `db:"email" json:"email"`
	Month         time.Time          `db:"month" json:"month"`
	TotalHours    decimal.Decimal    `db:"total_hours" json:"total_hours"`
	TotalAmount   decimal.Decimal    `db:"total_amount" json:"total_amount"`
	Status        models.ClaimStatus `db:"status" json:"status"`
	SubmittedDate time.Time          `db:"submitted_date" json:"submitted_date"`
	ApprovedDate  *time.Time         `db:"approved_date" json:"approved_date,omitempty"`
}

// LecturerReportRow is the roster projection with per-lecturer claim stats.
type LecturerReportRow struct {
	Name           string          `db:"name" json:"name"`
	Email          string          `db:"email" json:"email"`
	HourlyRate     decimal.Decimal `db:"hourly_rate" json:"hourly_rate"`
	Active         bool            `db:"active" json:"active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	TotalClaims    int             `db:"total_claims" json:"total_claims"`
	ApprovedClaims int             `db:"approved_claims" json:"approved_claims"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
}

// StaffReportRow lists one approver account.
type StaffReportRow struct {
	FullName  string          `db:"full_name" json:"full_name"`
	Email     string          `db:"email" json:"email"`
	Role      models.UserRole `db:"role" json:"role"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
