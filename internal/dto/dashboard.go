package dto

import "github.com/shopspring/decimal"

// HRDashboardResponse aggregates the counters shown on the HR landing page.
type HRDashboardResponse struct {
	LecturerCount   int             `db:"lecturer_count" json:"lecturer_count"`
	ActiveLecturers int             `db:"active_lecturers" json:"active_lecturers"`
	PendingClaims   int             `db:"pending_claims" json:"pending_claims"`
	TotalPaid       decimal.Decimal `db:"total_paid" json:"total_paid"`
}
