package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimStatus enumerates the claim approval lifecycle states.
type ClaimStatus string

const (
	ClaimStatusPending               ClaimStatus = "PENDING"
	ClaimStatusApprovedByCoordinator ClaimStatus = "APPROVED_BY_COORDINATOR"
	ClaimStatusApprovedByManager     ClaimStatus = "APPROVED_BY_MANAGER"
	ClaimStatusRejected              ClaimStatus = "REJECTED"
	ClaimStatusPaid                  ClaimStatus = "PAID"
)

// claimTransitions lists the legal forward moves. Anything not listed is
// rejected; there are no backward or skipping transitions.
var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimStatusPending:               {ClaimStatusApprovedByCoordinator, ClaimStatusRejected},
	ClaimStatusApprovedByCoordinator: {ClaimStatusApprovedByManager, ClaimStatusRejected},
	ClaimStatusApprovedByManager:     {ClaimStatusPaid},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to ClaimStatus) bool {
	for _, next := range claimTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status ClaimStatus) bool {
	return len(claimTransitions[status]) == 0
}

// ValidClaimStatus reports whether the given string is a known status.
func ValidClaimStatus(status ClaimStatus) bool {
	switch status {
	case ClaimStatusPending, ClaimStatusApprovedByCoordinator, ClaimStatusApprovedByManager, ClaimStatusRejected, ClaimStatusPaid:
		return true
	}
	return false
}

// Claim is a lecturer's monthly hours-worked submission. Lecturer name, hours
// and amount are snapshots taken at submission time; later rate edits on the
// lecturer never touch them.
type Claim struct {
	ID              string          `db:"id" json:"id"`
	LecturerID      string          `db:"lecturer_id" json:"lecturer_id"`
	LecturerName    string          `db:"lecturer_name" json:"lecturer_name"`
	Month           time.Time       `db:"month" json:"month"`
	TotalHours      decimal.Decimal `db:"total_hours" json:"total_hours"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          ClaimStatus     `db:"status" json:"status"`
	RejectionReason *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SubmittedDate   time.Time       `db:"submitted_date" json:"submitted_date"`
	ApprovedDate    *time.Time      `db:"approved_date" json:"approved_date,omitempty"`

	Items     []ClaimItem `db:"-" json:"items,omitempty"`
	Documents []Document  `db:"-" json:"documents,omitempty"`
}

// ClaimItem is one line entry within a claim. The rate is a snapshot of the
// lecturer's hourly rate at submission; items are append-only at creation.
type ClaimItem struct {
	ID          string          `db:"id" json:"id"`
	ClaimID     string          `db:"claim_id" json:"claim_id"`
	Date        time.Time       `db:"date" json:"date"`
	Hours       decimal.Decimal `db:"hours" json:"hours"`
	Rate        decimal.Decimal `db:"rate" json:"rate"`
	Description string          `db:"description" json:"description"`
}

// Amount returns hours x rate for the line.
func (i ClaimItem) Amount() decimal.Decimal {
	return i.Hours.Mul(i.Rate)
}

// Document is an uploaded attachment owned by exactly one claim. Content is
// stored alongside the claim row so the cascade delete stays transactional.
type Document struct {
	ID               string    `db:"id" json:"id"`
	ClaimID          string    `db:"claim_id" json:"claim_id"`
	FileName         string    `db:"file_name" json:"file_name"`
	OriginalFileName string    `db:"original_file_name" json:"original_file_name"`
	Content          []byte    `db:"content" json:"-"`
	ContentType      string    `db:"content_type" json:"content_type"`
	SizeBytes        int64     `db:"size_bytes" json:"size_bytes"`
	UploadedDate     time.Time `db:"uploaded_date" json:"uploaded_date"`
}

// ClaimFilter captures filtering options for listing claims.
type ClaimFilter struct {
	LecturerID string
	Status     *ClaimStatus
	Page       int
	PageSize   int
}
