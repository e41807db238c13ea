package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
)

// ClaimRepository manages persistence for claims, their line items and
// attached documents. Items and documents are written in the same transaction
// as the claim; a failed submission never leaves partial rows behind.
type ClaimRepository struct {
	db *sqlx.DB
}

// NewClaimRepository constructs a ClaimRepository.
func NewClaimRepository(db *sqlx.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

const claimColumns = "id, lecturer_id, lecturer_name, month, total_hours, total_amount, status, rejection_reason, submitted_date, approved_date"

// Create inserts a claim together with its items and documents atomically.
func (r *ClaimRepository) Create(ctx context.Context, claim *models.Claim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.SubmittedDate.IsZero() {
		claim.SubmittedDate = time.Now().UTC()
	}
	if claim.Status == "" {
		claim.Status = models.ClaimStatusPending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const claimQuery = `INSERT INTO claims (id, lecturer_id, lecturer_name, month, total_hours, total_amount, status, submitted_date)
		VALUES (:id, :lecturer_id, :lecturer_name, :month, :total_hours, :total_amount, :status, :submitted_date)`
	if _, err := tx.NamedExecContext(ctx, claimQuery, claim); err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}

	const itemQuery = `INSERT INTO claim_items (id, claim_id, date, hours, rate, description)
		VALUES (:id, :claim_id, :date, :hours, :rate, :description)`
	for i := range claim.Items {
		item := &claim.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.ClaimID = claim.ID
		if _, err := tx.NamedExecContext(ctx, itemQuery, item); err != nil {
			return fmt.Errorf("insert claim item: %w", err)
		}
	}

	const docQuery = `INSERT INTO claim_documents (id, claim_id, file_name, original_file_name, content, content_type, size_bytes, uploaded_date)
		VALUES (:id, :claim_id, :file_name, :original_file_name, :content, :content_type, :size_bytes, :uploaded_date)`
	for i := range claim.Documents {
		doc := &claim.Documents[i]
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		doc.ClaimID = claim.ID
		if doc.UploadedDate.IsZero() {
			doc.UploadedDate = claim.SubmittedDate
		}
		if _, err := tx.NamedExecContext(ctx, docQuery, doc); err != nil {
			return fmt.Errorf("insert claim document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit claim tx: %w", err)
	}
	return nil
}

// FindByID fetches a claim header by ID.
func (r *ClaimRepository) FindByID(ctx context.Context, id string) (*models.Claim, error) {
	query := fmt.Sprintf("SELECT %s FROM claims WHERE id = $1", claimColumns)
	var claim models.Claim
	if err := r.db.GetContext(ctx, &claim, query, id); err != nil {
		return nil, err
	}
	return &claim, nil
}

// FindDetail fetches a claim with its items and document metadata (content
// excluded; documents are streamed individually on download).
func (r *ClaimRepository) FindDetail(ctx context.Context, id string) (*models.Claim, error) {
	claim, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	const itemsQuery = `SELECT id, claim_id, date, hours, rate, description FROM claim_items WHERE claim_id = $1 ORDER BY date`
	if err := r.db.SelectContext(ctx, &claim.Items, itemsQuery, id); err != nil {
		return nil, fmt.Errorf("load claim items: %w", err)
	}

	const docsQuery = `SELECT id, claim_id, file_name, original_file_name, content_type, size_bytes, uploaded_date FROM claim_documents WHERE claim_id = $1 ORDER BY uploaded_date`
	if err := r.db.SelectContext(ctx, &claim.Documents, docsQuery, id); err != nil {
		return nil, fmt.Errorf("load claim documents: %w", err)
	}

	return claim, nil
}

// List returns claims matching the filter, newest first, with total count.
func (r *ClaimRepository) List(ctx context.Context, filter models.ClaimFilter) ([]models.Claim, int, error) {
	base := "FROM claims WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.LecturerID != "" {
		conditions = append(conditions, fmt.Sprintf("lecturer_id = $%d", len(args)+1))
		args = append(args, filter.LecturerID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY submitted_date DESC LIMIT %d OFFSET %d", claimColumns, base, size, offset)
	var claims []models.Claim
	if err := r.db.SelectContext(ctx, &claims, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list claims: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}

	return claims, total, nil
}

// ListByStatus returns the approval queue for a status, oldest first.
func (r *ClaimRepository) ListByStatus(ctx context.Context, status models.ClaimStatus) ([]models.Claim, error) {
	query := fmt.Sprintf("SELECT %s FROM claims WHERE status = $1 ORDER BY submitted_date", claimColumns)
	var claims []models.Claim
	if err := r.db.SelectContext(ctx, &claims, query, status); err != nil {
		return nil, fmt.Errorf("list claims by status: %w", err)
	}
	return claims, nil
}

// UpdateStatusIf performs a status-guarded conditional update: the row moves
// to next only when it is still in expected. Returns false when another
// transition won the race (or the claim is gone); callers distinguish the two.
func (r *ClaimRepository) UpdateStatusIf(ctx context.Context, id string, expected, next models.ClaimStatus, approvedAt *time.Time, reason *string) (bool, error) {
	const query = `UPDATE claims SET status = $3, approved_date = COALESCE($4, approved_date), rejection_reason = COALESCE($5, rejection_reason)
		WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, expected, next, approvedAt, reason)
	if err != nil {
		return false, fmt.Errorf("update claim status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim status rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindDocument fetches a single document with content for download.
func (r *ClaimRepository) FindDocument(ctx context.Context, claimID, docID string) (*models.Document, error) {
	const query = `SELECT id, claim_id, file_name, original_file_name, content, content_type, size_bytes, uploaded_date
		FROM claim_documents WHERE id = $1 AND claim_id = $2`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, docID, claimID); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PayrollRows projects manager-approved claims for a month joined to active
// lecturers, exposing the snapshot rate from the claim line.
func (r *ClaimRepository) PayrollRows(ctx context.Context, month time.Time) ([]dto.PayrollReportRow, error) {
	const query = `SELECT c.lecturer_name, l.email, c.total_hours AS hours_worked,
			COALESCE((SELECT MAX(i.rate) FROM claim_items i WHERE i.claim_id = c.id), 0) AS hourly_rate,
			c.total_amount, c.month AS claim_month
		FROM claims c
		JOIN lecturers l ON l.id = c.lecturer_id AND l.active = TRUE
		WHERE c.month = $1 AND c.status = $2
		ORDER BY c.lecturer_name`
	var rows []dto.PayrollReportRow
	if err := r.db.SelectContext(ctx, &rows, query, month, models.ClaimStatusApprovedByManager); err != nil {
		return nil, fmt.Errorf("payroll rows: %w", err)
	}
	return rows, nil
}

// MonthlyApprovedClaims returns a lecturer's manager-approved claims for the
// given month; the invoice summary is derived from these.
func (r *ClaimRepository) MonthlyApprovedClaims(ctx context.Context, lecturerID string, month time.Time) ([]models.Claim, error) {
	query := fmt.Sprintf(`SELECT %s FROM claims WHERE lecturer_id = $1 AND month = $2 AND status = $3 ORDER BY submitted_date`, claimColumns)
	var claims []models.Claim
	if err := r.db.SelectContext(ctx, &claims, query, lecturerID, month, models.ClaimStatusApprovedByManager); err != nil {
		return nil, fmt.Errorf("monthly approved claims: %w", err)
	}
	return claims, nil
}

// ClaimsReportRows projects claims within a date range, optionally filtered
// by status, with lecturer identity resolved.
func (r *ClaimRepository) ClaimsReportRows(ctx context.Context, start, end time.Time, status *models.ClaimStatus) ([]dto.ClaimsReportRow, error) {
	query := `SELECT c.lecturer_name, l.email, c.month, c.total_hours, c.total_amount, c.status, c.submitted_date, c.approved_date
		FROM claims c
		JOIN lecturers l ON l.id = c.lecturer_id
		WHERE c.submitted_date >= $1 AND c.submitted_date < $2`
	args := []interface{}{start, end}
	if status != nil {
		query += " AND c.status = $3"
		args = append(args, *status)
	}
	query += " ORDER BY c.submitted_date"

	var rows []dto.ClaimsReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("claims report rows: %w", err)
	}
	return rows, nil
}

// LecturerReportRows projects the lecturer roster with claim statistics.
func (r *ClaimRepository) LecturerReportRows(ctx context.Context) ([]dto.LecturerReportRow, error) {
	const query = `SELECT l.name, l.email, l.hourly_rate, l.active, l.created_at,
			COUNT(c.id) AS total_claims,
			COUNT(c.id) FILTER (WHERE c.status IN ($1, $2)) AS approved_claims,
			COALESCE(SUM(c.total_amount) FILTER (WHERE c.status IN ($1, $2)), 0) AS total_amount
		FROM lecturers l
		LEFT JOIN claims c ON c.lecturer_id = l.id
		GROUP BY l.id, l.name, l.email, l.hourly_rate, l.active, l.created_at
		ORDER BY l.name`
	var rows []dto.LecturerReportRow
	if err := r.db.SelectContext(ctx, &rows, query, models.ClaimStatusApprovedByManager, models.ClaimStatusPaid); err != nil {
		return nil, fmt.Errorf("lecturer report rows: %w", err)
	}
	return rows, nil
}

// DashboardStats gathers the HR landing page counters in one round trip.
func (r *ClaimRepository) DashboardStats(ctx context.Context) (*dto.HRDashboardResponse, error) {
	const query = `SELECT
			(SELECT COUNT(*) FROM lecturers) AS lecturer_count,
			(SELECT COUNT(*) FROM lecturers WHERE active = TRUE) AS active_lecturers,
			(SELECT COUNT(*) FROM claims WHERE status = $1) AS pending_claims,
			(SELECT COALESCE(SUM(total_amount), 0) FROM claims WHERE status = $2) AS total_paid`
	var stats dto.HRDashboardResponse
	if err := r.db.GetContext(ctx, &stats, query, models.ClaimStatusPending, models.ClaimStatusPaid); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &stats, nil
}
