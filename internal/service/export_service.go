package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
	"github.com/cmcs-platform/claims-api/pkg/export"
)

type exportClaimRepository interface {
	PayrollRows(ctx context.Context, month time.Time) ([]dto.PayrollReportRow, error)
	MonthlyApprovedClaims(ctx context.Context, lecturerID string, month time.Time) ([]models.Claim, error)
	ClaimsReportRows(ctx context.Context, start, end time.Time, status *models.ClaimStatus) ([]dto.ClaimsReportRow, error)
	LecturerReportRows(ctx context.Context) ([]dto.LecturerReportRow, error)
}

type exportUserRepository interface {
	StaffRows(ctx context.Context) ([]dto.StaffReportRow, error)
}

type exportLecturerRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lecturer, error)
}

// ExportService builds report datasets from repository projections and
// renders them as CSV or PDF. Empty projections surface as NO_DATA_FOUND so
// callers can distinguish "nothing matched" from a real failure.
type ExportService struct {
	claims    exportClaimRepository
	users     exportUserRepository
	lecturers exportLecturerRepository
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(claims exportClaimRepository, users exportUserRepository, lecturers exportLecturerRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		claims:    claims,
		users:     users,
		lecturers: lecturers,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

// BuildDataset produces the tabular dataset and display title for a report.
func (s *ExportService) BuildDataset(ctx context.Context, reportType models.ReportType, params models.ReportJobParams) (export.Dataset, string, error) {
	switch reportType {
	case models.ReportTypePayroll:
		return s.payrollDataset(ctx, params)
	case models.ReportTypeInvoice:
		return s.invoiceDataset(ctx, params)
	case models.ReportTypeClaims:
		return s.claimsDataset(ctx, params)
	case models.ReportTypeLecturer:
		return s.lecturerDataset(ctx)
	case models.ReportTypeStaff:
		return s.staffDataset(ctx)
	default:
		return export.Dataset{}, "", appErrors.NewValidation(appErrors.FieldError{Field: "type", Message: fmt.Sprintf("unknown report type %q", reportType)})
	}
}

// Render serializes the dataset in the requested format.
func (s *ExportService) Render(data export.Dataset, format models.ReportFormat, title string) ([]byte, error) {
	switch format {
	case models.ReportFormatCSV:
		out, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return out, nil
	case models.ReportFormatPDF:
		out, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return out, nil
	default:
		return nil, appErrors.NewValidation(appErrors.FieldError{Field: "format", Message: fmt.Sprintf("unknown report format %q", format)})
	}
}

func (s *ExportService) payrollDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	month, err := reportMonth(params)
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows, err := s.claims.PayrollRows(ctx, month)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payroll rows")
	}
	if len(rows) == 0 {
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNoDataFound, "no approved claims for the requested month")
	}

	headers := []string{"Lecturer", "Email", "Hours Worked", "Hourly Rate", "Total Amount", "Month"}
	data := export.Dataset{Headers: headers}
	totalHours := decimal.Zero
	totalAmount := decimal.Zero
	for _, row := range rows {
		totalHours = totalHours.Add(row.HoursWorked)
		totalAmount = totalAmount.Add(row.TotalAmount)
		data.Rows = append(data.Rows, map[string]string{
			"Lecturer":     row.LecturerName,
			"Email":        row.Email,
			"Hours Worked": row.HoursWorked.String(),
			"Hourly Rate":  row.HourlyRate.String(),
			"Total Amount": row.TotalAmount.String(),
			"Month":        row.ClaimMonth.Format("2006-01"),
		})
	}
	data.Rows = append(data.Rows, map[string]string{
		"Lecturer":     "TOTAL",
		"Hours Worked": totalHours.String(),
		"Total Amount": totalAmount.String(),
	})

	return data, fmt.Sprintf("Payroll Report %s", month.Format("2006-01")), nil
}

func (s *ExportService) invoiceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	if params.LecturerID == "" {
		return export.Dataset{}, "", appErrors.NewValidation(appErrors.FieldError{Field: "lecturer_id", Message: "lecturer_id is required for invoice reports"})
	}
	month, err := reportMonth(params)
	if err != nil {
		return export.Dataset{}, "", err
	}

	lecturer, err := s.lecturers.FindByID(ctx, params.LecturerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}

	claims, err := s.claims.MonthlyApprovedClaims(ctx, params.LecturerID, month)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved claims")
	}
	if len(claims) == 0 {
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNoDataFound, "no approved claims for the requested month")
	}

	summary := dto.InvoiceSummary{
		LecturerID:   lecturer.ID,
		LecturerName: lecturer.Name,
		Email:        lecturer.Email,
		Month:        month,
		ClaimCount:   len(claims),
	}
	headers := []string{"Claim ID", "Submitted", "Hours", "Amount", "Status"}
	data := export.Dataset{Headers: headers}
	for _, claim := range claims {
		summary.TotalHours = summary.TotalHours.Add(claim.TotalHours)
		summary.TotalAmount = summary.TotalAmount.Add(claim.TotalAmount)
		data.Rows = append(data.Rows, map[string]string{
			"Claim ID":  claim.ID,
			"Submitted": claim.SubmittedDate.Format("2006-01-02"),
			"Hours":     claim.TotalHours.String(),
			"Amount":    claim.TotalAmount.String(),
			"Status":    string(claim.Status),
		})
	}
	data.Rows = append(data.Rows, map[string]string{
		"Claim ID": "TOTAL",
		"Hours":    summary.TotalHours.String(),
		"Amount":   summary.TotalAmount.String(),
	})

	title := fmt.Sprintf("Invoice %s %s", summary.LecturerName, month.Format("2006-01"))
	return data, title, nil
}

func (s *ExportService) claimsDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	start, end, err := reportRange(params)
	if err != nil {
		return export.Dataset{}, "", err
	}

	var status *models.ClaimStatus
	if params.Status != "" {
		candidate := models.ClaimStatus(params.Status)
		if !models.ValidClaimStatus(candidate) {
			return export.Dataset{}, "", appErrors.NewValidation(appErrors.FieldError{Field: "status", Message: fmt.Sprintf("unknown claim status %q", params.Status)})
		}
		status = &candidate
	}

	rows, err := s.claims.ClaimsReportRows(ctx, start, end, status)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claims rows")
	}
	if len(rows) == 0 {
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNoDataFound, "no claims in the requested range")
	}

	headers := []string{"Lecturer", "Email", "Month", "Hours", "Amount", "Status", "Submitted", "Approved"}
	data := export.Dataset{Headers: headers}
	for _, row := range rows {
		approved := ""
		if row.ApprovedDate != nil {
			approved = row.ApprovedDate.Format("2006-01-02")
		}
		data.Rows = append(data.Rows, map[string]string{
			"Lecturer":  row.LecturerName,
			"Email":     row.Email,
			"Month":     row.Month.Format("2006-01"),
			"Hours":     row.TotalHours.String(),
			"Amount":    row.TotalAmount.String(),
			"Status":    string(row.Status),
			"Submitted": row.SubmittedDate.Format("2006-01-02"),
			"Approved":  approved,
		})
	}

	title := fmt.Sprintf("Claims Report %s to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	return data, title, nil
}

func (s *ExportService) lecturerDataset(ctx context.Context) (export.Dataset, string, error) {
	rows, err := s.claims.LecturerReportRows(ctx)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer rows")
	}
	if len(rows) == 0 {
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNoDataFound, "no lecturers registered")
	}

	headers := []string{"Name", "Email", "Hourly Rate", "Active", "Registered", "Total Claims", "Approved Claims", "Total Amount"}
	data := export.Dataset{Headers: headers}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Name":            row.Name,
			"Email":           row.Email,
			"Hourly Rate":     row.HourlyRate.String(),
			"Active":          strconv.FormatBool(row.Active),
			"Registered":      row.CreatedAt.Format("2006-01-02"),
			"Total Claims":    strconv.Itoa(row.TotalClaims),
			"Approved Claims": strconv.Itoa(row.ApprovedClaims),
			"Total Amount":    row.TotalAmount.String(),
		})
	}

	return data, "Lecturer Report", nil
}

func (s *ExportService) staffDataset(ctx context.Context) (export.Dataset, string, error) {
	rows, err := s.users.StaffRows(ctx)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff rows")
	}
	if len(rows) == 0 {
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNoDataFound, "no approver accounts registered")
	}

	headers := []string{"Name", "Email", "Role", "Active", "Registered"}
	data := export.Dataset{Headers: headers}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Name":       row.FullName,
			"Email":      row.Email,
			"Role":       string(row.Role),
			"Active":     strconv.FormatBool(row.Active),
			"Registered": row.CreatedAt.Format("2006-01-02"),
		})
	}

	return data, "Staff Report", nil
}

// reportMonth resolves the month/year pair into a first-of-month timestamp,
// defaulting to the current month.
func reportMonth(params models.ReportJobParams) (time.Time, error) {
	now := time.Now().UTC()
	year := params.Year
	month := params.Month
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return time.Time{}, appErrors.NewValidation(appErrors.FieldError{Field: "month", Message: "month must be between 1 and 12"})
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// reportRange resolves start/end dates, defaulting to the last 30 days. The
// end bound is exclusive.
func reportRange(params models.ReportJobParams) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -30)
	end := now.AddDate(0, 0, 1)

	if params.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", params.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.NewValidation(appErrors.FieldError{Field: "start_date", Message: "start_date must be YYYY-MM-DD"})
		}
		start = parsed
	}
	if params.EndDate != "" {
		parsed, err := time.Parse("2006-01-02", params.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.NewValidation(appErrors.FieldError{Field: "end_date", Message: "end_date must be YYYY-MM-DD"})
		}
		end = parsed.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, appErrors.NewValidation(appErrors.FieldError{Field: "end_date", Message: "end_date must not precede start_date"})
	}
	return start, end, nil
}
