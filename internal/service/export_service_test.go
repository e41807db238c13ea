package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
	"github.com/cmcs-platform/claims-api/pkg/export"
)

type exportClaimsStub struct {
	payroll  []dto.PayrollReportRow
	approved []models.Claim
	claims   []dto.ClaimsReportRow
	roster   []dto.LecturerReportRow
	err      error
}

func (s *exportClaimsStub) PayrollRows(ctx context.Context, month time.Time) ([]dto.PayrollReportRow, error) {
	return s.payroll, s.err
}

func (s *exportClaimsStub) MonthlyApprovedClaims(ctx context.Context, lecturerID string, month time.Time) ([]models.Claim, error) {
	return s.approved, s.err
}

func (s *exportClaimsStub) ClaimsReportRows(ctx context.Context, start, end time.Time, status *models.ClaimStatus) ([]dto.ClaimsReportRow, error) {
	return s.claims, s.err
}

func (s *exportClaimsStub) LecturerReportRows(ctx context.Context) ([]dto.LecturerReportRow, error) {
	return s.roster, s.err
}

type exportUsersStub struct {
	staff []dto.StaffReportRow
}

func (s *exportUsersStub) StaffRows(ctx context.Context) ([]dto.StaffReportRow, error) {
	return s.staff, nil
}

type exportLecturersStub struct {
	lecturer *models.Lecturer
}

func (s *exportLecturersStub) FindByID(ctx context.Context, id string) (*models.Lecturer, error) {
	if s.lecturer == nil {
		return nil, sql.ErrNoRows
	}
	return s.lecturer, nil
}

func TestExportServicePayrollDatasetWithTotals(t *testing.T) {
	claims := &exportClaimsStub{payroll: []dto.PayrollReportRow{
		{
			LecturerName: "Dr A",
			Email:        "a@uni.example",
			HoursWorked:  decimal.RequireFromString("20"),
			HourlyRate:   decimal.RequireFromString("670"),
			TotalAmount:  decimal.RequireFromString("13400"),
			ClaimMonth:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			LecturerName: "Dr B",
			Email:        "b@uni.example",
			HoursWorked:  decimal.RequireFromString("10"),
			HourlyRate:   decimal.RequireFromString("500"),
			TotalAmount:  decimal.RequireFromString("5000"),
			ClaimMonth:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
	}}
	svc := NewExportService(claims, &exportUsersStub{}, &exportLecturersStub{}, nil)

	data, title, err := svc.BuildDataset(context.Background(), models.ReportTypePayroll, models.ReportJobParams{Month: 8, Year: 2026})
	require.NoError(t, err)
	assert.Contains(t, title, "2026-08")
	require.Len(t, data.Rows, 3)

	totals := data.Rows[len(data.Rows)-1]
	assert.Equal(t, "TOTAL", totals["Lecturer"])
	assert.Equal(t, "30", totals["Hours Worked"])
	assert.Equal(t, "18400", totals["Total Amount"])
}

func TestExportServicePayrollNoData(t *testing.T) {
	svc := NewExportService(&exportClaimsStub{}, &exportUsersStub{}, &exportLecturersStub{}, nil)

	_, _, err := svc.BuildDataset(context.Background(), models.ReportTypePayroll, models.ReportJobParams{Month: 1, Year: 2020})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoDataFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceClaimsRangeNoData(t *testing.T) {
	svc := NewExportService(&exportClaimsStub{}, &exportUsersStub{}, &exportLecturersStub{}, nil)

	_, _, err := svc.BuildDataset(context.Background(), models.ReportTypeClaims, models.ReportJobParams{
		StartDate: "2020-01-01",
		EndDate:   "2020-01-31",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoDataFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceClaimsRejectsInvalidRange(t *testing.T) {
	svc := NewExportService(&exportClaimsStub{}, &exportUsersStub{}, &exportLecturersStub{}, nil)

	_, _, err := svc.BuildDataset(context.Background(), models.ReportTypeClaims, models.ReportJobParams{
		StartDate: "2026-02-01",
		EndDate:   "2026-01-01",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceInvoiceRequiresLecturer(t *testing.T) {
	svc := NewExportService(&exportClaimsStub{}, &exportUsersStub{}, &exportLecturersStub{}, nil)

	_, _, err := svc.BuildDataset(context.Background(), models.ReportTypeInvoice, models.ReportJobParams{Month: 8, Year: 2026})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceInvoiceSummary(t *testing.T) {
	claims := &exportClaimsStub{approved: []models.Claim{
		{ID: "c1", TotalHours: decimal.RequireFromString("20"), TotalAmount: decimal.RequireFromString("13400"), Status: models.ClaimStatusApprovedByManager, SubmittedDate: time.Now()},
	}}
	lecturers := &exportLecturersStub{lecturer: &models.Lecturer{ID: "l1", Name: "Dr A", Email: "a@uni.example"}}
	svc := NewExportService(claims, &exportUsersStub{}, lecturers, nil)

	data, title, err := svc.BuildDataset(context.Background(), models.ReportTypeInvoice, models.ReportJobParams{LecturerID: "l1", Month: 8, Year: 2026})
	require.NoError(t, err)
	assert.Contains(t, title, "Dr A")
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "13400", data.Rows[1]["Amount"])
}

func TestExportServiceStaffDataset(t *testing.T) {
	users := &exportUsersStub{staff: []dto.StaffReportRow{
		{FullName: "Coordinator One", Email: "c1@uni.example", Role: models.RoleCoordinator, Active: true, CreatedAt: time.Now()},
	}}
	svc := NewExportService(&exportClaimsStub{}, users, &exportLecturersStub{}, nil)

	data, _, err := svc.BuildDataset(context.Background(), models.ReportTypeStaff, models.ReportJobParams{})
	require.NoError(t, err)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "COORDINATOR", data.Rows[0]["Role"])
}

func TestExportServiceRenderFormats(t *testing.T) {
	svc := NewExportService(&exportClaimsStub{}, &exportUsersStub{}, &exportLecturersStub{}, nil)

	data := export.Dataset{
		Headers: []string{"Name"},
		Rows:    []map[string]string{{"Name": "Dr A"}},
	}

	csvOut, err := svc.Render(data, models.ReportFormatCSV, "Staff Report")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csvOut), "Name"))

	pdfOut, err := svc.Render(data, models.ReportFormatPDF, "Staff Report")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdfOut), "%PDF"))

	_, err = svc.Render(data, models.ReportFormat("xml"), "Staff Report")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
