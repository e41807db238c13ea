package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmcs-platform/claims-api/internal/models"
)

func newClaimRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestClaimRepositoryCreateTransactional(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()
	repo := NewClaimRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO claims").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO claim_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO claim_documents").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	claim := &models.Claim{
		LecturerID:   "l1",
		LecturerName: "Dr A",
		Month:        time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		TotalHours:   decimal.NewFromInt(20),
		TotalAmount:  decimal.NewFromInt(13400),
		Items: []models.ClaimItem{
			{Date: time.Now().UTC(), Hours: decimal.NewFromInt(20), Rate: decimal.NewFromInt(670), Description: "lectures"},
		},
		Documents: []models.Document{
			{FileName: "a.pdf", OriginalFileName: "timesheet.pdf", Content: []byte("pdf"), ContentType: "application/pdf", SizeBytes: 3},
		},
	}

	require.NoError(t, repo.Create(context.Background(), claim))
	assert.NotEmpty(t, claim.ID)
	assert.Equal(t, claim.ID, claim.Items[0].ClaimID)
	assert.Equal(t, claim.ID, claim.Documents[0].ClaimID)
	assert.Equal(t, models.ClaimStatusPending, claim.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryCreateRollsBackOnItemFailure(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()
	repo := NewClaimRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO claims").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO claim_items").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	claim := &models.Claim{
		LecturerID:   "l1",
		LecturerName: "Dr A",
		Month:        time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		TotalHours:   decimal.NewFromInt(10),
		TotalAmount:  decimal.NewFromInt(6700),
		Items: []models.ClaimItem{
			{Date: time.Now().UTC(), Hours: decimal.NewFromInt(10), Rate: decimal.NewFromInt(670)},
		},
	}

	require.Error(t, repo.Create(context.Background(), claim))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryUpdateStatusIf(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()
	repo := NewClaimRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE claims SET status").
		WithArgs("c1", models.ClaimStatusPending, models.ClaimStatusApprovedByCoordinator, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateStatusIf(context.Background(), "c1", models.ClaimStatusPending, models.ClaimStatusApprovedByCoordinator, &now, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// Lost race: row already moved on, zero rows updated.
	mock.ExpectExec("UPDATE claims SET status").
		WithArgs("c1", models.ClaimStatusPending, models.ClaimStatusApprovedByCoordinator, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.UpdateStatusIf(context.Background(), "c1", models.ClaimStatusPending, models.ClaimStatusApprovedByCoordinator, &now, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryListByStatus(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()
	repo := NewClaimRepository(db)

	rows := sqlmock.NewRows([]string{"id", "lecturer_id", "lecturer_name", "month", "total_hours", "total_amount", "status", "rejection_reason", "submitted_date", "approved_date"}).
		AddRow("c1", "l1", "Dr A", time.Now(), "20", "13400.00", "PENDING", nil, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM claims WHERE status = \\$1 ORDER BY submitted_date").
		WithArgs(models.ClaimStatusPending).
		WillReturnRows(rows)

	claims, err := repo.ListByStatus(context.Background(), models.ClaimStatusPending)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.True(t, claims[0].TotalAmount.Equal(decimal.RequireFromString("13400.00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepositoryDashboardStats(t *testing.T) {
	db, mock, cleanup := newClaimRepoMock(t)
	defer cleanup()
	repo := NewClaimRepository(db)

	rows := sqlmock.NewRows([]string{"lecturer_count", "active_lecturers", "pending_claims", "total_paid"}).
		AddRow(12, 9, 3, "45600.00")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs(models.ClaimStatusPending, models.ClaimStatusPaid).
		WillReturnRows(rows)

	stats, err := repo.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.LecturerCount)
	assert.Equal(t, 9, stats.ActiveLecturers)
	assert.Equal(t, 3, stats.PendingClaims)
	assert.True(t, stats.TotalPaid.Equal(decimal.RequireFromString("45600.00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
