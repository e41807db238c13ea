package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmcs-platform/claims-api/internal/models"
)

func newLecturerRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func lecturerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "hourly_rate", "active", "created_at", "updated_at"})
}

func TestLecturerRepositoryList(t *testing.T) {
	db, mock, cleanup := newLecturerRepoMock(t)
	defer cleanup()
	repo := NewLecturerRepository(db)

	rows := lecturerRows().
		AddRow("l1", "Dr A", "a@uni.example", "670.00", true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, hourly_rate, active, created_at, updated_at FROM lecturers WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lecturers WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.LecturerFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLecturerRepositoryFindActiveByEmail(t *testing.T) {
	db, mock, cleanup := newLecturerRepoMock(t)
	defer cleanup()
	repo := NewLecturerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, hourly_rate, active, created_at, updated_at FROM lecturers WHERE LOWER(email) = LOWER($1) AND active = TRUE")).
		WithArgs("a@uni.example").
		WillReturnRows(lecturerRows().AddRow("l1", "Dr A", "a@uni.example", "670.00", true, time.Now(), time.Now()))

	lecturer, err := repo.FindActiveByEmail(context.Background(), "a@uni.example")
	require.NoError(t, err)
	assert.Equal(t, "l1", lecturer.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLecturerRepositoryFindActiveByNameContains(t *testing.T) {
	db, mock, cleanup := newLecturerRepoMock(t)
	defer cleanup()
	repo := NewLecturerRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM lecturers WHERE active = TRUE AND LOWER\\(name\\) LIKE \\$1").
		WithArgs("%dr a%").
		WillReturnRows(lecturerRows().AddRow("l1", "Dr A", "a@uni.example", "670.00", true, time.Now(), time.Now()))

	lecturer, err := repo.FindActiveByNameContains(context.Background(), "Dr A")
	require.NoError(t, err)
	assert.Equal(t, "Dr A", lecturer.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLecturerRepositoryCreateAndDeactivate(t *testing.T) {
	db, mock, cleanup := newLecturerRepoMock(t)
	defer cleanup()
	repo := NewLecturerRepository(db)

	mock.ExpectExec("INSERT INTO lecturers").
		WithArgs(sqlmock.AnyArg(), "Dr A", "a@uni.example", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.Lecturer{Name: "Dr A", Email: "a@uni.example", Active: true})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE lecturers SET active = FALSE").
		WithArgs("l1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "l1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
