package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cmcs-platform/claims-api/internal/models"
)

// LecturerRepository manages persistence for lecturers.
type LecturerRepository struct {
	db *sqlx.DB
}

// NewLecturerRepository constructs a LecturerRepository.
func NewLecturerRepository(db *sqlx.DB) *LecturerRepository {
	return &LecturerRepository{db: db}
}

const lecturerColumns = "id, name, email, hourly_rate, active, created_at, updated_at"

// List returns lecturers matching filters along with total count.
func (r *LecturerRepository) List(ctx context.Context, filter models.LecturerFilter) ([]models.Lecturer, int, error) {
	base := "FROM lecturers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]string{
		"name":        "name",
		"email":       "email",
		"hourly_rate": "hourly_rate",
		"created_at":  "created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", lecturerColumns, base, column, order, size, offset)
	var lecturers []models.Lecturer
	if err := r.db.SelectContext(ctx, &lecturers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lecturers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lecturers: %w", err)
	}

	return lecturers, total, nil
}

// FindByID fetches a lecturer by ID.
func (r *LecturerRepository) FindByID(ctx context.Context, id string) (*models.Lecturer, error) {
	query := fmt.Sprintf("SELECT %s FROM lecturers WHERE id = $1", lecturerColumns)
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, id); err != nil {
		return nil, err
	}
	return &lecturer, nil
}

// FindActiveByEmail fetches an active lecturer by exact email match.
func (r *LecturerRepository) FindActiveByEmail(ctx context.Context, email string) (*models.Lecturer, error) {
	query := fmt.Sprintf("SELECT %s FROM lecturers WHERE LOWER(email) = LOWER($1) AND active = TRUE", lecturerColumns)
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, email); err != nil {
		return nil, err
	}
	return &lecturer, nil
}

// FindActiveByNameContains fetches the first active lecturer whose name
// contains the given fragment.
func (r *LecturerRepository) FindActiveByNameContains(ctx context.Context, fragment string) (*models.Lecturer, error) {
	query := fmt.Sprintf("SELECT %s FROM lecturers WHERE active = TRUE AND LOWER(name) LIKE $1 ORDER BY created_at LIMIT 1", lecturerColumns)
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, "%"+strings.ToLower(fragment)+"%"); err != nil {
		return nil, err
	}
	return &lecturer, nil
}

// ExistsByEmail checks if another lecturer uses the same email.
func (r *LecturerRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM lecturers WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check lecturer email: %w", err)
	}
	return true, nil
}

// Create inserts a new lecturer record.
func (r *LecturerRepository) Create(ctx context.Context, lecturer *models.Lecturer) error {
	if lecturer.ID == "" {
		lecturer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lecturer.CreatedAt.IsZero() {
		lecturer.CreatedAt = now
	}
	lecturer.UpdatedAt = now

	const query = `INSERT INTO lecturers (id, name, email, hourly_rate, active, created_at, updated_at)
		VALUES (:id, :name, :email, :hourly_rate, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lecturer); err != nil {
		return fmt.Errorf("create lecturer: %w", err)
	}
	return nil
}

// Update modifies an existing lecturer record. Rate changes here never touch
// already-submitted claims; those hold their own snapshots.
func (r *LecturerRepository) Update(ctx context.Context, lecturer *models.Lecturer) error {
	lecturer.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lecturers SET name = :name, email = :email, hourly_rate = :hourly_rate, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lecturer); err != nil {
		return fmt.Errorf("update lecturer: %w", err)
	}
	return nil
}

// Deactivate sets a lecturer's active flag to false.
func (r *LecturerRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE lecturers SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate lecturer: %w", err)
	}
	return nil
}
