package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
)

// SchoolRepository persists schools.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs a SchoolRepository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// List returns schools, optionally narrowed by a name search and department.
func (r *SchoolRepository) List(ctx context.Context, search, department string) ([]models.School, error) {
	query := "SELECT id, name, department, province, created_at FROM schools WHERE 1=1"
	var args []interface{}
	if search != "" {
		query += fmt.Sprintf(" AND LOWER(name) LIKE $%d", len(args)+1)
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	if department != "" {
		query += fmt.Sprintf(" AND department = $%d", len(args)+1)
		args = append(args, department)
	}
	query += " ORDER BY name ASC"

	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, query, args...); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}

// FindByID fetches a school. Returns sql.ErrNoRows when missing.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	var school models.School
	if err := r.db.GetContext(ctx, &school, "SELECT id, name, department, province, created_at FROM schools WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &school, nil
}

// Create inserts a school.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	if school.CreatedAt.IsZero() {
		school.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schools (id, name, department, province, created_at) VALUES (:id, :name, :department, :province, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}
