package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
)

const studentColumns = `id, ci, full_name, email, phone, course, school_id, tutor_id, created_at, updated_at`

// StudentRepository manages persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the filter with the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.Course > 0 {
		conditions = append(conditions, fmt.Sprintf("course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR ci LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base := "FROM students WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY full_name ASC LIMIT %d OFFSET %d", studentColumns, base, size, (page-1)*size)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListAll returns every student. Reconciliation uses it to validate student references.
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, "SELECT "+studentColumns+" FROM students ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list all students: %w", err)
	}
	return students, nil
}

// FindByID fetches a student. Returns sql.ErrNoRows when missing.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, "SELECT "+studentColumns+" FROM students WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByCI reports whether a student holds the identity card number, optionally ignoring one id.
func (r *StudentRepository) ExistsByCI(ctx context.Context, ci string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE ci = $1"
	args := []interface{}{ci}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check ci: %w", err)
	}
	return true, nil
}

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, ci, full_name, email, phone, course, school_id, tutor_id, created_at, updated_at)
        VALUES (:id, :ci, :full_name, :email, :phone, :course, :school_id, :tutor_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Upsert inserts or refreshes a student keyed by id. Used when importing legacy data.
func (r *StudentRepository) Upsert(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, ci, full_name, email, phone, course, school_id, tutor_id, created_at, updated_at)
        VALUES (:id, :ci, :full_name, :email, :phone, :course, :school_id, :tutor_id, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, email = EXCLUDED.email, phone = EXCLUDED.phone,
            course = EXCLUDED.course, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}
