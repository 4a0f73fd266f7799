package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByCI(ctx context.Context, ci string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
}

type schoolLookup interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

// StudentService manages student records.
type StudentService struct {
	repo      studentRepository
	schools   schoolLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, schools schoolLookup, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, schools: schools, validator: validate, logger: logger}
}

// List returns students visible to actor. Tutors only see their own students.
func (s *StudentService) List(ctx context.Context, actor *models.JWTClaims, query dto.StudentQuery) ([]models.Student, *models.Pagination, error) {
	filter := models.StudentFilter{
		Search:   strings.TrimSpace(query.Search),
		SchoolID: query.SchoolID,
		Course:   query.Course,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if actor != nil {
		switch actor.Role {
		case models.RoleTutor:
			filter.TutorID = actor.UserID
		case models.RoleStudent:
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot list other students")
		}
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page, size := normalisePage(filter.Page, filter.PageSize)
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student if actor may see it.
func (s *StudentService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := authorizeStudent(actor, student); err != nil {
		return nil, err
	}
	return student, nil
}

// Create registers a student. A tutor becomes the student's tutor.
func (s *StudentService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	exists, err := s.repo.ExistsByCI(ctx, req.CI, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ci")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this ci already exists")
	}

	if _, err := s.schools.FindByID(ctx, req.SchoolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	student := &models.Student{
		CI:       req.CI,
		FullName: strings.TrimSpace(req.FullName),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:    req.Phone,
		Course:   req.Course,
		SchoolID: req.SchoolID,
	}
	if req.TutorID != "" {
		tutor := req.TutorID
		student.TutorID = &tutor
	}
	if actor != nil && actor.Role == models.RoleTutor {
		tutor := actor.UserID
		student.TutorID = &tutor
	}

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.Int("course", student.Course))
	return student, nil
}
