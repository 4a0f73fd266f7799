package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type schoolRepository interface {
	List(ctx context.Context, search, department string) ([]models.School, error)
	Create(ctx context.Context, school *models.School) error
}

// SchoolService manages the school catalogue.
type SchoolService struct {
	repo      schoolRepository
	validator *validator.Validate
}

// NewSchoolService constructs a SchoolService.
func NewSchoolService(repo schoolRepository, validate *validator.Validate) *SchoolService {
	if validate == nil {
		validate = NewValidator()
	}
	return &SchoolService{repo: repo, validator: validate}
}

// List returns schools matching search and department.
func (s *SchoolService) List(ctx context.Context, search, department string) ([]models.School, error) {
	schools, err := s.repo.List(ctx, strings.TrimSpace(search), strings.TrimSpace(department))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
	}
	return schools, nil
}

// Create stores a school.
func (s *SchoolService) Create(ctx context.Context, req dto.CreateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}
	school := &models.School{
		Name:       strings.TrimSpace(req.Name),
		Department: strings.TrimSpace(req.Department),
		Province:   strings.TrimSpace(req.Province),
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}
	return school, nil
}
