package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type userStudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// CreateUserRequest represents payload for creating accounts.
type CreateUserRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	FullName  string          `json:"full_name" validate:"required"`
	Role      models.UserRole `json:"role" validate:"required,oneof=ADMIN TUTOR STUDENT"`
	Password  string          `json:"password" validate:"required,min=8"`
	StudentID *string         `json:"student_id"`
}

// UserService manages sign-in accounts for administrators, tutors and students.
type UserService struct {
	repo      userRepository
	students  userStudentLookup
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, students userStudentLookup, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{repo: repo, students: students, validator: validate, logger: logger, hashCost: bcrypt.DefaultCost}
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds an active account. Student accounts must point at an existing student record.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	var studentID *string
	switch {
	case req.Role == models.RoleStudent:
		if req.StudentID == nil || *req.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student accounts require student_id")
		}
		if _, err := s.students.FindByID(ctx, *req.StudentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		studentID = req.StudentID
	case req.StudentID != nil:
		return nil, appErrors.Clone(appErrors.ErrValidation, "only student accounts link a student")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       true,
		StudentID:    studentID,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}
