package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/eligibility"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/registration"
	"github.com/noah-isme/olympiad-registration-api/internal/repository"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type registrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindByStudentAndCall(ctx context.Context, studentID, callID string) (*models.Registration, error)
	Save(ctx context.Context, reg *models.Registration) error
	UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus) error
	Delete(ctx context.Context, id string) error
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type callLookup interface {
	Get(ctx context.Context, id string) (*models.Call, error)
}

// RegistrationService runs area selection sessions and persists their result.
type RegistrationService struct {
	repo      registrationRepository
	students  studentLookup
	calls     callLookup
	checker   *eligibility.Checker
	policy    registration.OrderPolicy
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(repo registrationRepository, students studentLookup, calls callLookup, checker *eligibility.Checker, policy registration.OrderPolicy, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if checker == nil {
		checker = eligibility.NewChecker(nil)
	}
	if policy.Now == nil {
		policy.Now = func() time.Time { return time.Now().UTC() }
	}
	return &RegistrationService{
		repo:      repo,
		students:  students,
		calls:     calls,
		checker:   checker,
		policy:    policy,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

type selection struct {
	student *models.Student
	call    *models.Call
	prior   *models.Registration
	session *registration.Session
}

// prepare loads the student, call and any prior registration and starts a session.
func (s *RegistrationService) prepare(ctx context.Context, actor *models.JWTClaims, req dto.RegistrationRequest) (*selection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := authorizeStudent(actor, student); err != nil {
		return nil, err
	}
	if err := eligibility.ValidateCourse(student.Course); err != nil {
		return nil, err
	}

	call, err := s.calls.Get(ctx, req.CallID)
	if err != nil {
		return nil, err
	}

	prior, err := s.repo.FindByStudentAndCall(ctx, student.ID, call.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
		}
		prior = nil
	}

	return &selection{
		student: student,
		call:    call,
		prior:   prior,
		session: registration.NewSession(*call, student.Course, s.checker, s.policy),
	}, nil
}

// resume replaces the empty session with one holding the prior registration's areas.
func (s *RegistrationService) resume(sel *selection) {
	if sel.prior != nil {
		sel.session = registration.Resume(*sel.call, sel.student.Course, s.checker, s.policy, *sel.prior)
	}
}

// Quote applies the requested areas to a fresh session and reports the outcome
// without persisting anything. Rejected areas are listed instead of failing. With no
// areas requested it previews the stored selection, so an edit form can start from it.
func (s *RegistrationService) Quote(ctx context.Context, actor *models.JWTClaims, req dto.RegistrationRequest) (*dto.QuoteResponse, error) {
	sel, err := s.prepare(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	if len(req.AreaIDs) == 0 {
		s.resume(sel)
	}

	resp := &dto.QuoteResponse{
		StudentID:   sel.student.ID,
		CallID:      sel.call.ID,
		Course:      sel.student.Course,
		CourseLabel: eligibility.CourseLabel(sel.student.Course),
		MaxAreas:    sel.call.MaxAreas,
		Open:        registration.CheckWindow(*sel.call, s.policy.Now()) == nil,
	}
	for _, id := range uniqueIDs(req.AreaIDs) {
		outcome, err := sel.session.Toggle(id)
		switch outcome {
		case registration.OutcomeUnknownArea:
			resp.Rejected = append(resp.Rejected, dto.RejectedArea{AreaID: id, Code: appErrors.ErrValidation.Code, Message: "area is not offered by this call"})
		case registration.OutcomeRejected:
			appErr := appErrors.FromError(err)
			resp.Rejected = append(resp.Rejected, dto.RejectedArea{AreaID: id, Code: appErr.Code, Message: appErr.Message})
		}
	}
	resp.Selected = sel.session.Selected()
	resp.TotalCost = sel.session.TotalCost()

	if !resp.Open {
		resp.Warning = registration.CheckWindow(*sel.call, s.policy.Now()).Error()
	}
	if sel.prior != nil {
		resp.Existing = sel.prior.ID
		// Finalization outranks the window warning.
		if sel.prior.Status != models.RegistrationStatusPending {
			resp.Warning = appErrors.ErrFinalized.Message
		}
	}
	return resp, nil
}

// Submit applies the requested areas and stores the registration with a fresh payment order.
// Any rejected or unknown area fails the whole submission.
func (s *RegistrationService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.RegistrationRequest) (*models.Registration, error) {
	sel, err := s.prepare(ctx, actor, req)
	if err != nil {
		return nil, err
	}

	for _, id := range uniqueIDs(req.AreaIDs) {
		outcome, err := sel.session.Toggle(id)
		switch outcome {
		case registration.OutcomeUnknownArea:
			s.metrics.RecordRegistration(OutcomeRejected)
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "area is not offered by this call"), map[string]interface{}{"area_id": id})
		case registration.OutcomeRejected:
			s.metrics.RecordRegistration(OutcomeRejected)
			return nil, err
		}
	}

	reg, err := sel.session.Submit(*sel.student, sel.prior, req.Kind)
	if err != nil {
		s.metrics.RecordRegistration(OutcomeRejected)
		return nil, err
	}

	if err := s.repo.Save(ctx, reg); err != nil {
		switch {
		case errors.Is(err, repository.ErrRegistrationLocked):
			s.metrics.RecordRegistration(OutcomeRejected)
			return nil, appErrors.WithDetails(appErrors.ErrFinalized, map[string]interface{}{"registration_id": reg.ID})
		case errors.Is(err, repository.ErrRegistrationExists):
			s.metrics.RecordRegistration(OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrConflict, "another registration for this student and call was just submitted, reload and try again")
		}
		s.metrics.RecordRegistration(OutcomeFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save registration")
	}

	outcome := OutcomeCreated
	if sel.prior != nil {
		outcome = OutcomeUpdated
	}
	s.metrics.RecordRegistration(outcome)
	s.logger.Info("registration submitted",
		zap.String("registration_id", reg.ID),
		zap.String("student_id", reg.StudentID),
		zap.String("call_id", reg.CallID),
		zap.Strings("areas", reg.AreaIDs()),
		zap.Float64("total_cost", reg.TotalCost),
		zap.String("outcome", outcome),
	)
	return reg, nil
}

// Get returns a registration visible to actor.
func (s *RegistrationService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Registration, error) {
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Cancel deletes a registration that has not been finalized.
func (s *RegistrationService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) error {
	reg, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, reg); err != nil {
		return err
	}
	if reg.Status != models.RegistrationStatusPending {
		return appErrors.WithDetails(appErrors.ErrFinalized, map[string]interface{}{"registration_id": reg.ID, "status": reg.Status})
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}
	s.logger.Info("registration cancelled", zap.String("registration_id", id))
	return nil
}

// UpdatePaymentStatus records payment verification. Verified and rejected are terminal.
func (s *RegistrationService) UpdatePaymentStatus(ctx context.Context, id string, req dto.PaymentStatusRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment status payload")
	}
	reg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status == req.Status {
		return reg, nil
	}
	if reg.Status == models.RegistrationStatusVerified || reg.Status == models.RegistrationStatusRejected {
		return nil, appErrors.WithDetails(appErrors.ErrFinalized, map[string]interface{}{"registration_id": reg.ID, "status": reg.Status})
	}
	if reg.Status == models.RegistrationStatusPaid && req.Status == models.RegistrationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a paid registration cannot return to pending")
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}
	s.logger.Info("payment status changed",
		zap.String("registration_id", id),
		zap.String("from", string(reg.Status)),
		zap.String("to", string(req.Status)),
	)
	reg.Status = req.Status
	reg.PaymentOrder.Status = req.Status
	return reg, nil
}

func (s *RegistrationService) load(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return reg, nil
}

func (s *RegistrationService) authorize(ctx context.Context, actor *models.JWTClaims, reg *models.Registration) error {
	if actor == nil || actor.Role == models.RoleAdmin {
		return nil
	}
	student, err := s.students.FindByID(ctx, reg.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "not allowed to act for this student")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return authorizeStudent(actor, student)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
