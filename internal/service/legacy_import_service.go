package service

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/noah-isme/olympiad-registration-api/internal/eligibility"
	"github.com/noah-isme/olympiad-registration-api/internal/legacy"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
	"github.com/noah-isme/olympiad-registration-api/internal/repository"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type legacyStudentStore interface {
	Upsert(ctx context.Context, student *models.Student) error
}

type legacyRegistrationStore interface {
	Save(ctx context.Context, reg *models.Registration) error
}

// LegacyImportOptions tunes one import.
type LegacyImportOptions struct {
	DefaultCallID string
	Persist       bool
}

// LegacyImportService turns a browser-storage dump into stored registrations.
type LegacyImportService struct {
	calls         callCatalog
	students      legacyStudentStore
	registrations legacyRegistrationStore
	reconciler    *reconcile.Reconciler
	logger        *zap.Logger
}

// NewLegacyImportService constructs a LegacyImportService. calls may be nil, in which
// case only the dump's own calls and areas are used.
func NewLegacyImportService(calls callCatalog, students legacyStudentStore, registrations legacyRegistrationStore, reconciler *reconcile.Reconciler, logger *zap.Logger) *LegacyImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconciler == nil {
		reconciler = reconcile.New(reconcile.Options{Logger: logger})
	}
	return &LegacyImportService{calls: calls, students: students, registrations: registrations, reconciler: reconciler, logger: logger}
}

// Import decodes r, reconciles it against the stored calls and optionally persists
// the students and registrations it yields.
func (s *LegacyImportService) Import(ctx context.Context, r io.Reader, opts LegacyImportOptions) (*reconcile.Result, error) {
	dump, err := legacy.Decode(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable storage dump")
	}

	var calls []models.Call
	var areas []models.Area
	if s.calls != nil {
		if calls, err = s.calls.ListAll(ctx); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calls")
		}
		if areas, err = s.calls.ListAreas(ctx); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load areas")
		}
	}

	result := s.reconciler.Reconcile(dump.Input(calls, areas, opts.DefaultCallID))
	s.logger.Info("legacy dump reconciled",
		zap.Int("students", len(dump.Students)),
		zap.Int("registrations", result.Report.Output),
		zap.Int("migrated", result.Report.Migrated),
		zap.Int("dropped", result.Report.Dropped),
	)
	if !opts.Persist {
		return result, nil
	}

	for i := range dump.Students {
		student := &dump.Students[i]
		if student.ID == "" || student.CI == "" || eligibility.ValidateCourse(student.Course) != nil {
			s.logger.Warn("skipping incomplete legacy student", zap.String("student_id", student.ID), zap.Int("course", student.Course))
			continue
		}
		if err := s.students.Upsert(ctx, student); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import student")
		}
	}
	for i := range result.Registrations {
		reg := &result.Registrations[i]
		err := s.registrations.Save(ctx, reg)
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrRegistrationExists), errors.Is(err, repository.ErrRegistrationLocked):
			s.logger.Warn("keeping stored registration over legacy record",
				zap.String("registration_id", reg.ID),
				zap.String("student_id", reg.StudentID),
				zap.String("call_id", reg.CallID),
				zap.Error(err),
			)
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import registration")
		}
	}
	return result, nil
}
