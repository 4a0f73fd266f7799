package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/eligibility"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
	"github.com/noah-isme/olympiad-registration-api/pkg/export"
)

type exportRegistrationSource interface {
	ListRaw(ctx context.Context) ([]reconcile.RawRegistration, error)
}

type exportStudentSource interface {
	ListAll(ctx context.Context) ([]models.Student, error)
}

type exportSchoolSource interface {
	List(ctx context.Context, search, department string) ([]models.School, error)
}

// Column headers of the registration export, in output order.
var registrationExportHeaders = []string{
	"registration_id", "call_id", "ci", "student", "course", "school", "areas", "status", "kind", "total_cost", "order_expires_at",
}

// ExportService renders stored registrations as CSV for the organising committee.
type ExportService struct {
	registrations exportRegistrationSource
	students      exportStudentSource
	schools       exportSchoolSource
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(registrations exportRegistrationSource, students exportStudentSource, schools exportSchoolSource, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{registrations: registrations, students: students, schools: schools, validator: validate, logger: logger}
}

// Dataset builds the export rows matching the query, ordered by student name then registration id.
func (s *ExportService) Dataset(ctx context.Context, query dto.RegistrationExportQuery) (export.Dataset, error) {
	if err := s.validator.Struct(query); err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export filter")
	}
	regs, err := s.registrations.ListRaw(ctx)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrations")
	}
	students, err := s.students.ListAll(ctx)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	schools, err := s.schools.List(ctx, "", "")
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schools")
	}

	studentByID := make(map[string]models.Student, len(students))
	for _, st := range students {
		studentByID[st.ID] = st
	}
	schoolName := make(map[string]string, len(schools))
	for _, sc := range schools {
		schoolName[sc.ID] = sc.Name
	}

	type row struct {
		name   string
		id     string
		values map[string]string
	}
	rows := make([]row, 0, len(regs))
	for _, reg := range regs {
		if query.CallID != "" && reg.CallID != query.CallID {
			continue
		}
		if query.Status != "" && reg.Status != query.Status {
			continue
		}
		student, ok := studentByID[reg.StudentID]
		if !ok {
			s.logger.Warn("export skipped registration without student", zap.String("registration_id", reg.ID), zap.String("student_id", reg.StudentID))
			continue
		}
		names := make([]string, len(reg.Areas))
		for i, area := range reg.Areas {
			names[i] = area.Name
			if names[i] == "" {
				names[i] = area.ID
			}
		}
		expires := ""
		if reg.PaymentOrder != nil && !reg.PaymentOrder.ExpiresAt.IsZero() {
			expires = reg.PaymentOrder.ExpiresAt.UTC().Format("2006-01-02 15:04")
		}
		rows = append(rows, row{
			name: student.FullName,
			id:   reg.ID,
			values: map[string]string{
				"registration_id":  reg.ID,
				"call_id":          reg.CallID,
				"ci":               student.CI,
				"student":          student.FullName,
				"course":           eligibility.CourseLabel(student.Course),
				"school":           schoolName[student.SchoolID],
				"areas":            strings.Join(names, ", "),
				"status":           string(reg.Status),
				"kind":             string(reg.Kind),
				"total_cost":       fmt.Sprintf("%.2f", reg.TotalCost),
				"order_expires_at": expires,
			},
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].name != rows[j].name {
			return rows[i].name < rows[j].name
		}
		return rows[i].id < rows[j].id
	})

	data := export.Dataset{Headers: registrationExportHeaders, Rows: make([]map[string]string, len(rows))}
	for i, r := range rows {
		data.Rows[i] = r.values
	}
	return data, nil
}

// WriteCSV streams the filtered registrations to w and returns the number of rows written.
func (s *ExportService) WriteCSV(ctx context.Context, query dto.RegistrationExportQuery, w io.Writer) (int, error) {
	data, err := s.Dataset(ctx, query)
	if err != nil {
		return 0, err
	}
	if err := export.NewCSVExporter(query.Semicolon).Write(w, data); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("registrations exported", zap.String("call_id", query.CallID), zap.Int("rows", len(data.Rows)))
	return len(data.Rows), nil
}
