// Package registration tracks a student's live area selection for one call and turns it
// into a Registration with a payment order.
package registration

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/olympiad-registration-api/internal/eligibility"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

// Default payment order validity windows.
const (
	DefaultIndividualTTL = 7 * 24 * time.Hour
	DefaultGroupTTL      = 48 * time.Hour
)

// Outcome describes what a Toggle did to the selection.
type Outcome int

const (
	OutcomeUnknownArea Outcome = iota
	OutcomeAdded
	OutcomeRemoved
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeRemoved:
		return "removed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown_area"
	}
}

// OrderPolicy configures payment order generation.
type OrderPolicy struct {
	IndividualTTL time.Duration
	GroupTTL      time.Duration
	Now           func() time.Time
	NewID         func() string
}

func (p OrderPolicy) withDefaults() OrderPolicy {
	if p.IndividualTTL <= 0 {
		p.IndividualTTL = DefaultIndividualTTL
	}
	if p.GroupTTL <= 0 {
		p.GroupTTL = DefaultGroupTTL
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	if p.NewID == nil {
		p.NewID = uuid.NewString
	}
	return p
}

// TTL returns the validity window for kind.
func (p OrderPolicy) TTL(kind models.OrderKind) time.Duration {
	if kind == models.OrderKindGroup {
		return p.GroupTTL
	}
	return p.IndividualTTL
}

// Session holds one editing session's selection. It is not safe for concurrent use;
// a session belongs to a single form.
type Session struct {
	call     models.Call
	course   int
	checker  *eligibility.Checker
	policy   OrderPolicy
	selected map[string]struct{}
}

// NewSession starts an empty selection for call.
func NewSession(call models.Call, course int, checker *eligibility.Checker, policy OrderPolicy) *Session {
	if checker == nil {
		checker = eligibility.NewChecker(nil)
	}
	return &Session{
		call:     call,
		course:   course,
		checker:  checker,
		policy:   policy.withDefaults(),
		selected: make(map[string]struct{}),
	}
}

// Resume starts a session preloaded with the areas of an existing registration.
// Areas no longer offered by the call are left out.
func Resume(call models.Call, course int, checker *eligibility.Checker, policy OrderPolicy, prior models.Registration) *Session {
	s := NewSession(call, course, checker, policy)
	for _, a := range prior.Areas {
		if _, ok := call.FindArea(a.ID); ok {
			s.selected[a.ID] = struct{}{}
		}
	}
	return s
}

// Toggle removes areaID when selected, otherwise tries to add it.
func (s *Session) Toggle(areaID string) (Outcome, error) {
	if _, ok := s.selected[areaID]; ok {
		delete(s.selected, areaID)
		return OutcomeRemoved, nil
	}
	area, ok := s.call.FindArea(areaID)
	if !ok {
		return OutcomeUnknownArea, nil
	}
	if !s.checker.IsEligible(s.course, area) {
		return OutcomeRejected, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrIneligibleArea, fmt.Sprintf("%s is not available for %s", area.Name, eligibility.CourseLabel(s.course))),
			map[string]interface{}{"area_id": area.ID, "course": s.course},
		)
	}
	if len(s.selected) >= s.call.MaxAreas {
		return OutcomeRejected, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrMaxAreasExceeded, fmt.Sprintf("at most %d areas can be selected", s.call.MaxAreas)),
			map[string]interface{}{"max_areas": s.call.MaxAreas},
		)
	}
	s.selected[areaID] = struct{}{}
	return OutcomeAdded, nil
}

// IsSelected reports whether areaID is in the selection.
func (s *Session) IsSelected(areaID string) bool {
	_, ok := s.selected[areaID]
	return ok
}

// Count returns the number of selected areas.
func (s *Session) Count() int {
	return len(s.selected)
}

// TotalCost is the selected count times the call's cost per area.
func (s *Session) TotalCost() float64 {
	return float64(len(s.selected)) * s.call.CostPerArea
}

// Selected returns the selected areas in the call's order.
func (s *Session) Selected() []models.Area {
	areas := make([]models.Area, 0, len(s.selected))
	for _, a := range s.call.Areas {
		if _, ok := s.selected[a.ID]; ok {
			areas = append(areas, a)
		}
	}
	return areas
}

// Submit validates the selection and returns the registration to persist. prior is the
// existing registration for the same student and call, if any.
func (s *Session) Submit(student models.Student, prior *models.Registration, kind models.OrderKind) (*models.Registration, error) {
	if len(s.selected) == 0 {
		return nil, appErrors.ErrEmptySelection
	}
	if err := CheckWindow(s.call, s.policy.Now()); err != nil {
		return nil, err
	}
	if prior != nil && prior.Status != models.RegistrationStatusPending && prior.Status != "" {
		return nil, appErrors.WithDetails(appErrors.ErrFinalized, map[string]interface{}{
			"registration_id": prior.ID,
			"status":          prior.Status,
		})
	}
	if kind != models.OrderKindGroup {
		kind = models.OrderKindIndividual
	}

	now := s.policy.Now()
	reg := &models.Registration{
		ID:        s.policy.NewID(),
		StudentID: student.ID,
		CallID:    s.call.ID,
		Status:    models.RegistrationStatusPending,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prior != nil {
		reg.ID = prior.ID
		reg.CreatedAt = prior.CreatedAt
	}
	reg.Areas = s.Selected()
	reg.TotalCost = s.TotalCost()
	reg.PaymentOrder = models.PaymentOrder{
		ID:             s.policy.NewID(),
		RegistrationID: reg.ID,
		Amount:         reg.TotalCost,
		Status:         models.RegistrationStatusPending,
		Kind:           kind,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.policy.TTL(kind)),
	}
	return reg, nil
}

// CheckWindow returns nil when call accepts registrations at now.
func CheckWindow(call models.Call, now time.Time) error {
	if !call.Active {
		return appErrors.ErrCallInactive
	}
	if now.Before(call.StartsAt) {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrRegistrationNotOpen, fmt.Sprintf("registration opens on %s", call.StartsAt.Format("2006-01-02"))),
			map[string]interface{}{"starts_at": call.StartsAt},
		)
	}
	if now.After(call.EndsAt) {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrRegistrationClosed, fmt.Sprintf("registration closed on %s", call.EndsAt.Format("2006-01-02"))),
			map[string]interface{}{"ends_at": call.EndsAt},
		)
	}
	return nil
}
