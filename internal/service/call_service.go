package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/eligibility"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

const callCachePrefix = "calls:"

type callRepository interface {
	List(ctx context.Context, filter models.CallFilter) ([]models.Call, int, error)
	FindByID(ctx context.Context, id string) (*models.Call, error)
	Create(ctx context.Context, call *models.Call) error
	Update(ctx context.Context, call *models.Call) error
	ReplaceAreas(ctx context.Context, callID string, areas []models.Area) error
}

// CallService manages calls for registration and their areas.
type CallService struct {
	repo      callRepository
	cache     *CacheService
	checker   *eligibility.Checker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCallService constructs a CallService. cache may be nil.
func NewCallService(repo callRepository, cache *CacheService, checker *eligibility.Checker, validate *validator.Validate, logger *zap.Logger) *CallService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if checker == nil {
		checker = eligibility.NewChecker(nil)
	}
	return &CallService{repo: repo, cache: cache, checker: checker, validator: validate, logger: logger}
}

// List returns a page of calls.
func (s *CallService) List(ctx context.Context, filter models.CallFilter) ([]models.Call, *models.Pagination, error) {
	calls, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list calls")
	}
	page, size := normalisePage(filter.Page, filter.PageSize)
	return calls, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a call with its areas, served from cache when possible.
func (s *CallService) Get(ctx context.Context, id string) (*models.Call, error) {
	call, _, err := s.Lookup(ctx, id)
	return call, err
}

// Lookup is Get that also reports whether the cache answered.
func (s *CallService) Lookup(ctx context.Context, id string) (*models.Call, bool, error) {
	var cached models.Call
	if s.cache.Get(ctx, callCachePrefix+id, &cached) {
		return &cached, true, nil
	}

	call, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	s.cache.Set(ctx, callCachePrefix+id, call, 0)
	return call, false, nil
}

// Create validates and stores a new call.
func (s *CallService) Create(ctx context.Context, req dto.CallRequest) (*models.Call, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid call payload")
	}
	areas, err := buildAreas(req.Areas)
	if err != nil {
		return nil, err
	}

	call := &models.Call{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		CostPerArea: roundCents(req.CostPerArea),
		MaxAreas:    req.MaxAreas,
		Active:      req.Active,
		Areas:       areas,
	}
	if err := s.repo.Create(ctx, call); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create call")
	}
	s.logger.Info("call created", zap.String("call_id", call.ID), zap.Int("areas", len(call.Areas)))
	return call, nil
}

// Update replaces the call's own fields; areas are left untouched.
func (s *CallService) Update(ctx context.Context, id string, req dto.CallRequest) (*models.Call, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid call payload")
	}
	call, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	call.Name = strings.TrimSpace(req.Name)
	call.Description = req.Description
	call.StartsAt = req.StartsAt.UTC()
	call.EndsAt = req.EndsAt.UTC()
	call.CostPerArea = roundCents(req.CostPerArea)
	call.MaxAreas = req.MaxAreas
	call.Active = req.Active

	if err := s.repo.Update(ctx, call); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update call")
	}
	s.cache.Invalidate(ctx, callCachePrefix+id)
	return call, nil
}

// ReplaceAreas swaps the area list of a call.
func (s *CallService) ReplaceAreas(ctx context.Context, id string, req dto.ReplaceAreasRequest) (*models.Call, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid areas payload")
	}
	areas, err := buildAreas(req.Areas)
	if err != nil {
		return nil, err
	}
	call, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceAreas(ctx, id, areas); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace areas")
	}
	s.cache.Invalidate(ctx, callCachePrefix+id)
	call.Areas = areas
	return call, nil
}

// EligibleAreas annotates every area of the call with whether course may take it.
func (s *CallService) EligibleAreas(ctx context.Context, id string, course int) (*dto.EligibleAreasResponse, error) {
	if err := eligibility.ValidateCourse(course); err != nil {
		return nil, err
	}
	call, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.EligibleAreasResponse{
		CallID:      call.ID,
		Course:      course,
		CourseLabel: eligibility.CourseLabel(course),
		MaxAreas:    call.MaxAreas,
		CostPerArea: call.CostPerArea,
		Areas:       make([]dto.EligibleArea, 0, len(call.Areas)),
	}
	for _, area := range call.Areas {
		item := dto.EligibleArea{
			ID:          area.ID,
			Name:        area.Name,
			Description: area.Description,
			Eligible:    s.checker.IsEligible(course, area),
		}
		if ranges, ok := s.checker.Range(area); ok {
			item.Courses = ranges.String()
		}
		resp.Areas = append(resp.Areas, item)
	}
	return resp, nil
}

func (s *CallService) load(ctx context.Context, id string) (*models.Call, error) {
	call, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "call not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load call")
	}
	return call, nil
}

func buildAreas(reqs []dto.AreaRequest) ([]models.Area, error) {
	areas := make([]models.Area, 0, len(reqs))
	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		id := strings.TrimSpace(req.ID)
		if id != "" {
			if _, dup := seen[id]; dup {
				return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "duplicate area id"), map[string]interface{}{"area_id": id})
			}
			seen[id] = struct{}{}
		}
		ranges, err := models.ParseCourseRanges(req.Requirements)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid requirements for %q", req.Name))
		}
		for _, r := range ranges {
			if r.Min < eligibility.MinCourse || r.Max > eligibility.MaxCourse {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("requirements for %q must stay within courses 1 to 12", req.Name))
			}
		}
		areas = append(areas, models.Area{
			ID:           id,
			Name:         strings.TrimSpace(req.Name),
			Description:  strings.TrimSpace(req.Description),
			Requirements: ranges,
		})
	}
	return areas, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
