package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/middleware"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
	"github.com/noah-isme/olympiad-registration-api/pkg/response"
)

type callService interface {
	List(ctx context.Context, filter models.CallFilter) ([]models.Call, *models.Pagination, error)
	Lookup(ctx context.Context, id string) (*models.Call, bool, error)
	Create(ctx context.Context, req dto.CallRequest) (*models.Call, error)
	Update(ctx context.Context, id string, req dto.CallRequest) (*models.Call, error)
	ReplaceAreas(ctx context.Context, id string, req dto.ReplaceAreasRequest) (*models.Call, error)
	EligibleAreas(ctx context.Context, id string, course int) (*dto.EligibleAreasResponse, error)
}

// CallHandler exposes calls for registration and their areas.
type CallHandler struct {
	calls callService
}

// NewCallHandler constructs CallHandler.
func NewCallHandler(calls callService) *CallHandler {
	return &CallHandler{calls: calls}
}

// List godoc
// @Summary List calls for registration
// @Tags Calls
// @Produce json
// @Param active query bool false "Only active calls"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /calls [get]
func (h *CallHandler) List(c *gin.Context) {
	filter := models.CallFilter{Page: queryInt(c, "page", 1), PageSize: queryInt(c, "page_size", 20)}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be true or false"))
			return
		}
		filter.Active = &active
	}

	calls, pagination, err := h.calls.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, calls, pagination)
}

// Get godoc
// @Summary Get call detail with areas
// @Tags Calls
// @Produce json
// @Param id path string true "Call ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calls/{id} [get]
func (h *CallHandler) Get(c *gin.Context) {
	call, hit, err := h.calls.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, call, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Create call
// @Tags Calls
// @Accept json
// @Produce json
// @Param payload body dto.CallRequest true "Call payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /calls [post]
func (h *CallHandler) Create(c *gin.Context) {
	var req dto.CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid call payload"))
		return
	}
	call, err := h.calls.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, call)
}

// Update godoc
// @Summary Update call
// @Tags Calls
// @Accept json
// @Produce json
// @Param id path string true "Call ID"
// @Param payload body dto.CallRequest true "Call payload"
// @Success 200 {object} response.Envelope
// @Router /calls/{id} [put]
func (h *CallHandler) Update(c *gin.Context) {
	var req dto.CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid call payload"))
		return
	}
	call, err := h.calls.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, call, nil)
}

// ReplaceAreas godoc
// @Summary Replace the areas of a call
// @Tags Calls
// @Accept json
// @Produce json
// @Param id path string true "Call ID"
// @Param payload body dto.ReplaceAreasRequest true "Areas"
// @Success 200 {object} response.Envelope
// @Router /calls/{id}/areas [put]
func (h *CallHandler) ReplaceAreas(c *gin.Context) {
	var req dto.ReplaceAreasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid areas payload"))
		return
	}
	call, err := h.calls.ReplaceAreas(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, call, nil)
}

// EligibleAreas godoc
// @Summary Areas of a call annotated for a course
// @Tags Calls
// @Produce json
// @Param id path string true "Call ID"
// @Param course query int true "Course 1-12"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /calls/{id}/eligible-areas [get]
func (h *CallHandler) EligibleAreas(c *gin.Context) {
	course, err := strconv.Atoi(c.Query("course"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course is required"))
		return
	}
	resp, err := h.calls.EligibleAreas(c.Request.Context(), c.Param("id"), course)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
