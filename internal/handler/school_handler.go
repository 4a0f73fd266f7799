package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
	"github.com/noah-isme/olympiad-registration-api/pkg/response"
)

type schoolService interface {
	List(ctx context.Context, search, department string) ([]models.School, error)
	Create(ctx context.Context, req dto.CreateSchoolRequest) (*models.School, error)
}

// SchoolHandler exposes school endpoints.
type SchoolHandler struct {
	schools schoolService
}

// NewSchoolHandler constructs SchoolHandler.
func NewSchoolHandler(schools schoolService) *SchoolHandler {
	return &SchoolHandler{schools: schools}
}

// List godoc
// @Summary List schools
// @Tags Schools
// @Produce json
// @Param search query string false "Search by name"
// @Param department query string false "Filter by department"
// @Success 200 {object} response.Envelope
// @Router /schools [get]
func (h *SchoolHandler) List(c *gin.Context) {
	schools, err := h.schools.List(c.Request.Context(), c.Query("search"), c.Query("department"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schools, nil)
}

// Create godoc
// @Summary Create school
// @Tags Schools
// @Accept json
// @Produce json
// @Param payload body dto.CreateSchoolRequest true "School payload"
// @Success 201 {object} response.Envelope
// @Router /schools [post]
func (h *SchoolHandler) Create(c *gin.Context) {
	var req dto.CreateSchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid school payload"))
		return
	}
	school, err := h.schools.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, school)
}
