package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
	"github.com/noah-isme/olympiad-registration-api/pkg/response"
)

type reconciliationService interface {
	Run(ctx context.Context, dryRun bool) (*dto.ReconciliationRun, error)
	Schedule() (*dto.ReconciliationRun, error)
	Latest() *dto.ReconciliationRun
}

// ReconciliationHandler exposes administrative reconciliation runs.
type ReconciliationHandler struct {
	service reconciliationService
}

// NewReconciliationHandler constructs ReconciliationHandler.
func NewReconciliationHandler(service reconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

// Run godoc
// @Summary Reconcile stored registrations
// @Description dry_run=true reconciles synchronously and returns the report without saving. Otherwise an applied run is queued.
// @Tags Admin
// @Produce json
// @Param dry_run query bool false "Report only"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /admin/reconciliations [post]
func (h *ReconciliationHandler) Run(c *gin.Context) {
	dryRun := false
	if raw := c.Query("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dry_run must be true or false"))
			return
		}
		dryRun = v
	}

	if dryRun {
		run, err := h.service.Run(c.Request.Context(), true)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, run, nil)
		return
	}

	run, err := h.service.Schedule()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, run, nil)
}

// Latest godoc
// @Summary Last applied reconciliation
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/reconciliations/latest [get]
func (h *ReconciliationHandler) Latest(c *gin.Context) {
	run := h.service.Latest()
	if run == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no reconciliation has been applied yet"))
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}
