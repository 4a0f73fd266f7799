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

type registrationService interface {
	Quote(ctx context.Context, actor *models.JWTClaims, req dto.RegistrationRequest) (*dto.QuoteResponse, error)
	Submit(ctx context.Context, actor *models.JWTClaims, req dto.RegistrationRequest) (*models.Registration, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Registration, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string) error
	UpdatePaymentStatus(ctx context.Context, id string, req dto.PaymentStatusRequest) (*models.Registration, error)
}

// RegistrationHandler exposes area selection and payment verification.
type RegistrationHandler struct {
	registrations registrationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registrations registrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// Quote godoc
// @Summary Preview an area selection
// @Description Applies the requested areas without saving and lists the ones that were refused.
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.RegistrationRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Router /registrations/quote [post]
func (h *RegistrationHandler) Quote(c *gin.Context) {
	var req dto.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	quote, err := h.registrations.Quote(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// Submit godoc
// @Summary Submit an area selection
// @Description Creates the registration or replaces a pending one for the same student and call.
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.RegistrationRequest true "Selection"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Submit(c *gin.Context) {
	var req dto.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	reg, err := h.registrations.Submit(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if reg.CreatedAt.Equal(reg.UpdatedAt) {
		response.Created(c, reg)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Get godoc
// @Summary Get registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	reg, err := h.registrations.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Cancel godoc
// @Summary Cancel a pending registration
// @Tags Registrations
// @Param id path string true "Registration ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	if err := h.registrations.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdatePayment godoc
// @Summary Record payment verification
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.PaymentStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/payment [put]
func (h *RegistrationHandler) UpdatePayment(c *gin.Context) {
	var req dto.PaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment status payload"))
		return
	}
	reg, err := h.registrations.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}
