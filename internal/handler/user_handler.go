package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/service"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
	"github.com/noah-isme/olympiad-registration-api/pkg/response"
)

type userService interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, req service.CreateUserRequest) (*models.User, error)
}

// UserHandler exposes account management for administrators.
type UserHandler struct {
	users userService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users userService) *UserHandler {
	return &UserHandler{users: users}
}

// Get godoc
// @Summary Get account
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Create account
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body service.CreateUserRequest true "Account payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}
	user, err := h.users.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}
