package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/olympiad-registration-api/internal/dto"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
	"github.com/noah-isme/olympiad-registration-api/pkg/response"
)

type exportService interface {
	WriteCSV(ctx context.Context, query dto.RegistrationExportQuery, w io.Writer) (int, error)
}

// ExportHandler serves spreadsheet downloads of registrations.
type ExportHandler struct {
	service exportService
	now     func() time.Time
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service, now: time.Now}
}

// Registrations godoc
// @Summary Export registrations as CSV
// @Tags Admin
// @Produce text/csv
// @Param call_id query string false "Call ID"
// @Param status query string false "Registration status"
// @Param semicolon query bool false "Semicolon separated with BOM"
// @Success 200 {string} string "CSV file"
// @Failure 400 {object} response.Envelope
// @Router /admin/registrations/export [get]
func (h *ExportHandler) Registrations(c *gin.Context) {
	var query dto.RegistrationExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export query"))
		return
	}

	buf := &bytes.Buffer{}
	rows, err := h.service.WriteCSV(c.Request.Context(), query, buf)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("registrations-%s.csv", h.now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Total-Count", fmt.Sprintf("%d", rows))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
