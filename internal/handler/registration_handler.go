package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

type registrationService interface {
	List(ctx context.Context, academyID, periodID string, query dto.RegistrationListQuery) ([]dto.RegistrationView, *models.Pagination, error)
	Detail(ctx context.Context, academyID, id string) (*dto.RegistrationView, error)
	Timetable(ctx context.Context, academyID, periodID string, unmask bool) ([]models.TimetableEntry, error)
	Cancel(ctx context.Context, academyID, id string) (*dto.ProcedureResponse, error)
	Reset(ctx context.Context, academyID, periodID string) (*dto.ResetResult, error)
	ExportCSV(ctx context.Context, academyID, periodID string) ([]byte, string, error)
	ExportPDF(ctx context.Context, academyID, periodID string) ([]byte, string, error)
}

// RegistrationHandler exposes the admin views over a period's registrations.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler builds a new handler.
func NewRegistrationHandler(service registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// List godoc
// @Summary List registrations in submission order
// @Description Guardian phones are masked unless unmask=true.
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param status query string false "pending, confirmed, waiting or cancelled"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param unmask query bool false "Show full phone numbers"
// @Success 200 {object} response.Envelope
// @Router /admin/periods/{id}/registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var query dto.RegistrationListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	views, pagination, err := h.service.List(c.Request.Context(), academyID, c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, pagination)
}

// Detail godoc
// @Summary Get one registration
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param regId path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/registrations/{regId} [get]
func (h *RegistrationHandler) Detail(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	view, err := h.service.Detail(c.Request.Context(), academyID, c.Param("regId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Timetable godoc
// @Summary Weekly timetable of a period
// @Description Every slot with the active registrations holding it.
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param unmask query bool false "Show full phone numbers"
// @Success 200 {object} response.Envelope
// @Router /admin/periods/{id}/timetable [get]
func (h *RegistrationHandler) Timetable(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	entries, err := h.service.Timetable(c.Request.Context(), academyID, c.Param("id"), query.Unmask)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// Cancel godoc
// @Summary Cancel a registration
// @Description Releases the registration's seats atomically. A registration that is already cancelled is reported with success=false.
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param regId path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /admin/registrations/{regId}/cancel [post]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	result, err := h.service.Cancel(c.Request.Context(), academyID, c.Param("regId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Reset godoc
// @Summary Reset a period
// @Description Cancels every active registration and zeroes all seat counts.
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /admin/periods/{id}/reset [post]
func (h *RegistrationHandler) Reset(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	result, err := h.service.Reset(c.Request.Context(), academyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Export godoc
// @Summary Export registrations
// @Description format=csv gives the registration list; format=pdf gives the timetable.
// @Tags Registrations
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/periods/{id}/export [get]
func (h *RegistrationHandler) Export(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}

	var (
		content     []byte
		filename    string
		contentType string
		err         error
	)
	switch format := c.DefaultQuery("format", "csv"); format {
	case "csv":
		content, filename, err = h.service.ExportCSV(c.Request.Context(), academyID, c.Param("id"))
		contentType = "text/csv; charset=utf-8"
	case "pdf":
		content, filename, err = h.service.ExportPDF(c.Request.Context(), academyID, c.Param("id"))
		contentType = "application/pdf"
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format)))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, content)
}
