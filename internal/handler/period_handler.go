package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

type periodService interface {
	List(ctx context.Context, academyID string) ([]dto.PeriodResponse, error)
	Get(ctx context.Context, academyID, id string) (*dto.PeriodResponse, error)
	Create(ctx context.Context, academyID string, req dto.PeriodRequest) (*dto.PeriodResponse, error)
	Update(ctx context.Context, academyID, id string, req dto.PeriodRequest) (*dto.PeriodResponse, error)
	SetActive(ctx context.Context, academyID, id string, req dto.SetPeriodActiveRequest) (*dto.PeriodResponse, error)
	Delete(ctx context.Context, academyID, id string) error
}

// PeriodHandler manages registration periods of the caller's academy.
type PeriodHandler struct {
	service periodService
}

// NewPeriodHandler builds a new handler.
func NewPeriodHandler(service periodService) *PeriodHandler {
	return &PeriodHandler{service: service}
}

// List godoc
// @Summary List registration periods
// @Tags Periods
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	periods, err := h.service.List(c.Request.Context(), academyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, periods)
}

// Get godoc
// @Summary Get a registration period
// @Tags Periods
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/periods/{id} [get]
func (h *PeriodHandler) Get(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	period, err := h.service.Get(c.Request.Context(), academyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, period)
}

// Create godoc
// @Summary Create a registration period
// @Tags Periods
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.PeriodRequest true "Period"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/periods [post]
func (h *PeriodHandler) Create(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var req dto.PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid period payload"))
		return
	}
	period, err := h.service.Create(c.Request.Context(), academyID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// Update godoc
// @Summary Replace a registration period
// @Tags Periods
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param payload body dto.PeriodRequest true "Period"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/periods/{id} [put]
func (h *PeriodHandler) Update(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var req dto.PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid period payload"))
		return
	}
	period, err := h.service.Update(c.Request.Context(), academyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, period)
}

// SetActive godoc
// @Summary Activate or deactivate a period
// @Tags Periods
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param payload body dto.SetPeriodActiveRequest true "Toggle"
// @Success 200 {object} response.Envelope
// @Router /admin/periods/{id}/active [patch]
func (h *PeriodHandler) SetActive(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var req dto.SetPeriodActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid toggle payload"))
		return
	}
	period, err := h.service.SetActive(c.Request.Context(), academyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, period)
}

// Delete godoc
// @Summary Delete a period with its slots and registrations
// @Tags Periods
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/periods/{id} [delete]
func (h *PeriodHandler) Delete(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), academyID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
