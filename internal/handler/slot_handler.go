package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

type slotService interface {
	List(ctx context.Context, academyID, periodID string) ([]models.TimeSlot, error)
	Generate(ctx context.Context, academyID, periodID string, req dto.GenerateSlotsRequest) ([]models.TimeSlot, error)
	AddSingle(ctx context.Context, academyID, periodID string, req dto.AddSlotRequest) (*models.TimeSlot, error)
	UpdateCapacity(ctx context.Context, academyID, slotID string, req dto.UpdateCapacityRequest) (*dto.CapacityUpdateResponse, error)
	Delete(ctx context.Context, academyID, periodID, slotID string, force bool) (*models.SlotDeletion, error)
	DeleteDay(ctx context.Context, academyID, periodID string, day models.Weekday, force bool) (*models.SlotDeletion, error)
	DeleteAll(ctx context.Context, academyID, periodID string, force bool) (*models.SlotDeletion, error)
}

// SlotHandler exposes the admin slot grid editor.
type SlotHandler struct {
	service slotService
}

// NewSlotHandler builds a new handler.
func NewSlotHandler(service slotService) *SlotHandler {
	return &SlotHandler{service: service}
}

// List godoc
// @Summary List the slots of a period
// @Tags Slots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /admin/periods/{id}/slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	slots, err := h.service.List(c.Request.Context(), academyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slots)
}

// Generate godoc
// @Summary Generate a block of slots
// @Description Creates consecutive slots from start to end on every listed weekday. A trailing partial interval is not created.
// @Tags Slots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param payload body dto.GenerateSlotsRequest true "Generation parameters"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/periods/{id}/slots/generate [post]
func (h *SlotHandler) Generate(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var req dto.GenerateSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid generate payload"))
		return
	}
	slots, err := h.service.Generate(c.Request.Context(), academyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slots)
}

// Add godoc
// @Summary Add a single slot
// @Tags Slots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param payload body dto.AddSlotRequest true "Slot"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/periods/{id}/slots [post]
func (h *SlotHandler) Add(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var req dto.AddSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid slot payload"))
		return
	}
	slot, err := h.service.AddSingle(c.Request.Context(), academyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// UpdateCapacity godoc
// @Summary Change a slot's capacity
// @Description Lowering capacity below the seats taken is applied and reported as a warning.
// @Tags Slots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param slotId path string true "Slot ID"
// @Param payload body dto.UpdateCapacityRequest true "Capacity"
// @Success 200 {object} response.Envelope
// @Router /admin/slots/{slotId}/capacity [patch]
func (h *SlotHandler) UpdateCapacity(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid capacity payload"))
		return
	}
	result, err := h.service.UpdateCapacity(c.Request.Context(), academyID, c.Param("slotId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Delete godoc
// @Summary Delete one slot
// @Description Refuses slots with registrations unless force=true, which detaches them from the registrations.
// @Tags Slots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param slotId path string true "Slot ID"
// @Param force query bool false "Delete even when occupied"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/periods/{id}/slots/{slotId} [delete]
func (h *SlotHandler) Delete(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	force, err := forceParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Delete(c.Request.Context(), academyID, c.Param("id"), c.Param("slotId"), force)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// DeleteMany godoc
// @Summary Delete the slots of a weekday or of the whole period
// @Tags Slots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Period ID"
// @Param day query string false "Weekday (mon..fri); omit to delete every slot"
// @Param force query bool false "Delete even when occupied"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/periods/{id}/slots [delete]
func (h *SlotHandler) DeleteMany(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	force, err := forceParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var result *models.SlotDeletion
	if day := c.Query("day"); day != "" {
		result, err = h.service.DeleteDay(c.Request.Context(), academyID, c.Param("id"), models.Weekday(day), force)
	} else {
		result, err = h.service.DeleteAll(c.Request.Context(), academyID, c.Param("id"), force)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func forceParam(c *gin.Context) (bool, error) {
	raw := c.Query("force")
	if raw == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(raw)
	if err != nil {
		return false, bindError(err, "force must be a boolean")
	}
	return force, nil
}
