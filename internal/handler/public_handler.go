package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/pkg/realtime"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

type publicPeriodService interface {
	Public(ctx context.Context, id string) (*dto.PublicPeriod, error)
}

type slotGridService interface {
	Grid(ctx context.Context, periodID string) (*dto.SlotGrid, error)
}

type publicRegistrationService interface {
	Submit(ctx context.Context, periodID string, req dto.RegistrationRequest) (*dto.ProcedureResponse, error)
	Update(ctx context.Context, periodID string, req dto.RegistrationRequest) (*dto.ProcedureResponse, error)
	Lookup(ctx context.Context, periodID, rawPhone string) (*dto.RegistrationLookup, error)
}

// EventSource hands out per-period change subscriptions.
type EventSource interface {
	Subscribe(periodID string) (<-chan realtime.Event, func())
}

// PublicHandler serves the unauthenticated guardian registration page.
type PublicHandler struct {
	periods       publicPeriodService
	slots         slotGridService
	registrations publicRegistrationService
	events        EventSource
	heartbeat     time.Duration
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

const socketWriteWait = 10 * time.Second

// NewPublicHandler builds the handler. heartbeat is the keep-alive interval of the event
// stream: a ping frame on websockets, a comment line on server-sent events.
func NewPublicHandler(periods publicPeriodService, slots slotGridService, registrations publicRegistrationService, events EventSource, heartbeat time.Duration, logger *zap.Logger) *PublicHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicHandler{
		periods:       periods,
		slots:         slots,
		registrations: registrations,
		events:        events,
		heartbeat:     heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the registration page is embedded on academy sites; the feed is read-only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Period godoc
// @Summary Get a registration period
// @Description Returns the period with its phase (countdown, open, closed, inactive) and the server clock
// @Tags Public
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/periods/{id} [get]
func (h *PublicHandler) Period(c *gin.Context) {
	period, err := h.periods.Public(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, period)
}

// Slots godoc
// @Summary Get the slot grid of a period
// @Tags Public
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/periods/{id}/slots [get]
func (h *PublicHandler) Slots(c *gin.Context) {
	grid, err := h.slots.Grid(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, grid)
}

// Events godoc
// @Summary Stream slot and registration changes
// @Description Websocket stream of JSON change events; each event is a hint to re-fetch the slot grid. Plain GET requests without an upgrade get the same events as server-sent events.
// @Tags Public
// @Produce json
// @Produce text/event-stream
// @Param id path string true "Period ID"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} response.Envelope
// @Router /public/periods/{id}/events [get]
func (h *PublicHandler) Events(c *gin.Context) {
	periodID := c.Param("id")
	if _, err := h.periods.Public(c.Request.Context(), periodID); err != nil {
		response.Error(c, err)
		return
	}

	if websocket.IsWebSocketUpgrade(c.Request) {
		h.socket(c, periodID)
		return
	}

	events, cancel := h.events.Subscribe(periodID)
	defer cancel()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(string(realtime.KindReady), realtime.Event{Kind: realtime.KindReady, PeriodID: periodID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(evt.Kind), evt)
			return true
		case <-ticker.C:
			_, err := fmt.Fprint(w, ": heartbeat\n\n")
			return err == nil
		}
	})
}

func (h *PublicHandler) socket(c *gin.Context, periodID string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the request.
		h.logger.Debug("websocket upgrade failed", zap.String("period_id", periodID), zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.events.Subscribe(periodID)
	defer cancel()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	// Client frames are ignored; reading is what notices a close or a dead peer.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(evt realtime.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		return conn.WriteJSON(evt)
	}
	if err := write(realtime.Event{Kind: realtime.KindReady, PeriodID: periodID}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(socketWriteWait))
				return
			}
			if err := write(evt); err != nil {
				h.logger.Debug("websocket write failed", zap.String("period_id", periodID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				return
			}
		}
	}
}

// Submit godoc
// @Summary Submit a registration
// @Description Claims the selected slots atomically. Domain rejections return 200 with success=false and an error code.
// @Tags Public
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body dto.RegistrationRequest true "Registration"
// @Success 200 {object} dto.ProcedureResponse
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /public/periods/{id}/registrations [post]
func (h *PublicHandler) Submit(c *gin.Context) {
	var req dto.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid registration payload"))
		return
	}
	result, err := h.registrations.Submit(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Raw(c, http.StatusOK, result)
}

// Update godoc
// @Summary Change the slots of an existing registration
// @Description Finds the active registration by guardian phone and swaps its slots atomically, keeping the submission order.
// @Tags Public
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body dto.RegistrationRequest true "Registration"
// @Success 200 {object} dto.ProcedureResponse
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /public/periods/{id}/registrations [put]
func (h *PublicHandler) Update(c *gin.Context) {
	var req dto.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid registration payload"))
		return
	}
	result, err := h.registrations.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Raw(c, http.StatusOK, result)
}

// Lookup godoc
// @Summary Find the active registration for a phone number
// @Description Used to enter edit mode and to resolve a submit whose response was lost. The phone is masked in the result.
// @Tags Public
// @Produce json
// @Param id path string true "Period ID"
// @Param phone query string true "Guardian phone"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/periods/{id}/registrations/lookup [get]
func (h *PublicHandler) Lookup(c *gin.Context) {
	lookup, err := h.registrations.Lookup(c.Request.Context(), c.Param("id"), c.Query("phone"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, lookup)
}
