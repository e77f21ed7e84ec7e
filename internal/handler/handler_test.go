package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/middleware"
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/realtime"
)

const (
	testAcademy = "academy-1"
	testPeriod  = "5f0c6a1e-7d1b-4c55-9f0e-0a4f3a1c2b10"
)

func newTestContext(method, target, body string, claims *models.JWTClaims, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin", AcademyID: testAcademy, Role: models.RoleAdmin}
}

type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *appErrors.Error   `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type publicServiceMock struct {
	period       *dto.PublicPeriod
	periodErr    error
	submitResp   *dto.ProcedureResponse
	updateResp   *dto.ProcedureResponse
	lookupResp   *dto.RegistrationLookup
	lastPeriodID string
	lastPhone    string
	lastRequest  dto.RegistrationRequest
}

func (m *publicServiceMock) Public(ctx context.Context, id string) (*dto.PublicPeriod, error) {
	m.lastPeriodID = id
	return m.period, m.periodErr
}

func (m *publicServiceMock) Grid(ctx context.Context, periodID string) (*dto.SlotGrid, error) {
	return &dto.SlotGrid{Period: *m.period, Slots: []models.TimeSlot{}}, nil
}

func (m *publicServiceMock) Submit(ctx context.Context, periodID string, req dto.RegistrationRequest) (*dto.ProcedureResponse, error) {
	m.lastPeriodID = periodID
	m.lastRequest = req
	return m.submitResp, nil
}

func (m *publicServiceMock) Update(ctx context.Context, periodID string, req dto.RegistrationRequest) (*dto.ProcedureResponse, error) {
	m.lastRequest = req
	return m.updateResp, nil
}

func (m *publicServiceMock) Lookup(ctx context.Context, periodID, rawPhone string) (*dto.RegistrationLookup, error) {
	m.lastPhone = rawPhone
	if m.lookupResp == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no registration found for this phone number")
	}
	return m.lookupResp, nil
}

type eventSourceStub struct {
	events    []realtime.Event
	cancelled chan struct{}
}

func (s *eventSourceStub) Subscribe(periodID string) (<-chan realtime.Event, func()) {
	ch := make(chan realtime.Event, len(s.events))
	for _, evt := range s.events {
		ch <- evt
	}
	close(ch)
	return ch, func() { close(s.cancelled) }
}

func newPublicHandler(svc *publicServiceMock, events EventSource) *PublicHandler {
	return NewPublicHandler(svc, svc, svc, events, time.Second, nil)
}

func TestPublicSubmitReturnsProcedureOutcome(t *testing.T) {
	svc := &publicServiceMock{submitResp: &dto.ProcedureResponse{
		Error:     string(models.ProcedureSlotsFull),
		Message:   "one or more selected slots are full",
		FullSlots: []string{"slot-2"},
	}}
	body := `{"student_name":"Kim","school_name":"Seoul Elementary","grade":3,"guardian_phone":"010-1234-5678","selected_slot_ids":["slot-1","slot-2"]}`
	c, w := newTestContext(http.MethodPost, "/public/periods/"+testPeriod+"/registrations", body, nil, gin.Param{Key: "id", Value: testPeriod})

	newPublicHandler(svc, nil).Submit(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.ProcedureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "SLOTS_FULL", resp.Error)
	assert.Equal(t, []string{"slot-2"}, resp.FullSlots)
	assert.Equal(t, testPeriod, svc.lastPeriodID)
	assert.Equal(t, []string{"slot-1", "slot-2"}, svc.lastRequest.SelectedSlotIDs)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestPublicSubmitRejectsMalformedBody(t *testing.T) {
	c, w := newTestContext(http.MethodPost, "/public/periods/x/registrations", `{"student_name":`, nil, gin.Param{Key: "id", Value: testPeriod})

	newPublicHandler(&publicServiceMock{}, nil).Submit(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
}

func TestPublicLookupNotFound(t *testing.T) {
	svc := &publicServiceMock{}
	c, w := newTestContext(http.MethodGet, "/public/periods/x/registrations/lookup?phone=01012345678", "", nil, gin.Param{Key: "id", Value: testPeriod})

	newPublicHandler(svc, nil).Lookup(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "01012345678", svc.lastPhone)
}

func TestPublicPeriodNotFound(t *testing.T) {
	svc := &publicServiceMock{periodErr: appErrors.Clone(appErrors.ErrNotFound, "period not found")}
	c, w := newTestContext(http.MethodGet, "/public/periods/missing", "", nil, gin.Param{Key: "id", Value: "missing"})

	newPublicHandler(svc, nil).Period(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "missing", svc.lastPeriodID)
}

func TestPublicEventsStreamsUntilSubscriptionCloses(t *testing.T) {
	svc := &publicServiceMock{period: &dto.PublicPeriod{ID: testPeriod}}
	source := &eventSourceStub{
		events:    []realtime.Event{realtime.NewEvent(realtime.KindSlotChanged, testPeriod, []string{"slot-1"}, nil)},
		cancelled: make(chan struct{}),
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/public/periods/:id/events", newPublicHandler(svc, source).Events)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/public/periods/" + testPeriod + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var kinds []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "event:") {
			kinds = append(kinds, strings.TrimPrefix(line, "event:"))
		}
	}
	assert.Equal(t, []string{"ready", "slot_changed"}, kinds)

	select {
	case <-source.cancelled:
	case <-time.After(time.Second):
		t.Fatal("subscription was not cancelled")
	}
}

func TestPublicEventsOverWebsocket(t *testing.T) {
	svc := &publicServiceMock{period: &dto.PublicPeriod{ID: testPeriod}}
	source := &eventSourceStub{
		events:    []realtime.Event{realtime.NewEvent(realtime.KindSlotChanged, testPeriod, []string{"slot-1"}, nil)},
		cancelled: make(chan struct{}),
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/public/periods/:id/events", newPublicHandler(svc, source).Events)
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/public/periods/" + testPeriod + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var ready, changed realtime.Event
	require.NoError(t, conn.ReadJSON(&ready))
	assert.Equal(t, realtime.KindReady, ready.Kind)
	assert.Equal(t, testPeriod, ready.PeriodID)
	require.NoError(t, conn.ReadJSON(&changed))
	assert.Equal(t, realtime.KindSlotChanged, changed.Kind)
	assert.Equal(t, []string{"slot-1"}, changed.SlotIDs)

	var next realtime.Event
	err = conn.ReadJSON(&next)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)

	select {
	case <-source.cancelled:
	case <-time.After(time.Second):
		t.Fatal("subscription was not cancelled")
	}
}

func TestPublicEventsWebsocketUnknownPeriod(t *testing.T) {
	svc := &publicServiceMock{periodErr: appErrors.Clone(appErrors.ErrNotFound, "period not found")}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/public/periods/:id/events", newPublicHandler(svc, &eventSourceStub{cancelled: make(chan struct{})}).Events)
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/public/periods/missing/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type periodServiceMock struct {
	created   dto.PeriodRequest
	academyID string
	deleteErr error
}

func (m *periodServiceMock) List(ctx context.Context, academyID string) ([]dto.PeriodResponse, error) {
	m.academyID = academyID
	return []dto.PeriodResponse{}, nil
}

func (m *periodServiceMock) Get(ctx context.Context, academyID, id string) (*dto.PeriodResponse, error) {
	return &dto.PeriodResponse{Period: models.Period{ID: id}}, nil
}

func (m *periodServiceMock) Create(ctx context.Context, academyID string, req dto.PeriodRequest) (*dto.PeriodResponse, error) {
	m.academyID = academyID
	m.created = req
	return &dto.PeriodResponse{Period: models.Period{ID: testPeriod, Name: req.Name}}, nil
}

func (m *periodServiceMock) Update(ctx context.Context, academyID, id string, req dto.PeriodRequest) (*dto.PeriodResponse, error) {
	return &dto.PeriodResponse{Period: models.Period{ID: id, Name: req.Name}}, nil
}

func (m *periodServiceMock) SetActive(ctx context.Context, academyID, id string, req dto.SetPeriodActiveRequest) (*dto.PeriodResponse, error) {
	return &dto.PeriodResponse{Period: models.Period{ID: id, IsActive: *req.Active}}, nil
}

func (m *periodServiceMock) Delete(ctx context.Context, academyID, id string) error {
	return m.deleteErr
}

func TestPeriodHandlerCreateScopesToAcademy(t *testing.T) {
	svc := &periodServiceMock{}
	c, w := newTestContext(http.MethodPost, "/admin/periods", `{"name":"Spring","open_datetime":"2026-03-02T09:00:00Z"}`, adminClaims())

	NewPeriodHandler(svc).Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, testAcademy, svc.academyID)
	assert.Equal(t, "Spring", svc.created.Name)
}

func TestPeriodHandlerRequiresClaims(t *testing.T) {
	svc := &periodServiceMock{}
	c, w := newTestContext(http.MethodGet, "/admin/periods", "", nil)

	NewPeriodHandler(svc).List(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.academyID)
}

func TestPeriodHandlerDelete(t *testing.T) {
	c, w := newTestContext(http.MethodDelete, "/admin/periods/"+testPeriod, "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewPeriodHandler(&periodServiceMock{}).Delete(c)
	assert.Equal(t, http.StatusNoContent, w.Code)

	c, w = newTestContext(http.MethodDelete, "/admin/periods/"+testPeriod, "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewPeriodHandler(&periodServiceMock{deleteErr: appErrors.ErrNotFound}).Delete(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type slotServiceMock struct {
	dayCalled models.Weekday
	allCalled bool
	force     bool
	err       error
}

func (m *slotServiceMock) List(ctx context.Context, academyID, periodID string) ([]models.TimeSlot, error) {
	return []models.TimeSlot{}, nil
}

func (m *slotServiceMock) Generate(ctx context.Context, academyID, periodID string, req dto.GenerateSlotsRequest) ([]models.TimeSlot, error) {
	return []models.TimeSlot{{PeriodID: periodID, DayOfWeek: req.Days[0], StartTime: req.StartTime}}, nil
}

func (m *slotServiceMock) AddSingle(ctx context.Context, academyID, periodID string, req dto.AddSlotRequest) (*models.TimeSlot, error) {
	return &models.TimeSlot{PeriodID: periodID, DayOfWeek: req.Day}, nil
}

func (m *slotServiceMock) UpdateCapacity(ctx context.Context, academyID, slotID string, req dto.UpdateCapacityRequest) (*dto.CapacityUpdateResponse, error) {
	return &dto.CapacityUpdateResponse{Slot: models.TimeSlot{ID: slotID, Capacity: req.Capacity}}, nil
}

func (m *slotServiceMock) Delete(ctx context.Context, academyID, periodID, slotID string, force bool) (*models.SlotDeletion, error) {
	m.force = force
	return &models.SlotDeletion{Deleted: []string{slotID}}, m.err
}

func (m *slotServiceMock) DeleteDay(ctx context.Context, academyID, periodID string, day models.Weekday, force bool) (*models.SlotDeletion, error) {
	m.dayCalled = day
	m.force = force
	return &models.SlotDeletion{}, nil
}

func (m *slotServiceMock) DeleteAll(ctx context.Context, academyID, periodID string, force bool) (*models.SlotDeletion, error) {
	m.allCalled = true
	m.force = force
	return &models.SlotDeletion{}, nil
}

func TestSlotHandlerDeleteManyRoutesByDay(t *testing.T) {
	svc := &slotServiceMock{}
	c, w := newTestContext(http.MethodDelete, "/admin/periods/p/slots?day=wed&force=true", "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewSlotHandler(svc).DeleteMany(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Wednesday, svc.dayCalled)
	assert.True(t, svc.force)
	assert.False(t, svc.allCalled)

	svc = &slotServiceMock{}
	c, _ = newTestContext(http.MethodDelete, "/admin/periods/p/slots", "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewSlotHandler(svc).DeleteMany(c)
	assert.True(t, svc.allCalled)
	assert.False(t, svc.force)
}

func TestSlotHandlerRejectsBadForceFlag(t *testing.T) {
	svc := &slotServiceMock{}
	c, w := newTestContext(http.MethodDelete, "/admin/periods/p/slots/s?force=maybe", "", adminClaims(),
		gin.Param{Key: "id", Value: testPeriod}, gin.Param{Key: "slotId", Value: "s"})
	NewSlotHandler(svc).Delete(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSlotHandlerDeleteOccupiedCarriesSlotIDs(t *testing.T) {
	svc := &slotServiceMock{err: appErrors.WithDetails(appErrors.ErrSlotOccupied, "1 slot has registrations", map[string][]string{"occupied_slot_ids": {"s"}})}
	c, w := newTestContext(http.MethodDelete, "/admin/periods/p/slots/s", "", adminClaims(),
		gin.Param{Key: "id", Value: testPeriod}, gin.Param{Key: "slotId", Value: "s"})
	NewSlotHandler(svc).Delete(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	assert.Equal(t, "SLOT_OCCUPIED", env.Error.Code)
	details, ok := env.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"s"}, details["occupied_slot_ids"])
}

func TestSlotHandlerGenerate(t *testing.T) {
	body := `{"days":["mon"],"start_time":"09:00","end_time":"12:00"}`
	c, w := newTestContext(http.MethodPost, "/admin/periods/p/slots/generate", body, adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewSlotHandler(&slotServiceMock{}).Generate(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var slots []models.TimeSlot
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &slots))
	require.Len(t, slots, 1)
	assert.Equal(t, models.Monday, slots[0].DayOfWeek)
}

type registrationServiceMock struct {
	query     dto.RegistrationListQuery
	unmask    bool
	csv       []byte
	exportErr error
}

func (m *registrationServiceMock) List(ctx context.Context, academyID, periodID string, query dto.RegistrationListQuery) ([]dto.RegistrationView, *models.Pagination, error) {
	m.query = query
	return []dto.RegistrationView{}, &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11}, nil
}

func (m *registrationServiceMock) Detail(ctx context.Context, academyID, id string) (*dto.RegistrationView, error) {
	return nil, appErrors.ErrNotFound
}

func (m *registrationServiceMock) Timetable(ctx context.Context, academyID, periodID string, unmask bool) ([]models.TimetableEntry, error) {
	m.unmask = unmask
	return []models.TimetableEntry{}, nil
}

func (m *registrationServiceMock) Cancel(ctx context.Context, academyID, id string) (*dto.ProcedureResponse, error) {
	return &dto.ProcedureResponse{Success: true}, nil
}

func (m *registrationServiceMock) Reset(ctx context.Context, academyID, periodID string) (*dto.ResetResult, error) {
	return &dto.ResetResult{PeriodID: periodID, CancelledCount: 3}, nil
}

func (m *registrationServiceMock) ExportCSV(ctx context.Context, academyID, periodID string) ([]byte, string, error) {
	return m.csv, "registrations-5f0c6a1e-20260302.csv", m.exportErr
}

func (m *registrationServiceMock) ExportPDF(ctx context.Context, academyID, periodID string) ([]byte, string, error) {
	return []byte("%PDF-1.3"), "timetable-5f0c6a1e-20260302.pdf", nil
}

func TestRegistrationHandlerListBindsQuery(t *testing.T) {
	svc := &registrationServiceMock{}
	c, w := newTestContext(http.MethodGet, "/admin/periods/p/registrations?status=pending&page=2&page_size=10&unmask=true", "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewRegistrationHandler(svc).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", svc.query.Status)
	assert.Equal(t, 2, svc.query.Page)
	assert.True(t, svc.query.Unmask)
	assert.Equal(t, 11, decode(t, w).Pagination.TotalCount)
}

func TestRegistrationHandlerTimetableUnmask(t *testing.T) {
	svc := &registrationServiceMock{}
	c, w := newTestContext(http.MethodGet, "/admin/periods/p/timetable?unmask=1", "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewRegistrationHandler(svc).Timetable(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.unmask)
}

func TestRegistrationHandlerExport(t *testing.T) {
	svc := &registrationServiceMock{csv: []byte("\xEF\xBB\xBFOrder\n")}
	c, w := newTestContext(http.MethodGet, "/admin/periods/p/export", "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewRegistrationHandler(svc).Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "registrations-5f0c6a1e-20260302.csv")
	assert.Equal(t, svc.csv, w.Body.Bytes())

	c, w = newTestContext(http.MethodGet, "/admin/periods/p/export?format=pdf", "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewRegistrationHandler(svc).Export(c)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	c, w = newTestContext(http.MethodGet, "/admin/periods/p/export?format=xlsx", "", adminClaims(), gin.Param{Key: "id", Value: testPeriod})
	NewRegistrationHandler(svc).Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationHandlerDetailNotFound(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/admin/registrations/r", "", adminClaims(), gin.Param{Key: "regId", Value: "r"})
	NewRegistrationHandler(&registrationServiceMock{}).Detail(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	healthy := NewMetricsHandler(nil, map[string]Pinger{"postgres": func(context.Context) error { return nil }}, nil)
	c, w := newTestContext(http.MethodGet, "/ready", "", nil)
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	broken := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, nil)
	c, w = newTestContext(http.MethodGet, "/ready", "", nil)
	broken.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"down"`)
}

type issuerStub struct{ err error }

func (s issuerStub) IssueToken(req models.TokenRequest) (*models.TokenResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.TokenResponse{AccessToken: "signed", TokenType: "Bearer"}, nil
}

func TestAuthHandlerToken(t *testing.T) {
	body := `{"academy_id":"academy-1","user_id":"u","bootstrap_key":"k"}`
	c, w := newTestContext(http.MethodPost, "/auth/token", body, nil)
	NewAuthHandler(issuerStub{}).Token(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"signed"`)

	c, w = newTestContext(http.MethodPost, "/auth/token", body, nil)
	NewAuthHandler(issuerStub{err: appErrors.ErrInvalidCredentials}).Token(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
