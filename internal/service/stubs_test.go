package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/realtime"
)

const (
	academyID = "academy-1"
	periodID  = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	slotOne   = "11111111-1111-4111-8111-111111111111"
	slotTwo   = "22222222-2222-4222-8222-222222222222"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func samplePeriod() *models.Period {
	return &models.Period{
		ID:                  periodID,
		AcademyID:           academyID,
		Name:                "Spring intake",
		OpenAt:              fixedNow.Add(-time.Hour),
		DefaultCapacity:     5,
		SlotIntervalMinutes: 30,
		MaxWeeklyHours:      5,
		IsActive:            true,
	}
}

type periodRepoStub struct {
	periods   map[string]*models.Period
	created   []*models.Period
	updated   []*models.Period
	activeSet map[string]bool
	deleteErr error
}

func newPeriodRepoStub(periods ...*models.Period) *periodRepoStub {
	stub := &periodRepoStub{periods: map[string]*models.Period{}, activeSet: map[string]bool{}}
	for _, p := range periods {
		stub.periods[p.ID] = p
	}
	return stub
}

func (s *periodRepoStub) FindByID(ctx context.Context, id string) (*models.Period, error) {
	if p, ok := s.periods[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *periodRepoStub) ListByAcademy(ctx context.Context, academy string) ([]models.Period, error) {
	var out []models.Period
	for _, p := range s.periods {
		if p.AcademyID == academy {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *periodRepoStub) Create(ctx context.Context, period *models.Period) error {
	period.ID = "cccccccc-cccc-4ccc-8ccc-cccccccccccc"
	s.created = append(s.created, period)
	s.periods[period.ID] = period
	return nil
}

func (s *periodRepoStub) Update(ctx context.Context, period *models.Period) error {
	s.updated = append(s.updated, period)
	return nil
}

func (s *periodRepoStub) SetActive(ctx context.Context, id, academy string, active bool) error {
	p, ok := s.periods[id]
	if !ok || p.AcademyID != academy {
		return sql.ErrNoRows
	}
	p.IsActive = active
	s.activeSet[id] = active
	return nil
}

func (s *periodRepoStub) Delete(ctx context.Context, id, academy string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if p, ok := s.periods[id]; !ok || p.AcademyID != academy {
		return sql.ErrNoRows
	}
	delete(s.periods, id)
	return nil
}

type slotRepoStub struct {
	slots       []models.TimeSlot
	inserted    [][]models.TimeSlot
	insertErr   error
	capacity    *models.TimeSlot
	deleteCalls []repository.DeleteSlotsParams
	deletion    *models.SlotDeletion
	deleteErr   error
	listCalls   int
}

func (s *slotRepoStub) ListByPeriod(ctx context.Context, period string) ([]models.TimeSlot, error) {
	s.listCalls++
	return append([]models.TimeSlot(nil), s.slots...), nil
}

func (s *slotRepoStub) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	for _, slot := range s.slots {
		if slot.ID == id {
			clone := slot
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *slotRepoStub) InsertBatch(ctx context.Context, slots []models.TimeSlot) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	for i := range slots {
		slots[i].ID = slots[i].Label()
	}
	s.inserted = append(s.inserted, slots)
	return nil
}

func (s *slotRepoStub) UpdateCapacity(ctx context.Context, id string, capacity int) (*models.TimeSlot, error) {
	slot, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	slot.Capacity = capacity
	s.capacity = slot
	return slot, nil
}

func (s *slotRepoStub) Delete(ctx context.Context, params repository.DeleteSlotsParams) (*models.SlotDeletion, error) {
	s.deleteCalls = append(s.deleteCalls, params)
	return s.deletion, s.deleteErr
}

type registrationRepoStub struct {
	submitResult *models.ProcedureResult
	submitErr    error
	submitted    []repository.SubmitParams
	updateResult *models.ProcedureResult
	updated      []repository.UpdateParams
	cancelResult *models.ProcedureResult
	resetCount   int64
	resetErr     error
	registered   []models.Registration
	byPhone      *models.Registration
	byPhoneErr   error
}

func (s *registrationRepoStub) Submit(ctx context.Context, params repository.SubmitParams) (*models.ProcedureResult, error) {
	s.submitted = append(s.submitted, params)
	return s.submitResult, s.submitErr
}

func (s *registrationRepoStub) Update(ctx context.Context, params repository.UpdateParams) (*models.ProcedureResult, error) {
	s.updated = append(s.updated, params)
	return s.updateResult, nil
}

func (s *registrationRepoStub) Cancel(ctx context.Context, id, academy string, now time.Time) (*models.ProcedureResult, error) {
	return s.cancelResult, nil
}

func (s *registrationRepoStub) ResetPeriod(ctx context.Context, period, academy string, now time.Time) (int64, error) {
	return s.resetCount, s.resetErr
}

func (s *registrationRepoStub) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= len(s.registered) {
		return nil, len(s.registered), nil
	}
	end := start + size
	if end > len(s.registered) {
		end = len(s.registered)
	}
	return s.registered[start:end], len(s.registered), nil
}

func (s *registrationRepoStub) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	for _, reg := range s.registered {
		if reg.ID == id {
			clone := reg
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *registrationRepoStub) FindActiveByPhone(ctx context.Context, period, phone string) (*models.Registration, error) {
	return s.byPhone, s.byPhoneErr
}

func (s *registrationRepoStub) ListActiveByPeriod(ctx context.Context, period string) ([]models.Registration, error) {
	var out []models.Registration
	for _, reg := range s.registered {
		if reg.Status.Active() {
			out = append(out, reg)
		}
	}
	return out, nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, evt realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *publisherStub) kinds() []realtime.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]realtime.Kind, len(p.events))
	for i, evt := range p.events {
		out[i] = evt.Kind
	}
	return out
}

type notifierStub struct {
	sent []Notification
}

func (n *notifierStub) Notify(ctx context.Context, notification Notification) {
	n.sent = append(n.sent, notification)
}

type cacheRepoStub struct {
	deleted []string
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (c *cacheRepoStub) Delete(ctx context.Context, keys ...string) error {
	c.deleted = append(c.deleted, keys...)
	return nil
}
