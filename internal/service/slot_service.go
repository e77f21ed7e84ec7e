package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/realtime"
)

const lastMinuteOfDay = 23*60 + 59

type slotRepository interface {
	ListByPeriod(ctx context.Context, periodID string) ([]models.TimeSlot, error)
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
	InsertBatch(ctx context.Context, slots []models.TimeSlot) error
	UpdateCapacity(ctx context.Context, id string, capacity int) (*models.TimeSlot, error)
	Delete(ctx context.Context, params repository.DeleteSlotsParams) (*models.SlotDeletion, error)
}

// SlotService is the admin slot manager and the public slot grid reader.
type SlotService struct {
	repo      slotRepository
	periods   *PeriodService
	validator *validator.Validate
	cache     *CacheService
	events    realtime.Publisher
	logger    *zap.Logger
	cacheTTL  time.Duration
	now       func() time.Time
}

// SlotServiceConfig tunes the slot service.
type SlotServiceConfig struct {
	CacheTTL time.Duration
}

// NewSlotService constructs the service. events may be nil.
func NewSlotService(repo slotRepository, periods *PeriodService, validate *validator.Validate, cache *CacheService, events realtime.Publisher, logger *zap.Logger, cfg SlotServiceConfig) *SlotService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		repo:      repo,
		periods:   periods,
		validator: validate,
		cache:     cache,
		events:    events,
		logger:    logger,
		cacheTTL:  cfg.CacheTTL,
		now:       time.Now,
	}
}

// Grid returns the public slot grid. The slot list may come from cache; the period
// state is always computed fresh.
func (s *SlotService) Grid(ctx context.Context, periodID string) (*dto.SlotGrid, error) {
	period, err := s.periods.Public(ctx, periodID)
	if err != nil {
		return nil, err
	}
	slots, err := s.cachedSlots(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return &dto.SlotGrid{Period: *period, Slots: slots}, nil
}

// List returns the slots of an owned period straight from the database.
func (s *SlotService) List(ctx context.Context, academyID, periodID string) ([]models.TimeSlot, error) {
	if _, err := s.periods.Owned(ctx, academyID, periodID); err != nil {
		return nil, err
	}
	slots, err := s.repo.ListByPeriod(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	return nonNilSlots(slots), nil
}

// Generate creates one slot per weekday and interval step between start and end. A
// trailing step that would run past end is not created.
func (s *SlotService) Generate(ctx context.Context, academyID, periodID string, req dto.GenerateSlotsRequest) ([]models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot generation payload")
	}
	period, err := s.periods.Owned(ctx, academyID, periodID)
	if err != nil {
		return nil, err
	}
	start, _ := models.ParseClock(req.StartTime)
	end, _ := models.ParseClock(req.EndTime)
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	interval := orDefault(req.IntervalMinutes, period.SlotIntervalMinutes)
	capacity := orDefault(req.Capacity, period.DefaultCapacity)

	slots := make([]models.TimeSlot, 0)
	for _, day := range req.Days {
		for cur := start; cur+interval <= end; cur += interval {
			slots = append(slots, models.TimeSlot{
				PeriodID:  periodID,
				DayOfWeek: day,
				StartTime: models.FormatClock(cur),
				EndTime:   models.FormatClock(cur + interval),
				Capacity:  capacity,
			})
		}
	}
	if len(slots) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time range is shorter than one interval")
	}

	if err := s.repo.InsertBatch(ctx, slots); err != nil {
		return nil, slotWriteError(err, "failed to generate slots")
	}
	models.SortSlots(slots)
	s.logger.Info("slots generated", zap.String("period_id", periodID), zap.Int("count", len(slots)))
	s.changed(ctx, realtime.KindSlotAdded, periodID, slotIDs(slots), nil)
	return slots, nil
}

// AddSingle adds one slot lasting the period interval.
func (s *SlotService) AddSingle(ctx context.Context, academyID, periodID string, req dto.AddSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	period, err := s.periods.Owned(ctx, academyID, periodID)
	if err != nil {
		return nil, err
	}
	start, _ := models.ParseClock(req.StartTime)
	end := start + period.SlotIntervalMinutes
	if end > lastMinuteOfDay {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot would end after midnight")
	}
	slot := models.TimeSlot{
		PeriodID:  periodID,
		DayOfWeek: req.Day,
		StartTime: models.FormatClock(start),
		EndTime:   models.FormatClock(end),
		Capacity:  orDefault(req.Capacity, period.DefaultCapacity),
	}
	batch := []models.TimeSlot{slot}
	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		return nil, slotWriteError(err, "failed to add slot")
	}
	s.changed(ctx, realtime.KindSlotAdded, periodID, []string{batch[0].ID}, nil)
	return &batch[0], nil
}

// UpdateCapacity changes the seat count. A value below the current occupancy is applied
// and flagged with a warning; registrations are never evicted.
func (s *SlotService) UpdateCapacity(ctx context.Context, academyID, slotID string, req dto.UpdateCapacityRequest) (*dto.CapacityUpdateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capacity payload")
	}
	slot, err := s.repo.FindByID(ctx, slotID)
	if err != nil {
		return nil, repoError(err, "slot not found", "failed to load slot")
	}
	if _, err := s.periods.Owned(ctx, academyID, slot.PeriodID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	updated, err := s.repo.UpdateCapacity(ctx, slotID, req.Capacity)
	if err != nil {
		return nil, repoError(err, "slot not found", "failed to update capacity")
	}

	resp := &dto.CapacityUpdateResponse{Slot: *updated}
	if updated.CurrentCount > updated.Capacity {
		resp.Warning = &dto.CapacityWarning{
			CurrentCount: updated.CurrentCount,
			Capacity:     updated.Capacity,
			OverBy:       updated.CurrentCount - updated.Capacity,
		}
		s.logger.Warn("capacity set below occupancy",
			zap.String("slot_id", slotID),
			zap.Int("capacity", updated.Capacity),
			zap.Int("current_count", updated.CurrentCount))
	}
	s.changed(ctx, realtime.KindSlotChanged, updated.PeriodID, []string{slotID}, []models.TimeSlot{*updated})
	return resp, nil
}

// Delete removes one slot.
func (s *SlotService) Delete(ctx context.Context, academyID, periodID, slotID string, force bool) (*models.SlotDeletion, error) {
	return s.delete(ctx, academyID, repository.DeleteSlotsParams{PeriodID: periodID, SlotID: slotID, Force: force})
}

// DeleteDay removes every slot of one weekday.
func (s *SlotService) DeleteDay(ctx context.Context, academyID, periodID string, day models.Weekday, force bool) (*models.SlotDeletion, error) {
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown weekday %q", day))
	}
	return s.delete(ctx, academyID, repository.DeleteSlotsParams{PeriodID: periodID, Day: day, Force: force})
}

// DeleteAll removes every slot of the period.
func (s *SlotService) DeleteAll(ctx context.Context, academyID, periodID string, force bool) (*models.SlotDeletion, error) {
	return s.delete(ctx, academyID, repository.DeleteSlotsParams{PeriodID: periodID, Force: force})
}

func (s *SlotService) delete(ctx context.Context, academyID string, params repository.DeleteSlotsParams) (*models.SlotDeletion, error) {
	if _, err := s.periods.Owned(ctx, academyID, params.PeriodID); err != nil {
		return nil, err
	}
	params.Now = s.now().UTC()
	result, err := s.repo.Delete(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrSlotOccupied) {
			occupied := []string{}
			if result != nil {
				occupied = result.Occupied
			}
			return nil, appErrors.WithDetails(appErrors.ErrSlotOccupied,
				"slots with registrations can only be deleted with force=true",
				map[string]interface{}{"occupied_slot_ids": occupied})
		}
		return nil, repoError(err, "slot not found", "failed to delete slots")
	}
	if len(result.Deleted) == 0 {
		return result, nil
	}

	s.logger.Info("slots deleted",
		zap.String("period_id", params.PeriodID),
		zap.Int("deleted", len(result.Deleted)),
		zap.Bool("force", params.Force),
		zap.Int64("detached_registrations", result.DetachedRegistrations))
	s.changed(ctx, realtime.KindSlotRemoved, params.PeriodID, result.Deleted, nil)
	if result.DetachedRegistrations > 0 {
		s.publish(ctx, realtime.NewEvent(realtime.KindRegistrationChanged, params.PeriodID, result.Deleted, nil))
	}
	return result, nil
}

func (s *SlotService) cachedSlots(ctx context.Context, periodID string) ([]models.TimeSlot, error) {
	key := SlotGridCacheKey(periodID)
	var slots []models.TimeSlot
	if s.cache.Get(ctx, key, &slots) {
		return nonNilSlots(slots), nil
	}
	slots, err := s.repo.ListByPeriod(ctx, periodID)
	if err != nil {
		return nil, repoError(err, "period not found", "failed to list slots")
	}
	slots = nonNilSlots(slots)
	s.cache.Set(ctx, key, slots, s.cacheTTL)
	return slots, nil
}

// changed invalidates the grid cache and announces the change.
func (s *SlotService) changed(ctx context.Context, kind realtime.Kind, periodID string, ids []string, data interface{}) {
	s.cache.Invalidate(ctx, SlotGridCacheKey(periodID))
	s.publish(ctx, realtime.NewEvent(kind, periodID, ids, data))
}

func (s *SlotService) publish(ctx context.Context, evt realtime.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("realtime publish failed", zap.String("kind", string(evt.Kind)), zap.String("period_id", evt.PeriodID), zap.Error(err))
	}
}

func slotWriteError(err error, internal string) error {
	if errors.Is(err, repository.ErrSlotConflict) {
		return appErrors.Wrap(err, appErrors.ErrSlotConflict.Code, appErrors.ErrSlotConflict.Status, err.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func slotIDs(slots []models.TimeSlot) []string {
	ids := make([]string, len(slots))
	for i, slot := range slots {
		ids[i] = slot.ID
	}
	return ids
}

func nonNilSlots(slots []models.TimeSlot) []models.TimeSlot {
	if slots == nil {
		return []models.TimeSlot{}
	}
	return slots
}
