package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

type periodRepository interface {
	FindByID(ctx context.Context, id string) (*models.Period, error)
	ListByAcademy(ctx context.Context, academyID string) ([]models.Period, error)
	Create(ctx context.Context, period *models.Period) error
	Update(ctx context.Context, period *models.Period) error
	SetActive(ctx context.Context, id, academyID string, active bool) error
	Delete(ctx context.Context, id, academyID string) error
}

// PeriodService manages registration periods for an academy.
type PeriodService struct {
	repo      periodRepository
	validator *validator.Validate
	cache     *CacheService
	logger    *zap.Logger
	now       func() time.Time
}

// NewPeriodService constructs the service.
func NewPeriodService(repo periodRepository, validate *validator.Validate, cache *CacheService, logger *zap.Logger) *PeriodService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, validator: validate, cache: cache, logger: logger, now: time.Now}
}

// List returns the academy's periods with their current state.
func (s *PeriodService) List(ctx context.Context, academyID string) ([]dto.PeriodResponse, error) {
	periods, err := s.repo.ListByAcademy(ctx, academyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
	}
	now := s.now().UTC()
	out := make([]dto.PeriodResponse, 0, len(periods))
	for i := range periods {
		out = append(out, s.decorate(&periods[i], now))
	}
	return out, nil
}

// Get returns one period owned by the academy.
func (s *PeriodService) Get(ctx context.Context, academyID, id string) (*dto.PeriodResponse, error) {
	period, err := s.Owned(ctx, academyID, id)
	if err != nil {
		return nil, err
	}
	resp := s.decorate(period, s.now().UTC())
	return &resp, nil
}

// Owned loads a period and checks it belongs to academyID. Foreign periods read as
// missing.
func (s *PeriodService) Owned(ctx context.Context, academyID, id string) (*models.Period, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "period not found", "failed to load period")
	}
	if period.AcademyID != academyID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
	}
	return period, nil
}

// Public returns the guardian view of a period. Inactive periods are returned with
// state "error" so the page can explain itself.
func (s *PeriodService) Public(ctx context.Context, id string) (*dto.PublicPeriod, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "period not found", "failed to load period")
	}
	public := dto.NewPublicPeriod(period, s.now().UTC())
	return &public, nil
}

// Create validates and stores a new period.
func (s *PeriodService) Create(ctx context.Context, academyID string, req dto.PeriodRequest) (*dto.PeriodResponse, error) {
	period := &models.Period{AcademyID: academyID, IsActive: true}
	if err := s.apply(period, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create period")
	}
	s.logger.Info("period created", zap.String("period_id", period.ID), zap.String("academy_id", academyID))
	resp := s.decorate(period, s.now().UTC())
	return &resp, nil
}

// Update replaces the editable fields of a period.
func (s *PeriodService) Update(ctx context.Context, academyID, id string, req dto.PeriodRequest) (*dto.PeriodResponse, error) {
	period, err := s.Owned(ctx, academyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(period, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, period); err != nil {
		return nil, repoError(err, "period not found", "failed to update period")
	}
	resp := s.decorate(period, s.now().UTC())
	return &resp, nil
}

// SetActive opens or suspends registration for a period.
func (s *PeriodService) SetActive(ctx context.Context, academyID, id string, req dto.SetPeriodActiveRequest) (*dto.PeriodResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid toggle payload")
	}
	if err := s.repo.SetActive(ctx, id, academyID, *req.Active); err != nil {
		return nil, repoError(err, "period not found", "failed to toggle period")
	}
	s.logger.Info("period toggled", zap.String("period_id", id), zap.Bool("active", *req.Active))
	return s.Get(ctx, academyID, id)
}

// Delete removes a period together with its slots and registrations.
func (s *PeriodService) Delete(ctx context.Context, academyID, id string) error {
	if err := s.repo.Delete(ctx, id, academyID); err != nil {
		return repoError(err, "period not found", "failed to delete period")
	}
	s.cache.Invalidate(ctx, SlotGridCacheKey(id))
	s.logger.Info("period deleted", zap.String("period_id", id), zap.String("academy_id", academyID))
	return nil
}

func (s *PeriodService) apply(period *models.Period, req dto.PeriodRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	if req.CloseAt != nil && !req.CloseAt.After(req.OpenAt) {
		return appErrors.Clone(appErrors.ErrValidation, "close_datetime must be after open_datetime")
	}
	period.Name = req.Name
	period.Description = req.Description
	period.OpenAt = req.OpenAt.UTC()
	period.CloseAt = nil
	if req.CloseAt != nil {
		closeAt := req.CloseAt.UTC()
		period.CloseAt = &closeAt
	}
	period.DefaultCapacity = orDefault(req.DefaultCapacity, models.DefaultSlotCapacity)
	period.SlotIntervalMinutes = orDefault(req.SlotIntervalMinutes, models.DefaultSlotIntervalMinutes)
	period.MaxWeeklyHours = orDefault(req.MaxWeeklyHours, models.DefaultMaxWeeklyHours)
	if req.IsActive != nil {
		period.IsActive = *req.IsActive
	}
	return nil
}

func (s *PeriodService) decorate(period *models.Period, now time.Time) dto.PeriodResponse {
	return dto.PeriodResponse{Period: *period, State: period.StateAt(now), ServerTime: now}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// repoError maps sql.ErrNoRows and malformed ids to NOT_FOUND and everything else to
// INTERNAL_ERROR.
func repoError(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) || invalidID(err) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

// invalidID reports a postgres invalid_text_representation error, raised when a path
// id is not a uuid.
func invalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}
