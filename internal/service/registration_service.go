package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/export"
	"github.com/noah-isme/course-registration-api/pkg/realtime"
)

const exportTimeLayout = "2006-01-02 15:04:05"

type registrationRepository interface {
	Submit(ctx context.Context, params repository.SubmitParams) (*models.ProcedureResult, error)
	Update(ctx context.Context, params repository.UpdateParams) (*models.ProcedureResult, error)
	Cancel(ctx context.Context, registrationID, academyID string, now time.Time) (*models.ProcedureResult, error)
	ResetPeriod(ctx context.Context, periodID, academyID string, now time.Time) (int64, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindActiveByPhone(ctx context.Context, periodID, phone string) (*models.Registration, error)
	ListActiveByPeriod(ctx context.Context, periodID string) ([]models.Registration, error)
}

type slotLister interface {
	ListByPeriod(ctx context.Context, periodID string) ([]models.TimeSlot, error)
}

// RegistrationServiceConfig tunes the registration service.
type RegistrationServiceConfig struct {
	// InitialStatus is the status of a fresh registration: pending or confirmed.
	InitialStatus models.RegistrationStatus
	// Location renders timestamps in exports. Nil means UTC.
	Location *time.Location
}

// RegistrationService runs the public registration procedures and the admin views of
// the registration ledger. Side effects after a commit (cache, events, notifications)
// are best effort and never change the outcome returned to the caller.
type RegistrationService struct {
	repo      registrationRepository
	slots     slotLister
	periods   *PeriodService
	validator *validator.Validate
	cache     *CacheService
	events    realtime.Publisher
	notifier  Notifier
	metrics   *MetricsService
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
	cfg       RegistrationServiceConfig
	now       func() time.Time
}

// NewRegistrationService constructs the service. cache, events, notifier and metrics may be nil.
func NewRegistrationService(
	repo registrationRepository,
	slots slotLister,
	periods *PeriodService,
	validate *validator.Validate,
	cache *CacheService,
	events realtime.Publisher,
	notifier Notifier,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg RegistrationServiceConfig,
) *RegistrationService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitialStatus != models.RegistrationConfirmed {
		cfg.InitialStatus = models.RegistrationPending
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &RegistrationService{
		repo:      repo,
		slots:     slots,
		periods:   periods,
		validator: validate,
		cache:     cache,
		events:    events,
		notifier:  notifier,
		metrics:   metrics,
		csv:       export.NewCSVExporter(true),
		pdf:       export.NewPDFExporter(map[string]float64{"Students": 4, "Day": 0.7, "Seats": 0.8}),
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Submit registers a new guardian for the period.
func (s *RegistrationService) Submit(ctx context.Context, periodID string, req dto.RegistrationRequest) (*dto.ProcedureResponse, error) {
	phone, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	result, err := s.repo.Submit(ctx, repository.SubmitParams{
		PeriodID:      periodID,
		AcademyID:     req.AcademyID,
		Student:       models.Student{Name: strings.TrimSpace(req.StudentName), School: strings.TrimSpace(req.SchoolName), Grade: req.Grade},
		GuardianPhone: phone,
		SlotIDs:       req.SelectedSlotIDs,
		Status:        s.cfg.InitialStatus,
		Now:           s.now().UTC(),
	})
	s.observe("submit", result, err, started)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit registration")
	}
	if result.OK() {
		reg := result.Registration
		s.committed(ctx, periodID, result, Notification{
			Title: "New course registration",
			Body:  fmt.Sprintf("%s (%s, grade %d) registered for %d slot(s)", reg.StudentName, reg.SchoolName, reg.Grade, len(reg.SelectedSlotIDs)),
			Data:  notificationData("registration_submitted", reg),
		})
	}
	resp := dto.NewProcedureResponse(result)
	return &resp, nil
}

// Update changes the slot set of the guardian's existing registration.
func (s *RegistrationService) Update(ctx context.Context, periodID string, req dto.RegistrationRequest) (*dto.ProcedureResponse, error) {
	phone, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	result, err := s.repo.Update(ctx, repository.UpdateParams{
		PeriodID:      periodID,
		AcademyID:     req.AcademyID,
		Student:       models.Student{Name: strings.TrimSpace(req.StudentName), School: strings.TrimSpace(req.SchoolName), Grade: req.Grade},
		GuardianPhone: phone,
		SlotIDs:       req.SelectedSlotIDs,
		Now:           s.now().UTC(),
	})
	s.observe("update", result, err, started)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration")
	}
	if result.OK() {
		reg := result.Registration
		s.committed(ctx, periodID, result, Notification{
			Title: "Course registration updated",
			Body:  fmt.Sprintf("%s changed to %d slot(s)", reg.StudentName, len(reg.SelectedSlotIDs)),
			Data:  notificationData("registration_updated", reg),
		})
	}
	resp := dto.NewProcedureResponse(result)
	return &resp, nil
}

// Lookup finds the guardian's active registration in a period.
func (s *RegistrationService) Lookup(ctx context.Context, periodID, rawPhone string) (*dto.RegistrationLookup, error) {
	phone, ok := models.NormalizePhone(rawPhone)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid phone number")
	}
	reg, err := s.repo.FindActiveByPhone(ctx, periodID, phone)
	if err != nil {
		return nil, repoError(err, "no registration found for this phone number", "failed to look up registration")
	}
	if reg == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no registration found for this phone number")
	}
	lookup := dto.NewRegistrationLookup(reg)
	return &lookup, nil
}

// List returns a page of the period's registrations in submission order.
func (s *RegistrationService) List(ctx context.Context, academyID, periodID string, query dto.RegistrationListQuery) ([]dto.RegistrationView, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid list query")
	}
	if _, err := s.periods.Owned(ctx, academyID, periodID); err != nil {
		return nil, nil, err
	}
	filter := models.RegistrationFilter{PeriodID: periodID, Page: query.Page, PageSize: query.PageSize}
	if query.Status != "" {
		status := models.RegistrationStatus(query.Status)
		filter.Status = &status
	}
	registrations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	labels, err := s.slotLabels(ctx, periodID)
	if err != nil {
		return nil, nil, err
	}

	views := make([]dto.RegistrationView, 0, len(registrations))
	for i := range registrations {
		views = append(views, view(registrations[i], labels, query.Unmask))
	}
	page, size := models.NormalizePage(query.Page, query.PageSize)
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Detail returns one registration of the academy with its phone unmasked.
func (s *RegistrationService) Detail(ctx context.Context, academyID, id string) (*dto.RegistrationView, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "registration not found", "failed to load registration")
	}
	if reg.AcademyID != academyID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	labels, err := s.slotLabels(ctx, reg.PeriodID)
	if err != nil {
		return nil, err
	}
	v := view(*reg, labels, true)
	return &v, nil
}

// Timetable maps every slot of the period to the active registrations holding it.
func (s *RegistrationService) Timetable(ctx context.Context, academyID, periodID string, unmask bool) ([]models.TimetableEntry, error) {
	if _, err := s.periods.Owned(ctx, academyID, periodID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByPeriod(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	registrations, err := s.repo.ListActiveByPeriod(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return buildTimetable(slots, registrations, unmask), nil
}

// Cancel releases the seats of a registration. Cancelling twice reports NOT_FOUND.
func (s *RegistrationService) Cancel(ctx context.Context, academyID, id string) (*dto.ProcedureResponse, error) {
	started := time.Now()
	result, err := s.repo.Cancel(ctx, id, academyID, s.now().UTC())
	s.observe("cancel", result, err, started)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}
	if result.OK() {
		reg := result.Registration
		s.committed(ctx, reg.PeriodID, result, Notification{
			Title: "Course registration cancelled",
			Body:  fmt.Sprintf("%s released %d slot(s)", reg.StudentName, len(reg.SelectedSlotIDs)),
			Data:  notificationData("registration_cancelled", reg),
		})
	}
	resp := dto.NewProcedureResponse(result)
	return &resp, nil
}

// Reset cancels every active registration of the period and zeroes all slot counts.
// Cancelled rows stay in the ledger.
func (s *RegistrationService) Reset(ctx context.Context, academyID, periodID string) (*dto.ResetResult, error) {
	now := s.now().UTC()
	started := time.Now()
	cancelled, err := s.repo.ResetPeriod(ctx, periodID, academyID, now)
	label := "ok"
	if err != nil {
		label = "error"
	}
	s.metrics.ObserveProcedure("reset", label, time.Since(started))
	if err != nil {
		return nil, repoError(err, "period not found", "failed to reset period")
	}

	s.logger.Info("period reset", zap.String("period_id", periodID), zap.Int64("cancelled", cancelled))
	s.cache.Invalidate(ctx, SlotGridCacheKey(periodID))
	s.publish(ctx, realtime.NewEvent(realtime.KindSlotChanged, periodID, nil, nil))
	s.publish(ctx, realtime.NewEvent(realtime.KindRegistrationChanged, periodID, nil, nil))
	return &dto.ResetResult{PeriodID: periodID, CancelledCount: cancelled, ResetAt: now}, nil
}

// ExportCSV renders every registration of the period, cancelled ones included.
func (s *RegistrationService) ExportCSV(ctx context.Context, academyID, periodID string) ([]byte, string, error) {
	period, err := s.periods.Owned(ctx, academyID, periodID)
	if err != nil {
		return nil, "", err
	}
	labels, err := s.slotLabels(ctx, periodID)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{Headers: []string{"Order", "Submitted At", "Student", "School", "Grade", "Phone", "Status", "Slots"}}
	for page := 1; ; page++ {
		registrations, total, err := s.repo.List(ctx, models.RegistrationFilter{PeriodID: periodID, Page: page, PageSize: 500})
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
		}
		for _, reg := range registrations {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Order":        strconv.Itoa(reg.SubmissionOrder),
				"Submitted At": reg.SubmittedAt.In(s.cfg.Location).Format(exportTimeLayout),
				"Student":      reg.StudentName,
				"School":       reg.SchoolName,
				"Grade":        strconv.Itoa(reg.Grade),
				"Phone":        reg.GuardianPhone,
				"Status":       string(reg.Status),
				"Slots":        strings.Join(labelsFor(reg.SelectedSlotIDs, labels), "; "),
			})
		}
		if len(registrations) == 0 || len(dataset.Rows) >= total {
			break
		}
	}

	content, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return content, exportFilename(period, "registrations", "csv"), nil
}

// ExportPDF renders the timetable of active registrations.
func (s *RegistrationService) ExportPDF(ctx context.Context, academyID, periodID string) ([]byte, string, error) {
	period, err := s.periods.Owned(ctx, academyID, periodID)
	if err != nil {
		return nil, "", err
	}
	entries, err := s.Timetable(ctx, academyID, periodID, false)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{Headers: []string{"Day", "Time", "Seats", "Students"}}
	for _, entry := range entries {
		names := make([]string, 0, len(entry.Registrants))
		for _, reg := range entry.Registrants {
			names = append(names, fmt.Sprintf("%s (G%d)", reg.StudentName, reg.Grade))
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Day":      strings.ToUpper(string(entry.Slot.DayOfWeek)),
			"Time":     entry.Slot.StartTime + "-" + entry.Slot.EndTime,
			"Seats":    fmt.Sprintf("%d/%d", entry.Slot.CurrentCount, entry.Slot.Capacity),
			"Students": strings.Join(names, ", "),
		})
	}

	content, err := s.pdf.Render(dataset, period.Name+" timetable")
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return content, exportFilename(period, "timetable", "pdf"), nil
}

func (s *RegistrationService) validateRequest(req dto.RegistrationRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	phone, ok := models.NormalizePhone(req.GuardianPhone)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid phone number")
	}
	return phone, nil
}

// committed runs the after-commit side effects of a successful procedure.
func (s *RegistrationService) committed(ctx context.Context, periodID string, result *models.ProcedureResult, n Notification) {
	s.cache.Invalidate(ctx, SlotGridCacheKey(periodID))
	if len(result.Slots) > 0 {
		s.publish(ctx, realtime.NewEvent(realtime.KindSlotChanged, periodID, slotIDs(result.Slots), result.Slots))
	}
	s.publish(ctx, realtime.NewEvent(realtime.KindRegistrationChanged, periodID, nil, nil))
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}

func (s *RegistrationService) publish(ctx context.Context, evt realtime.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("realtime publish failed", zap.String("kind", string(evt.Kind)), zap.String("period_id", evt.PeriodID), zap.Error(err))
	}
}

func (s *RegistrationService) observe(procedure string, result *models.ProcedureResult, err error, started time.Time) {
	label := "ok"
	switch {
	case err != nil:
		label = "error"
		s.logger.Error("registration procedure failed", zap.String("procedure", procedure), zap.Error(err))
	case result == nil:
		label = "error"
	case !result.OK():
		label = strings.ToLower(string(result.Code))
	}
	s.metrics.ObserveProcedure(procedure, label, time.Since(started))
}

func (s *RegistrationService) slotLabels(ctx context.Context, periodID string) (map[string]string, error) {
	slots, err := s.slots.ListByPeriod(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	labels := make(map[string]string, len(slots))
	for _, slot := range slots {
		labels[slot.ID] = slot.Label()
	}
	return labels, nil
}

func buildTimetable(slots []models.TimeSlot, registrations []models.Registration, unmask bool) []models.TimetableEntry {
	models.SortSlots(slots)
	entries := make([]models.TimetableEntry, len(slots))
	index := make(map[string]int, len(slots))
	for i, slot := range slots {
		entries[i] = models.TimetableEntry{Slot: slot, Registrants: []models.Registration{}}
		index[slot.ID] = i
	}
	for _, reg := range registrations {
		if !unmask {
			reg.GuardianPhone = models.MaskPhone(reg.GuardianPhone)
		}
		for _, id := range reg.SelectedSlotIDs {
			if i, ok := index[id]; ok {
				entries[i].Registrants = append(entries[i].Registrants, reg)
			}
		}
	}
	return entries
}

func view(reg models.Registration, labels map[string]string, unmask bool) dto.RegistrationView {
	if !unmask {
		reg.GuardianPhone = models.MaskPhone(reg.GuardianPhone)
	}
	if reg.SelectedSlotIDs == nil {
		reg.SelectedSlotIDs = []string{}
	}
	return dto.RegistrationView{Registration: reg, SlotLabels: labelsFor(reg.SelectedSlotIDs, labels)}
}

func labelsFor(ids []string, labels map[string]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if label, ok := labels[id]; ok {
			out = append(out, label)
		}
	}
	return out
}

func notificationData(kind string, reg *models.Registration) map[string]string {
	return map[string]string{
		"type":            kind,
		"registration_id": reg.ID,
		"period_id":       reg.PeriodID,
		"academy_id":      reg.AcademyID,
	}
}

func exportFilename(period *models.Period, kind, ext string) string {
	id := period.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s-%s.%s", kind, id, period.OpenAt.Format("20060102"), ext)
}
