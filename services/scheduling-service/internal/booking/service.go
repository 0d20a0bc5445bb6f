package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetdesk/vetdesk/libs/auth"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/directory"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/model"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/outbox"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/reminder"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/schedule"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/storage"
)

// Ledger is the slice of the appointment repository the service needs.
type Ledger interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Insert(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	HasConflict(ctx context.Context, tx pgx.Tx, providerID string, start, end time.Time, excludeID string) (bool, error)
	UpdateSchedule(ctx context.Context, tx pgx.Tx, id string, start time.Time, durationMinutes int, reason string) error
	SetConfirmed(ctx context.Context, tx pgx.Tx, id string) error
	Cancel(ctx context.Context, tx pgx.Tx, id string, by model.Actor, reason string) (time.Time, error)
	Complete(ctx context.Context, tx pgx.Tx, id string, outcomeNotes, diagnosis, prescription string) error
	SetNoShow(ctx context.Context, tx pgx.Tx, id string) error
	ListBusy(ctx context.Context, providerID string, from, to time.Time) ([]schedule.Interval, error)
	List(ctx context.Context, q storage.ListQuery) ([]model.Appointment, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, ownerID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, ownerID, key, appointmentID string, statusCode int, response []byte) error
}

// EventWriter is satisfied by the outbox repository.
type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Requester identifies the authenticated caller of a lifecycle operation.
type Requester struct {
	ID   string
	Role string
}

func (r Requester) admin() bool { return r.Role == auth.RoleAdmin }

func (r Requester) actor() model.Actor {
	switch r.Role {
	case auth.RoleProvider:
		return model.ActorProvider
	case auth.RoleAdmin:
		return model.ActorAdmin
	}
	return model.ActorConsumer
}

const (
	DefaultCancellationCutoff = 2 * time.Hour
	DefaultSlotGranularity    = 30 * time.Minute

	minSlotGranularity = 5 * time.Minute
	maxSlotGranularity = 2 * time.Hour
)

// Service is the booking transaction: every mutation of the appointment
// ledger goes through here. Conflict checking and the write happen inside one
// transaction; the exclusion constraint on the appointments table backs the
// check under concurrency, so two overlapping requests for one provider can
// never both commit.
type Service struct {
	ledger    Ledger
	dir       directory.Directory
	events    EventWriter
	reminders *reminder.Scheduler
	logger    *slog.Logger
	cutoff    time.Duration
	nowFn     func() time.Time
}

func NewService(ledger Ledger, dir directory.Directory, events EventWriter, reminders *reminder.Scheduler, logger *slog.Logger, cutoff time.Duration) *Service {
	if cutoff <= 0 {
		cutoff = DefaultCancellationCutoff
	}
	return &Service{
		ledger:    ledger,
		dir:       dir,
		events:    events,
		reminders: reminders,
		logger:    logger,
		cutoff:    cutoff,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

type BookRequest struct {
	OwnerID         string
	ProviderID      string
	PatientID       string
	Start           time.Time
	DurationMinutes int
	Reason          string
	// IdempotencyKey, when set, makes retried requests return the
	// originally booked appointment instead of booking again.
	IdempotencyKey string
}

func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if req.OwnerID == "" {
		return model.Appointment{}, &ValidationError{Field: "owner_id", Rule: "required"}
	}
	if req.ProviderID == "" {
		return model.Appointment{}, &ValidationError{Field: "provider_id", Rule: "required"}
	}
	if req.PatientID == "" {
		return model.Appointment{}, &ValidationError{Field: "patient_id", Rule: "required"}
	}
	if err := validateDuration(req.DurationMinutes); err != nil {
		return model.Appointment{}, err
	}
	now := s.nowFn()
	if !req.Start.After(now) {
		return model.Appointment{}, &ValidationError{Field: "start_time", Rule: "must be in the future"}
	}

	provider, err := s.dir.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return model.Appointment{}, translateDirectoryErr(err, "provider", req.ProviderID)
	}
	if !provider.Bookable() {
		return model.Appointment{}, &ValidationError{Field: "provider_id", Rule: "provider is not accepting appointments"}
	}

	patient, err := s.dir.GetPatient(ctx, req.PatientID)
	if err != nil {
		return model.Appointment{}, translateDirectoryErr(err, "patient", req.PatientID)
	}
	if patient.OwnerID != req.OwnerID {
		return model.Appointment{}, &AuthorizationError{Reason: "patient does not belong to requester"}
	}

	end := req.Start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	if err := s.checkWithinWindow(ctx, req.ProviderID, req.Start, end); err != nil {
		return model.Appointment{}, err
	}

	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.IdempotencyKey != "" {
		rec, seen, err := s.ledger.LockIdempotencyKey(ctx, tx, req.OwnerID, req.IdempotencyKey)
		if err != nil {
			return model.Appointment{}, err
		}
		if seen && rec.AppointmentID != "" {
			appt, err := s.ledger.Get(ctx, rec.AppointmentID)
			if err != nil {
				return model.Appointment{}, err
			}
			return appt, tx.Commit(ctx)
		}
	}

	// Pre-check gives a clean error before touching the table; the exclusion
	// constraint remains the authority if another booking commits in between.
	conflict, err := s.ledger.HasConflict(ctx, tx, req.ProviderID, req.Start, end, "")
	if err != nil {
		return model.Appointment{}, err
	}
	if conflict {
		return model.Appointment{}, ErrConflict
	}

	appt := model.Appointment{
		OwnerID:         req.OwnerID,
		ProviderID:      req.ProviderID,
		PatientID:       req.PatientID,
		StartTime:       req.Start,
		DurationMinutes: req.DurationMinutes,
		Status:          model.StatusPending,
		Reason:          req.Reason,
		Fee:             provider.ConsultationFee,
		CreatedAt:       now,
	}
	if _, err := s.ledger.Insert(ctx, tx, &appt); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, err
	}

	if err := s.emit(ctx, tx, outbox.EventAppointmentBooked, appt); err != nil {
		return model.Appointment{}, err
	}
	s.reminders.Schedule(ctx, tx, appt)

	if req.IdempotencyKey != "" {
		if err := s.ledger.FinalizeIdempotency(ctx, tx, req.OwnerID, req.IdempotencyKey, appt.ID, 0, nil); err != nil {
			return model.Appointment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, err
	}
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"start_time", appt.StartTime.UTC().Format(time.RFC3339),
	)
	return appt, nil
}

type UpdateRequest struct {
	ID          string
	Requester   Requester
	NewStart    *time.Time
	NewDuration *int
	Reason      *string
}

func (s *Service) Update(ctx context.Context, req UpdateRequest) (model.Appointment, error) {
	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.getLocked(ctx, tx, req.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status.Terminal() {
		return model.Appointment{}, &IneligibleTransitionError{From: appt.Status, Reason: "appointment is closed"}
	}
	if !req.Requester.admin() && req.Requester.ID != appt.OwnerID {
		return model.Appointment{}, &AuthorizationError{Reason: "only the owner or an admin may update"}
	}

	start := appt.StartTime
	duration := appt.DurationMinutes
	reason := appt.Reason
	if req.NewStart != nil {
		start = *req.NewStart
	}
	if req.NewDuration != nil {
		duration = *req.NewDuration
	}
	if req.Reason != nil {
		reason = *req.Reason
	}

	timeChanged := req.NewStart != nil || req.NewDuration != nil
	if timeChanged {
		if err := validateDuration(duration); err != nil {
			return model.Appointment{}, err
		}
		if !start.After(s.nowFn()) {
			return model.Appointment{}, &ValidationError{Field: "start_time", Rule: "must be in the future"}
		}
		end := start.Add(time.Duration(duration) * time.Minute)
		if err := s.checkWithinWindow(ctx, appt.ProviderID, start, end); err != nil {
			return model.Appointment{}, err
		}
		conflict, err := s.ledger.HasConflict(ctx, tx, appt.ProviderID, start, end, appt.ID)
		if err != nil {
			return model.Appointment{}, err
		}
		if conflict {
			return model.Appointment{}, ErrConflict
		}
	}

	if err := s.ledger.UpdateSchedule(ctx, tx, appt.ID, start, duration, reason); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, err
	}
	appt.StartTime = start
	appt.DurationMinutes = duration
	appt.Reason = reason

	if err := s.emit(ctx, tx, outbox.EventAppointmentUpdated, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, id string, requester Requester, reason string) (model.Appointment, error) {
	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.getLocked(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !model.CanTransition(appt.Status, model.StatusCancelled) {
		return model.Appointment{}, &IneligibleTransitionError{From: appt.Status, Reason: "appointment is closed"}
	}
	if err := s.authorizeParty(appt, requester, "cancel"); err != nil {
		return model.Appointment{}, err
	}
	if !s.nowFn().Before(appt.StartTime.Add(-s.cutoff)) {
		return model.Appointment{}, &IneligibleTransitionError{From: appt.Status, Reason: "too close to appointment"}
	}

	cancelledAt, err := s.ledger.Cancel(ctx, tx, appt.ID, requester.actor(), reason)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCancelled
	appt.Cancellation = &model.Cancellation{By: requester.actor(), Reason: reason, At: cancelledAt}

	if err := s.emit(ctx, tx, outbox.EventAppointmentCancelled, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "by", string(requester.actor()))
	return appt, nil
}

func (s *Service) Confirm(ctx context.Context, id string, requester Requester) (model.Appointment, error) {
	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.getLocked(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.authorizeStaff(appt, requester, "confirm"); err != nil {
		return model.Appointment{}, err
	}
	if !model.CanTransition(appt.Status, model.StatusConfirmed) {
		return model.Appointment{}, &IneligibleTransitionError{From: appt.Status, Reason: "only pending appointments can be confirmed"}
	}

	if err := s.ledger.SetConfirmed(ctx, tx, appt.ID); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusConfirmed

	if err := s.emit(ctx, tx, outbox.EventAppointmentUpdated, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) Complete(ctx context.Context, id string, requester Requester, outcomeNotes, diagnosis, prescription string) (model.Appointment, error) {
	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.getLocked(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.authorizeStaff(appt, requester, "complete"); err != nil {
		return model.Appointment{}, err
	}
	if !model.CanTransition(appt.Status, model.StatusCompleted) {
		return model.Appointment{}, &IneligibleTransitionError{From: appt.Status, Reason: "appointment is closed"}
	}

	if err := s.ledger.Complete(ctx, tx, appt.ID, outcomeNotes, diagnosis, prescription); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCompleted
	appt.OutcomeNotes = outcomeNotes
	appt.Diagnosis = diagnosis
	appt.Prescription = prescription

	if err := s.emit(ctx, tx, outbox.EventAppointmentCompleted, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) MarkNoShow(ctx context.Context, id string, requester Requester) (model.Appointment, error) {
	tx, err := s.ledger.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.getLocked(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.authorizeStaff(appt, requester, "mark no-show"); err != nil {
		return model.Appointment{}, err
	}
	if !model.CanTransition(appt.Status, model.StatusNoShow) {
		return model.Appointment{}, &IneligibleTransitionError{From: appt.Status, Reason: "appointment is closed"}
	}
	if s.nowFn().Before(appt.StartTime) {
		return model.Appointment{}, &IneligibleTransitionError{From: appt.Status, Reason: "appointment has not started yet"}
	}

	if err := s.ledger.SetNoShow(ctx, tx, appt.ID); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusNoShow

	if err := s.emit(ctx, tx, outbox.EventAppointmentNoShow, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Slots returns the provider's bookable intervals for the given date. A day
// without a configured or enabled window yields no slots, not an error.
func (s *Service) Slots(ctx context.Context, providerID string, date time.Time, granularity time.Duration) ([]schedule.Interval, error) {
	if providerID == "" {
		return nil, &ValidationError{Field: "provider_id", Rule: "required"}
	}
	if granularity == 0 {
		granularity = DefaultSlotGranularity
	}
	if granularity < minSlotGranularity || granularity > maxSlotGranularity {
		return nil, &ValidationError{Field: "granularity_minutes", Rule: "must be between 5 and 120"}
	}

	window, ok, err := s.dir.GetWindow(ctx, providerID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	iv, ok := window.Expand(date)
	if !ok {
		return nil, nil
	}

	busy, err := s.ledger.ListBusy(ctx, providerID, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	return schedule.Slots(iv.Start, iv.End, granularity, busy, s.nowFn()), nil
}

type ListFilter struct {
	OwnerID  string
	Status   string
	Upcoming bool
	Past     bool
	Limit    int
}

func (s *Service) List(ctx context.Context, requester Requester, f ListFilter) ([]model.Appointment, error) {
	ownerID := f.OwnerID
	if !requester.admin() {
		ownerID = requester.ID
	}
	if ownerID == "" && !requester.admin() {
		return nil, &AuthorizationError{Reason: "missing requester identity"}
	}
	if f.Status != "" && !validStatus(f.Status) {
		return nil, &ValidationError{Field: "status", Rule: "unknown status"}
	}
	return s.ledger.List(ctx, storage.ListQuery{
		OwnerID:  ownerID,
		Status:   f.Status,
		Upcoming: f.Upcoming,
		Past:     f.Past,
		Now:      s.nowFn(),
		Limit:    f.Limit,
	})
}

// Get returns a single appointment, visible to its owner, its provider, or an
// admin.
func (s *Service) Get(ctx context.Context, id string, requester Requester) (model.Appointment, error) {
	if id == "" {
		return model.Appointment{}, &ValidationError{Field: "appointment_id", Rule: "required"}
	}
	appt, err := s.ledger.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, &NotFoundError{Resource: "appointment", ID: id}
		}
		return model.Appointment{}, err
	}
	if err := s.authorizeParty(appt, requester, "view"); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) getLocked(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	if id == "" {
		return model.Appointment{}, &ValidationError{Field: "appointment_id", Rule: "required"}
	}
	appt, err := s.ledger.GetForUpdate(ctx, tx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, &NotFoundError{Resource: "appointment", ID: id}
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

// checkWithinWindow rejects intervals outside the provider's enabled
// availability window for that weekday.
func (s *Service) checkWithinWindow(ctx context.Context, providerID string, start, end time.Time) error {
	window, ok, err := s.dir.GetWindow(ctx, providerID, start.Weekday())
	if err != nil {
		return err
	}
	if !ok {
		return &ValidationError{Field: "start_time", Rule: "provider has no availability on that day"}
	}
	iv, ok := window.Expand(start)
	if !ok {
		return &ValidationError{Field: "start_time", Rule: "provider has no availability on that day"}
	}
	if start.Before(iv.Start) || end.After(iv.End) {
		return &ValidationError{Field: "start_time", Rule: "outside provider availability"}
	}
	return nil
}

// authorizeParty allows the owning consumer, the appointment's provider, or
// an admin.
func (s *Service) authorizeParty(appt model.Appointment, requester Requester, op string) error {
	if requester.admin() {
		return nil
	}
	if requester.Role == auth.RoleProvider && requester.ID == appt.ProviderID {
		return nil
	}
	if requester.ID == appt.OwnerID {
		return nil
	}
	return &AuthorizationError{Reason: "requester may not " + op + " this appointment"}
}

// authorizeStaff allows the appointment's provider or an admin, but not the
// consumer.
func (s *Service) authorizeStaff(appt model.Appointment, requester Requester, op string) error {
	if requester.admin() {
		return nil
	}
	if requester.Role == auth.RoleProvider && requester.ID == appt.ProviderID {
		return nil
	}
	return &AuthorizationError{Reason: "only the provider or an admin may " + op}
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"owner_id":       appt.OwnerID,
		"provider_id":    appt.ProviderID,
		"patient_id":     appt.PatientID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime().UTC().Format(time.RFC3339),
		"status":         string(appt.Status),
	})
	if err != nil {
		return err
	}
	return s.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func validateDuration(minutes int) error {
	if minutes < model.MinDurationMinutes || minutes > model.MaxDurationMinutes {
		return &ValidationError{Field: "duration_minutes", Rule: "must be between 15 and 180"}
	}
	return nil
}

func validStatus(raw string) bool {
	switch model.Status(raw) {
	case model.StatusPending, model.StatusConfirmed, model.StatusCancelled, model.StatusCompleted, model.StatusNoShow:
		return true
	}
	return false
}

func translateDirectoryErr(err error, resource, id string) error {
	if errors.Is(err, directory.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return err
}
