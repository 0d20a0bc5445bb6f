package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
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

// monday is the fixed test date: Monday 2030-03-04.
var monday = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeLedger struct {
	appts   map[string]*model.Appointment
	nextID  int
	idemKey map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{appts: map[string]*model.Appointment{}, idemKey: map[string]string{}}
}

func (l *fakeLedger) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (l *fakeLedger) Insert(_ context.Context, _ pgx.Tx, appt *model.Appointment) (string, error) {
	l.nextID++
	appt.ID = fmt.Sprintf("appt-%d", l.nextID)
	cp := *appt
	l.appts[appt.ID] = &cp
	return appt.ID, nil
}

func (l *fakeLedger) Get(_ context.Context, id string) (model.Appointment, error) {
	a, ok := l.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return *a, nil
}

func (l *fakeLedger) GetForUpdate(ctx context.Context, _ pgx.Tx, id string) (model.Appointment, error) {
	return l.Get(ctx, id)
}

func (l *fakeLedger) HasConflict(_ context.Context, _ pgx.Tx, providerID string, start, end time.Time, excludeID string) (bool, error) {
	for _, a := range l.appts {
		if a.ProviderID != providerID || !a.Status.Occupies() || a.ID == excludeID {
			continue
		}
		if schedule.Overlaps(start, end, a.StartTime, a.EndTime()) {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) UpdateSchedule(_ context.Context, _ pgx.Tx, id string, start time.Time, durationMinutes int, reason string) error {
	a := l.appts[id]
	a.StartTime = start
	a.DurationMinutes = durationMinutes
	a.Reason = reason
	return nil
}

func (l *fakeLedger) SetConfirmed(_ context.Context, _ pgx.Tx, id string) error {
	l.appts[id].Status = model.StatusConfirmed
	return nil
}

func (l *fakeLedger) Cancel(_ context.Context, _ pgx.Tx, id string, by model.Actor, reason string) (time.Time, error) {
	a := l.appts[id]
	now := at(7, 0)
	a.Status = model.StatusCancelled
	a.Cancellation = &model.Cancellation{By: by, Reason: reason, At: now}
	return now, nil
}

func (l *fakeLedger) Complete(_ context.Context, _ pgx.Tx, id string, outcomeNotes, diagnosis, prescription string) error {
	a := l.appts[id]
	a.Status = model.StatusCompleted
	a.OutcomeNotes = outcomeNotes
	a.Diagnosis = diagnosis
	a.Prescription = prescription
	return nil
}

func (l *fakeLedger) SetNoShow(_ context.Context, _ pgx.Tx, id string) error {
	l.appts[id].Status = model.StatusNoShow
	return nil
}

func (l *fakeLedger) ListBusy(_ context.Context, providerID string, from, to time.Time) ([]schedule.Interval, error) {
	var busy []schedule.Interval
	for _, a := range l.appts {
		if a.ProviderID != providerID || !a.Status.Occupies() {
			continue
		}
		if schedule.Overlaps(a.StartTime, a.EndTime(), from, to) {
			busy = append(busy, schedule.Interval{Start: a.StartTime, End: a.EndTime()})
		}
	}
	return busy, nil
}

func (l *fakeLedger) List(_ context.Context, q storage.ListQuery) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range l.appts {
		if q.OwnerID != "" && a.OwnerID != q.OwnerID {
			continue
		}
		if q.Status != "" && string(a.Status) != q.Status {
			continue
		}
		if q.Upcoming && !a.StartTime.After(q.Now) {
			continue
		}
		if q.Past && a.StartTime.After(q.Now) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (l *fakeLedger) LockIdempotencyKey(_ context.Context, _ pgx.Tx, ownerID, key string) (storage.IdempotencyRecord, bool, error) {
	if id, ok := l.idemKey[ownerID+"/"+key]; ok {
		return storage.IdempotencyRecord{OwnerID: ownerID, IdempotencyKey: key, AppointmentID: id}, true, nil
	}
	return storage.IdempotencyRecord{OwnerID: ownerID, IdempotencyKey: key}, false, nil
}

func (l *fakeLedger) FinalizeIdempotency(_ context.Context, _ pgx.Tx, ownerID, key, appointmentID string, _ int, _ []byte) error {
	l.idemKey[ownerID+"/"+key] = appointmentID
	return nil
}

type fakeDirectory struct {
	providers map[string]directory.Provider
	patients  map[string]directory.Patient
	windows   map[string]schedule.Window // keyed by providerID/weekday
}

func (d *fakeDirectory) GetProvider(_ context.Context, id string) (directory.Provider, error) {
	p, ok := d.providers[id]
	if !ok {
		return directory.Provider{}, directory.ErrNotFound
	}
	return p, nil
}

func (d *fakeDirectory) GetPatient(_ context.Context, id string) (directory.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return directory.Patient{}, directory.ErrNotFound
	}
	return p, nil
}

func (d *fakeDirectory) GetWindow(_ context.Context, providerID string, weekday time.Weekday) (schedule.Window, bool, error) {
	w, ok := d.windows[fmt.Sprintf("%s/%d", providerID, weekday)]
	return w, ok, nil
}

type fakeEvents struct {
	events []outbox.Event
}

func (e *fakeEvents) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	e.events = append(e.events, evt)
	return nil
}

func (e *fakeEvents) ofType(eventType string) int {
	n := 0
	for _, evt := range e.events {
		if evt.EventType == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	svc    *Service
	ledger *fakeLedger
	events *fakeEvents
}

// newFixture wires a service around provider "vet-1" with a Monday
// 09:00-12:00 window, patient "pet-1" owned by "owner-1", and now = Monday
// 08:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := newFakeLedger()
	events := &fakeEvents{}
	dir := &fakeDirectory{
		providers: map[string]directory.Provider{
			"vet-1": {ID: "vet-1", Active: true, Verified: true, ConsultationFee: "45.00"},
			"vet-2": {ID: "vet-2", Active: false, Verified: true},
		},
		patients: map[string]directory.Patient{
			"pet-1": {ID: "pet-1", OwnerID: "owner-1", Name: "Biscuit"},
		},
		windows: map[string]schedule.Window{
			"vet-1/1": {Weekday: time.Monday, Enabled: true, StartMinute: 540, EndMinute: 720},
		},
	}
	reminders := reminder.NewScheduler(events, logger, []time.Duration{24 * time.Hour, 2 * time.Hour})
	svc := NewService(ledger, dir, events, reminders, logger, 2*time.Hour)
	svc.nowFn = func() time.Time { return at(8, 0) }
	return &fixture{svc: svc, ledger: ledger, events: events}
}

func bookReq(start time.Time, minutes int) BookRequest {
	return BookRequest{
		OwnerID:         "owner-1",
		ProviderID:      "vet-1",
		PatientID:       "pet-1",
		Start:           start,
		DurationMinutes: minutes,
		Reason:          "checkup",
	}
}

var owner = Requester{ID: "owner-1", Role: auth.RoleOwner}
var vet = Requester{ID: "vet-1", Role: auth.RoleProvider}
var admin = Requester{ID: "admin-1", Role: auth.RoleAdmin}

func TestBook_Success(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.Book(context.Background(), bookReq(at(10, 0), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", appt.Status)
	}
	if appt.Fee != "45.00" {
		t.Fatalf("expected fee snapshot, got %q", appt.Fee)
	}
	if !appt.EndTime().Equal(at(10, 30)) {
		t.Fatalf("unexpected end time %s", appt.EndTime())
	}
	if n := f.events.ofType(outbox.EventAppointmentBooked); n != 1 {
		t.Fatalf("expected 1 booked event, got %d", n)
	}
	if n := f.events.ofType(outbox.EventReminderRequested); n != 2 {
		t.Fatalf("expected 2 reminder events, got %d", n)
	}
}

func TestBook_TouchingBoundariesAllowed(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Book(context.Background(), bookReq(at(10, 0), 30)); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if _, err := f.svc.Book(context.Background(), bookReq(at(10, 30), 30)); err != nil {
		t.Fatalf("touching booking should succeed: %v", err)
	}
}

func TestBook_OverlapRejected(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Book(context.Background(), bookReq(at(10, 0), 30)); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	_, err := f.svc.Book(context.Background(), bookReq(at(10, 15), 30))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)
	var vErr *ValidationError

	_, err := f.svc.Book(context.Background(), bookReq(at(7, 0).Add(-24*time.Hour), 30))
	if !errors.As(err, &vErr) || vErr.Field != "start_time" {
		t.Fatalf("expected start_time validation error, got %v", err)
	}

	_, err = f.svc.Book(context.Background(), bookReq(at(10, 0), 10))
	if !errors.As(err, &vErr) || vErr.Field != "duration_minutes" {
		t.Fatalf("expected duration validation error, got %v", err)
	}

	_, err = f.svc.Book(context.Background(), bookReq(at(10, 0), 200))
	if !errors.As(err, &vErr) || vErr.Field != "duration_minutes" {
		t.Fatalf("expected duration validation error, got %v", err)
	}
}

func TestBook_ProviderChecks(t *testing.T) {
	f := newFixture(t)

	req := bookReq(at(10, 0), 30)
	req.ProviderID = "vet-missing"
	var nfErr *NotFoundError
	if _, err := f.svc.Book(context.Background(), req); !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	req.ProviderID = "vet-2"
	var vErr *ValidationError
	if _, err := f.svc.Book(context.Background(), req); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for inactive provider, got %v", err)
	}
}

func TestBook_PatientOwnership(t *testing.T) {
	f := newFixture(t)
	req := bookReq(at(10, 0), 30)
	req.OwnerID = "owner-2"
	var authErr *AuthorizationError
	if _, err := f.svc.Book(context.Background(), req); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
}

func TestBook_OutsideAvailability(t *testing.T) {
	f := newFixture(t)
	var vErr *ValidationError

	// 13:00 is after the 09:00-12:00 window.
	if _, err := f.svc.Book(context.Background(), bookReq(at(13, 0), 30)); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error outside window, got %v", err)
	}
	// 11:45 + 30min spills past the window end.
	if _, err := f.svc.Book(context.Background(), bookReq(at(11, 45), 30)); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for spill-over, got %v", err)
	}
	// Tuesday has no window at all.
	if _, err := f.svc.Book(context.Background(), bookReq(at(10, 0).AddDate(0, 0, 1), 30)); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for unconfigured day, got %v", err)
	}
}

func TestBook_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	req := bookReq(at(10, 0), 30)
	req.IdempotencyKey = "k-1"

	first, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	second, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same appointment, got %s and %s", first.ID, second.ID)
	}
	if len(f.ledger.appts) != 1 {
		t.Fatalf("expected a single ledger row, got %d", len(f.ledger.appts))
	}
}

func TestCancel_CutoffEnforced(t *testing.T) {
	f := newFixture(t)
	// Starts at 09:00, now is 08:00: inside the 2h cutoff.
	appt, err := f.svc.Book(context.Background(), bookReq(at(9, 0), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	var itErr *IneligibleTransitionError
	if _, err := f.svc.Cancel(context.Background(), appt.ID, owner, "conflict"); !errors.As(err, &itErr) {
		t.Fatalf("expected IneligibleTransitionError, got %v", err)
	}

	// Starts at 11:00, three hours out: cancellable.
	appt2, err := f.svc.Book(context.Background(), bookReq(at(11, 0), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	cancelled, err := f.svc.Cancel(context.Background(), appt2.ID, owner, "travel")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.Cancellation == nil || cancelled.Cancellation.By != model.ActorConsumer || cancelled.Cancellation.Reason != "travel" {
		t.Fatalf("cancellation record missing or wrong: %+v", cancelled.Cancellation)
	}
}

func TestCancel_TwiceFailsButRecordRemains(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.Book(context.Background(), bookReq(at(11, 0), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), appt.ID, owner, "travel"); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	var itErr *IneligibleTransitionError
	if _, err := f.svc.Cancel(context.Background(), appt.ID, owner, "again"); !errors.As(err, &itErr) {
		t.Fatalf("expected IneligibleTransitionError on second cancel, got %v", err)
	}

	kept, err := f.ledger.Get(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("cancelled appointment should remain queryable: %v", err)
	}
	if kept.Status != model.StatusCancelled {
		t.Fatalf("expected status cancelled, got %s", kept.Status)
	}
}

func TestUpdate_RescheduleExcludesSelf(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.Book(context.Background(), bookReq(at(10, 0), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := f.svc.Book(context.Background(), bookReq(at(11, 0), 30)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	// Shifting inside its own old interval must not self-conflict.
	newStart := at(10, 15)
	updated, err := f.svc.Update(context.Background(), UpdateRequest{ID: appt.ID, Requester: owner, NewStart: &newStart})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.StartTime.Equal(newStart) {
		t.Fatalf("expected start %s, got %s", newStart, updated.StartTime)
	}

	// Moving onto the other appointment conflicts.
	clash := at(11, 15)
	if _, err := f.svc.Update(context.Background(), UpdateRequest{ID: appt.ID, Requester: owner, NewStart: &clash}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdate_TerminalAndAuthorization(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.Book(context.Background(), bookReq(at(11, 0), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	stranger := Requester{ID: "owner-9", Role: auth.RoleOwner}
	var authErr *AuthorizationError
	if _, err := f.svc.Update(context.Background(), UpdateRequest{ID: appt.ID, Requester: stranger}); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	if _, err := f.svc.Cancel(context.Background(), appt.ID, owner, "x"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	var itErr *IneligibleTransitionError
	if _, err := f.svc.Update(context.Background(), UpdateRequest{ID: appt.ID, Requester: owner}); !errors.As(err, &itErr) {
		t.Fatalf("expected IneligibleTransitionError on cancelled appointment, got %v", err)
	}
}

func TestConfirmCompleteNoShow(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.Book(context.Background(), bookReq(at(10, 0), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	// The consumer cannot confirm.
	var authErr *AuthorizationError
	if _, err := f.svc.Confirm(context.Background(), appt.ID, owner); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	confirmed, err := f.svc.Confirm(context.Background(), appt.ID, vet)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if confirmed.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}
	var itErr *IneligibleTransitionError
	if _, err := f.svc.Confirm(context.Background(), appt.ID, vet); !errors.As(err, &itErr) {
		t.Fatalf("expected IneligibleTransitionError on double confirm, got %v", err)
	}

	// No-show before the start time is rejected.
	if _, err := f.svc.MarkNoShow(context.Background(), appt.ID, vet); !errors.As(err, &itErr) {
		t.Fatalf("expected IneligibleTransitionError before start, got %v", err)
	}

	done, err := f.svc.Complete(context.Background(), appt.ID, admin, "healthy", "none", "rest")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != model.StatusCompleted || done.Diagnosis != "none" {
		t.Fatalf("unexpected completed appointment: %+v", done)
	}

	// Completed is terminal.
	if _, err := f.svc.Cancel(context.Background(), appt.ID, admin, "late"); !errors.As(err, &itErr) {
		t.Fatalf("expected IneligibleTransitionError on completed, got %v", err)
	}
}

func TestMarkNoShow_AfterStart(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.Book(context.Background(), bookReq(at(9, 30), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	f.svc.nowFn = func() time.Time { return at(10, 30) }
	marked, err := f.svc.MarkNoShow(context.Background(), appt.ID, vet)
	if err != nil {
		t.Fatalf("MarkNoShow failed: %v", err)
	}
	if marked.Status != model.StatusNoShow {
		t.Fatalf("expected no_show, got %s", marked.Status)
	}
}

func TestSlots_Scenario(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.Slots(context.Background(), "vet-1", monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(at(9, 0)) || !slots[5].Start.Equal(at(11, 30)) {
		t.Fatalf("unexpected slot grid: first %s last %s", slots[0].Start, slots[5].Start)
	}

	if _, err := f.svc.Book(context.Background(), bookReq(at(10, 0), 30)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	slots, err = f.svc.Slots(context.Background(), "vet-1", monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(slots) != 5 {
		t.Fatalf("expected 5 slots after booking, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(at(10, 0)) {
			t.Fatal("10:00 should no longer be offered")
		}
	}
}

func TestSlots_EveryReturnedSlotIsBookable(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Book(context.Background(), bookReq(at(9, 45), 60)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	slots, err := f.svc.Slots(context.Background(), "vet-1", monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	for _, s := range slots {
		if _, err := f.svc.Book(context.Background(), bookReq(s.Start, 30)); err != nil {
			t.Fatalf("slot %s should be bookable: %v", s.Start.Format(time.RFC3339), err)
		}
	}
	// The day is now fully packed on the grid: nothing is left.
	rest, err := f.svc.Slots(context.Background(), "vet-1", monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remaining slots, got %d", len(rest))
	}
}

func TestSlots_NoWindowYieldsEmpty(t *testing.T) {
	f := newFixture(t)
	slots, err := f.svc.Slots(context.Background(), "vet-1", monday.AddDate(0, 0, 1), 30*time.Minute)
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on unconfigured day, got %d", len(slots))
	}
}

func TestGet_VisibleToPartiesOnly(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.Book(context.Background(), bookReq(at(10, 0), 30))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	for _, req := range []Requester{owner, vet, admin} {
		if _, err := f.svc.Get(context.Background(), appt.ID, req); err != nil {
			t.Fatalf("Get as %s failed: %v", req.Role, err)
		}
	}

	var authErr *AuthorizationError
	if _, err := f.svc.Get(context.Background(), appt.ID, Requester{ID: "owner-9", Role: auth.RoleOwner}); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError for stranger, got %v", err)
	}
	var nfErr *NotFoundError
	if _, err := f.svc.Get(context.Background(), "missing", admin); !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestList_ScopedToRequester(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Book(context.Background(), bookReq(at(10, 0), 30)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	mine, err := f.svc.List(context.Background(), owner, ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(mine))
	}

	// A different owner sees nothing even when asking for someone else's id.
	other, err := f.svc.List(context.Background(), Requester{ID: "owner-9", Role: auth.RoleOwner}, ListFilter{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no appointments for other owner, got %d", len(other))
	}

	upcoming, err := f.svc.List(context.Background(), owner, ListFilter{Upcoming: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(upcoming) != 1 {
		t.Fatalf("expected 1 upcoming appointment, got %d", len(upcoming))
	}
	past, err := f.svc.List(context.Background(), owner, ListFilter{Past: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("expected no past appointments, got %d", len(past))
	}
}
