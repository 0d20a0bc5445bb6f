package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/model"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/outbox"
)

// EventWriter is satisfied by the outbox repository.
type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Scheduler computes reminder fire times for an appointment and hands them to
// the notification sink through the outbox. Reminders are best effort: a
// failed enqueue is logged and never fails the booking.
type Scheduler struct {
	events  EventWriter
	logger  *slog.Logger
	offsets []time.Duration
	nowFn   func() time.Time
}

func NewScheduler(events EventWriter, logger *slog.Logger, offsets []time.Duration) *Scheduler {
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return &Scheduler{
		events:  events,
		logger:  logger,
		offsets: offsets,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// FireTimes returns start minus each offset, keeping only times strictly in
// the future. An appointment booked inside an offset simply gets no reminder
// for it.
func FireTimes(start time.Time, offsets []time.Duration, now time.Time) []time.Time {
	var out []time.Time
	for _, offset := range offsets {
		if offset <= 0 {
			continue
		}
		fireAt := start.Add(-offset)
		if !fireAt.After(now) {
			continue
		}
		out = append(out, fireAt)
	}
	return out
}

func (s *Scheduler) Schedule(ctx context.Context, tx pgx.Tx, appt model.Appointment) {
	for _, fireAt := range FireTimes(appt.StartTime, s.offsets, s.nowFn()) {
		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"owner_id":       appt.OwnerID,
			"provider_id":    appt.ProviderID,
			"patient_id":     appt.PatientID,
			"remind_at":      fireAt.UTC().Format(time.RFC3339),
			"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
			"reason":         appt.Reason,
		})
		if err != nil {
			s.logger.Error("failed to build reminder payload", "err", err)
			continue
		}
		if err := s.events.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.EventReminderRequested,
			Payload:       payload,
		}); err != nil {
			s.logger.Error("failed to enqueue reminder", "err", err, "appointment_id", appt.ID)
		}
	}
}

// ParseOffsets reads a comma-separated list of minute offsets, e.g.
// "1440,120". Invalid entries are skipped with a warning.
func ParseOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return offsets
}
