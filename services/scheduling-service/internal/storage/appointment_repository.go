package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vetdesk/vetdesk/libs/db"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/model"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/schedule"
)

// AppointmentRepository is the appointment ledger. Rows are never deleted;
// every lifecycle change is a status update so the history stays queryable.
//
// The appointments table carries a partial exclusion constraint on
// (provider_id, tstzrange(start_time, end_time)) over pending/confirmed rows.
// That constraint, not the application-level pre-check, is what makes
// concurrent bookings for the same provider safe.
type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id::text, owner_id::text, provider_id::text, patient_id::text,
	start_time, duration_minutes, status, reason, fee::text, is_paid,
	cancelled_at, COALESCE(cancelled_by, ''), COALESCE(cancellation_reason, ''),
	COALESCE(outcome_notes, ''), COALESCE(diagnosis, ''), COALESCE(prescription, ''),
	created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	var cancelledAt *time.Time
	var cancelledBy, cancelReason string
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.ProviderID,
		&a.PatientID,
		&a.StartTime,
		&a.DurationMinutes,
		&status,
		&a.Reason,
		&a.Fee,
		&a.IsPaid,
		&cancelledAt,
		&cancelledBy,
		&cancelReason,
		&a.OutcomeNotes,
		&a.Diagnosis,
		&a.Prescription,
		&a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	if cancelledAt != nil {
		a.Cancellation = &model.Cancellation{
			By:     model.Actor(cancelledBy),
			Reason: cancelReason,
			At:     *cancelledAt,
		}
	}
	return a, nil
}

func (r *AppointmentRepository) Insert(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, owner_id, provider_id, patient_id, start_time, end_time, duration_minutes, status, reason, fee, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id, appt.OwnerID, appt.ProviderID, appt.PatientID,
		appt.StartTime, appt.EndTime(), appt.DurationMinutes,
		string(appt.Status), appt.Reason, appt.Fee, appt.IsPaid)
	if err != nil {
		return "", err
	}
	appt.ID = id
	return id, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

// HasConflict applies the half-open overlap rule against non-terminal
// appointments for the provider. excludeID lets a reschedule check against
// everything but itself.
func (r *AppointmentRepository) HasConflict(ctx context.Context, tx pgx.Tx, providerID string, start, end time.Time, excludeID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE provider_id = $1
				AND status IN ('pending', 'confirmed')
				AND start_time < $3
				AND end_time > $2
				AND ($4 = '' OR id::text <> $4)
		)
	`, providerID, start, end, excludeID).Scan(&exists)
	return exists, err
}

func (r *AppointmentRepository) UpdateSchedule(ctx context.Context, tx pgx.Tx, id string, start time.Time, durationMinutes int, reason string) error {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET start_time = $2,
			end_time = $3,
			duration_minutes = $4,
			reason = $5,
			updated_at = now()
		WHERE id = $1
	`, id, start, end, durationMinutes, reason)
	return err
}

func (r *AppointmentRepository) SetConfirmed(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
			updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, id string, by model.Actor, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancelled_by = $2,
			cancellation_reason = $3,
			updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, id, string(by), reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *AppointmentRepository) Complete(ctx context.Context, tx pgx.Tx, id string, outcomeNotes, diagnosis, prescription string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed',
			outcome_notes = $2,
			diagnosis = $3,
			prescription = $4,
			updated_at = now()
		WHERE id = $1
	`, id, outcomeNotes, diagnosis, prescription)
	return err
}

func (r *AppointmentRepository) SetNoShow(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'no_show',
			updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// ListBusy returns the occupied intervals for a provider inside [from, to).
// Cancelled, completed and no-show appointments never block.
func (r *AppointmentRepository) ListBusy(ctx context.Context, providerID string, from, to time.Time) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE provider_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return busy, nil
}

type ListQuery struct {
	OwnerID string
	Status  string
	// Upcoming and Past filter on start_time relative to Now.
	Upcoming bool
	Past     bool
	Now      time.Time
	Limit    int
}

func (r *AppointmentRepository) List(ctx context.Context, q ListQuery) ([]model.Appointment, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR owner_id::text = $1)
			AND ($2 = '' OR status = $2)
			AND (NOT $3::bool OR start_time > $5)
			AND (NOT $4::bool OR start_time <= $5)
		ORDER BY start_time DESC
		LIMIT $6
	`, q.OwnerID, q.Status, q.Upcoming, q.Past, q.Now, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// IsConflict reports whether err is the exclusion-constraint violation raised
// when two non-terminal appointments would overlap for one provider.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
