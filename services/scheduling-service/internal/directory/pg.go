package directory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetdesk/vetdesk/libs/db"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/schedule"
)

// PG reads the locally replicated directory tables. The rows are owned by the
// directory service and kept fresh by the Kafka consumer; the engine treats
// them as read-only apart from the cache upsert.
type PG struct {
	pool *db.Pool
}

func NewPG(pool *db.Pool) *PG {
	return &PG{pool: pool}
}

func (d *PG) GetProvider(ctx context.Context, id string) (Provider, error) {
	var p Provider
	err := d.pool.QueryRow(ctx, `
		SELECT id::text, active, verified, consultation_fee::text
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Active, &p.Verified, &p.ConsultationFee)
	if errors.Is(err, pgx.ErrNoRows) {
		return Provider{}, ErrNotFound
	}
	if err != nil {
		return Provider{}, err
	}
	return p, nil
}

func (d *PG) GetPatient(ctx context.Context, id string) (Patient, error) {
	var p Patient
	err := d.pool.QueryRow(ctx, `
		SELECT id::text, owner_id::text, name
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.OwnerID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrNotFound
	}
	if err != nil {
		return Patient{}, err
	}
	return p, nil
}

func (d *PG) GetWindow(ctx context.Context, providerID string, weekday time.Weekday) (schedule.Window, bool, error) {
	w := schedule.Window{Weekday: weekday}
	err := d.pool.QueryRow(ctx, `
		SELECT enabled, start_minute, end_minute
		FROM availability_windows
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, int(weekday)).Scan(&w.Enabled, &w.StartMinute, &w.EndMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Window{}, false, nil
	}
	if err != nil {
		return schedule.Window{}, false, err
	}
	return w, true, nil
}

// UpsertProvider refreshes the local provider cache from a directory event.
func (d *PG) UpsertProvider(ctx context.Context, tx pgx.Tx, p Provider) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO providers (id, active, verified, consultation_fee)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET active = EXCLUDED.active,
			verified = EXCLUDED.verified,
			consultation_fee = EXCLUDED.consultation_fee,
			updated_at = now()
	`, p.ID, p.Active, p.Verified, p.ConsultationFee)
	return err
}
