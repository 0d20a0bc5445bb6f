package directory

import (
	"context"
	"errors"
	"time"

	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/schedule"
)

// ErrNotFound is returned when a provider or patient does not exist.
var ErrNotFound = errors.New("directory: not found")

// Provider is the engine's view of a service professional. Profiles live in
// the directory service; the engine only needs booking eligibility and the
// fee snapshot.
type Provider struct {
	ID              string
	Active          bool
	Verified        bool
	ConsultationFee string
}

func (p Provider) Bookable() bool {
	return p.Active && p.Verified
}

// Patient is the subject of an appointment (the animal, not the person
// booking it).
type Patient struct {
	ID      string
	OwnerID string
	Name    string
}

// Directory resolves providers, patients and weekly availability windows.
type Directory interface {
	GetProvider(ctx context.Context, id string) (Provider, error)
	GetPatient(ctx context.Context, id string) (Patient, error)
	// GetWindow returns the provider's availability window for the weekday.
	// The second return is false when no window is configured.
	GetWindow(ctx context.Context, providerID string, weekday time.Weekday) (schedule.Window, bool, error)
}
