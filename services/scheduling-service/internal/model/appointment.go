package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Occupies reports whether an appointment in this status still blocks
// calendar time for its provider.
func (s Status) Occupies() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition is the appointment lifecycle table:
// pending -> confirmed -> completed; pending|confirmed -> cancelled|no_show.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusConfirmed:
		return from == StatusPending
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return from == StatusPending || from == StatusConfirmed
	}
	return false
}

// Actor identifies who performed a cancellation.
type Actor string

const (
	ActorConsumer Actor = "consumer"
	ActorProvider Actor = "provider"
	ActorAdmin    Actor = "admin"
)

type Cancellation struct {
	By     Actor
	Reason string
	At     time.Time
}

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 180
)

type Appointment struct {
	ID              string
	OwnerID         string
	ProviderID      string
	PatientID       string
	StartTime       time.Time
	DurationMinutes int
	Status          Status
	Reason          string
	Fee             string
	IsPaid          bool
	Cancellation    *Cancellation
	OutcomeNotes    string
	Diagnosis       string
	Prescription    string
	CreatedAt       time.Time
}

func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}
