package booking

import (
	"errors"
	"fmt"

	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/model"
)

// ErrConflict is returned when the requested interval overlaps a pending or
// confirmed appointment for the same provider.
var ErrConflict = errors.New("requested time conflicts with an existing appointment")

// ValidationError reports a malformed or out-of-range request field.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Rule)
}

// NotFoundError reports a missing provider, patient or appointment.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// AuthorizationError reports a requester who is neither the owning party nor
// privileged for the operation.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}

// IneligibleTransitionError reports a lifecycle operation that the
// appointment's current state or timing rules forbid.
type IneligibleTransitionError struct {
	From   model.Status
	Reason string
}

func (e *IneligibleTransitionError) Error() string {
	return fmt.Sprintf("appointment in status %q: %s", e.From, e.Reason)
}
