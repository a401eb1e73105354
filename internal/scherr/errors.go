// Package scherr defines the error taxonomy shared by the scheduling core.
// Handlers map these to HTTP statuses; the storage layer translates driver
// errors into them so callers never see pgx internals.
package scherr

import (
	"errors"
	"fmt"

	"github.com/fieldline/scheduling-service/internal/model"
)

// ValidationError reports malformed input. It is raised before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports an unknown service type, provider or appointment.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError reports a slot that is no longer available or a duplicate
// assignment. Conflicts carries the overlapping appointments, when known, so
// the caller can offer alternates. Never retried automatically.
type ConflictError struct {
	Reason    string
	Conflicts []model.Appointment
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s (%d conflicting appointments)", e.Reason, len(e.Conflicts))
}

func Conflict(reason string, conflicts ...model.Appointment) error {
	return &ConflictError{Reason: reason, Conflicts: conflicts}
}

// StateTransitionError reports an illegal status change. The appointment is
// left untouched.
type StateTransitionError struct {
	From model.AppointmentStatus
	To   model.AppointmentStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var v *ConflictError
	return errors.As(err, &v)
}

func IsStateTransition(err error) bool {
	var v *StateTransitionError
	return errors.As(err, &v)
}
