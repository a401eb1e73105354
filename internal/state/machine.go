// Package state holds the appointment status transition table. It is pure:
// callers persist the resulting status and append the history entry inside
// their own transaction.
package state

import (
	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/scherr"
)

// transitions lists the allowed forward edges. completed and cancelled are
// terminal and have no outgoing edges.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.StatusScheduled:  {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed:  {model.StatusInProgress, model.StatusCancelled},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCancelled},
}

// Step validates a status change. A nil return means the transition is in the
// table; anything else is a *scherr.StateTransitionError and the appointment
// must be left unchanged.
func Step(from, to model.AppointmentStatus) error {
	for _, allowed := range transitions[from] {
		if to == allowed {
			return nil
		}
	}
	return &scherr.StateTransitionError{From: from, To: to}
}

// CanReschedule reports whether an appointment may be moved. Rescheduling
// keeps the appointment id, re-enters scheduled with the new interval and
// requires a fresh conflict check.
func CanReschedule(from model.AppointmentStatus) error {
	if from == model.StatusScheduled || from == model.StatusConfirmed {
		return nil
	}
	return &scherr.StateTransitionError{From: from, To: model.StatusScheduled}
}

// ValidTarget reports whether s is a status a caller may request at all.
// scheduled is excluded: it is only re-entered via reschedule.
func ValidTarget(s model.AppointmentStatus) bool {
	switch s {
	case model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted, model.StatusCancelled:
		return true
	}
	return false
}
