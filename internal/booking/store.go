package booking

import (
	"context"
	"time"

	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/outbox"
)

// Tx is the transactional storage surface the booking and assignment
// operations run against. Implementations must translate driver-level
// failures into the scherr taxonomy: not-found into *scherr.NotFoundError,
// unique/exclusion/serialization violations into *scherr.ConflictError.
type Tx interface {
	GetServiceType(ctx context.Context, tenantID, id string) (model.ServiceType, error)
	GetProvider(ctx context.Context, tenantID, id string) (model.Provider, error)

	// GetAppointmentForUpdate locks the appointment row for the rest of the
	// transaction.
	GetAppointmentForUpdate(ctx context.Context, tenantID, id string) (model.Appointment, error)
	// ListCommittedForProvider returns the provider's committed appointments
	// (scheduled, confirmed, in progress) intersecting [from, to), minus the
	// excluded appointment id when non-empty.
	ListCommittedForProvider(ctx context.Context, tenantID, providerID string, from, to time.Time, excludeAppointmentID string) ([]model.Appointment, error)

	// InsertAppointment fills in ID, Number and CreatedAt.
	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	// UpdateAppointmentSchedule moves the interval, sets the status and keeps
	// the assignment exclusion ranges in sync.
	UpdateAppointmentSchedule(ctx context.Context, tenantID, id string, start, end time.Time, status model.AppointmentStatus) error
	// UpdateAppointmentStatus sets the status; entering a terminal status
	// releases the assignment exclusion ranges.
	UpdateAppointmentStatus(ctx context.Context, tenantID, id string, status model.AppointmentStatus) error

	ListAssignments(ctx context.Context, tenantID, appointmentID string) ([]model.Assignment, error)
	// InsertAssignment records the link and its exclusion range [start, end).
	InsertAssignment(ctx context.Context, a model.Assignment, start, end time.Time) error
	// DeleteAssignment reports whether a row was removed.
	DeleteAssignment(ctx context.Context, tenantID, appointmentID, providerID string) (bool, error)

	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	ListHistory(ctx context.Context, tenantID, appointmentID string) ([]model.HistoryEntry, error)

	InsertEvent(ctx context.Context, evt outbox.Event) error
}

// Store runs fn inside a single transaction. fn returning an error rolls
// everything back, so multi-write operations are all-or-nothing; context
// cancellation mid-flight has the same effect.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
