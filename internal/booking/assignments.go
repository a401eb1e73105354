package booking

import (
	"context"
	"log/slog"

	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/scherr"
)

// Manager links appointments to providers. At most one primary assignment per
// appointment; an (appointment, provider) pair can exist only once. The
// overlap check applies to every role uniformly, so a backup technician
// cannot be double-booked either.
type Manager struct {
	store  Store
	logger *slog.Logger
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

func (m *Manager) Assign(ctx context.Context, tenantID, actor, appointmentID, providerID string, role model.AssignmentRole) (model.Assignment, error) {
	if !model.ValidRole(role) {
		return model.Assignment{}, scherr.Validation("role", "must be primary, secondary or backup")
	}

	var assignment model.Assignment
	err := m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status.Terminal() {
			return scherr.Validation("appointment_id", "appointment is completed or cancelled")
		}

		provider, err := tx.GetProvider(ctx, tenantID, providerID)
		if err != nil {
			return err
		}
		if !provider.Active {
			return scherr.Validation("provider_id", "provider is inactive")
		}

		existing, err := tx.ListAssignments(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		for _, a := range existing {
			if a.ProviderID == providerID {
				return scherr.Conflict("provider is already assigned to this appointment")
			}
			if role == model.RolePrimary && a.Role == model.RolePrimary {
				return scherr.Validation("role", "appointment already has a primary assignment")
			}
		}

		conflicts, err := overlapping(ctx, tx, tenantID, providerID, appt.ScheduledStart, appt.ScheduledEnd, appointmentID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return scherr.Conflict("provider has overlapping appointments", conflicts...)
		}

		assignment = model.Assignment{
			AppointmentID: appointmentID,
			ProviderID:    providerID,
			TenantID:      tenantID,
			Role:          role,
			Status:        model.AssignmentAssigned,
		}
		if err := tx.InsertAssignment(ctx, assignment, appt.ScheduledStart, appt.ScheduledEnd); err != nil {
			return err
		}

		return tx.AppendHistory(ctx, model.HistoryEntry{
			AppointmentID:  appointmentID,
			TenantID:       tenantID,
			Action:         model.ActionAssigned,
			PreviousStatus: appt.Status,
			NewStatus:      appt.Status,
			Actor:          actor,
			Reason:         string(role) + ":" + providerID,
		})
	})
	if err != nil {
		return model.Assignment{}, err
	}
	return assignment, nil
}

// Unassign removes the link. Removing the last assignment is permitted; the
// appointment is then unstaffed and the caller is expected to re-assign
// before the scheduled window.
func (m *Manager) Unassign(ctx context.Context, tenantID, actor, appointmentID, providerID string) error {
	return m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}

		removed, err := tx.DeleteAssignment(ctx, tenantID, appointmentID, providerID)
		if err != nil {
			return err
		}
		if !removed {
			return scherr.NotFound("assignment", appointmentID+"/"+providerID)
		}

		return tx.AppendHistory(ctx, model.HistoryEntry{
			AppointmentID:  appointmentID,
			TenantID:       tenantID,
			Action:         model.ActionUnassigned,
			PreviousStatus: appt.Status,
			NewStatus:      appt.Status,
			Actor:          actor,
			Reason:         providerID,
		})
	})
}

func (m *Manager) List(ctx context.Context, tenantID, appointmentID string) ([]model.Assignment, error) {
	var assignments []model.Assignment
	err := m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID); err != nil {
			return err
		}
		var err error
		assignments, err = tx.ListAssignments(ctx, tenantID, appointmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assignments, nil
}
