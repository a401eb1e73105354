// Package booking contains the write path of the scheduling core: creating,
// moving and re-statusing appointments, and linking providers to them. Every
// operation validates first, re-checks conflicts inside the transaction that
// performs the writes, and appends exactly one history entry per accepted
// mutation.
package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fieldline/scheduling-service/internal/availability"
	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/outbox"
	"github.com/fieldline/scheduling-service/internal/scherr"
	"github.com/fieldline/scheduling-service/internal/state"
)

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// BookRequest is the validated-by-the-service input for Book. Setting
// OverrideDuration waives the service-type duration check; the interval the
// caller sent is then taken as-is.
type BookRequest struct {
	OrderID             string
	ServiceTypeID       string
	Start               time.Time
	End                 time.Time
	Priority            int
	Address             string
	ContactName         string
	ContactPhone        string
	ContactEmail        string
	PreferredProviderID string
	OverrideDuration    bool
}

// Book creates an appointment in status scheduled. When a preferred provider
// is given, the provider's committed appointments are re-checked for overlap
// inside the same transaction that inserts the rows, which closes the race
// between slot listing and booking; the storage exclusion constraint backs
// this up across processes. On conflict the overlapping appointments are
// returned inside the error.
func (s *Service) Book(ctx context.Context, tenantID, actor string, req BookRequest) (model.Appointment, error) {
	if req.ServiceTypeID == "" {
		return model.Appointment{}, scherr.Validation("service_type_id", "required")
	}
	if req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		return model.Appointment{}, scherr.Validation("end", "must be after start")
	}

	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := tx.GetServiceType(ctx, tenantID, req.ServiceTypeID)
		if err != nil {
			return err
		}
		if !st.Active {
			return scherr.Validation("service_type_id", "service type is retired")
		}
		if st.RequiresOrder && req.OrderID == "" {
			return scherr.Validation("order_id", "required for this service type")
		}
		if !req.OverrideDuration {
			want := time.Duration(st.DurationMinutes) * time.Minute
			if req.End.Sub(req.Start) != want {
				return scherr.Validation("end", "interval does not match the service type duration")
			}
		}

		if req.PreferredProviderID != "" {
			provider, err := tx.GetProvider(ctx, tenantID, req.PreferredProviderID)
			if err != nil {
				return err
			}
			if !provider.Active {
				return scherr.Validation("provider_id", "provider is inactive")
			}
			conflicts, err := overlapping(ctx, tx, tenantID, provider.ID, req.Start, req.End, "")
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return scherr.Conflict("requested interval is no longer available", conflicts...)
			}
		}

		appt = model.Appointment{
			TenantID:       tenantID,
			OrderID:        req.OrderID,
			ServiceTypeID:  req.ServiceTypeID,
			ScheduledStart: req.Start,
			ScheduledEnd:   req.End,
			Status:         model.StatusScheduled,
			Priority:       req.Priority,
			Address:        req.Address,
			ContactName:    req.ContactName,
			ContactPhone:   req.ContactPhone,
			ContactEmail:   req.ContactEmail,
		}
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}

		if req.PreferredProviderID != "" {
			a := model.Assignment{
				AppointmentID: appt.ID,
				ProviderID:    req.PreferredProviderID,
				TenantID:      tenantID,
				Role:          model.RolePrimary,
				Status:        model.AssignmentAssigned,
			}
			if err := tx.InsertAssignment(ctx, a, appt.ScheduledStart, appt.ScheduledEnd); err != nil {
				return err
			}
		}

		if err := tx.AppendHistory(ctx, model.HistoryEntry{
			AppointmentID: appt.ID,
			TenantID:      tenantID,
			Action:        model.ActionCreated,
			NewStatus:     model.StatusScheduled,
			Actor:         actor,
		}); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id":  appt.ID,
			"number":          appt.Number,
			"tenant_id":       tenantID,
			"order_id":        appt.OrderID,
			"service_type_id": appt.ServiceTypeID,
			"provider_id":     req.PreferredProviderID,
			"scheduled_start": appt.ScheduledStart.UTC().Format(time.RFC3339),
			"scheduled_end":   appt.ScheduledEnd.UTC().Format(time.RFC3339),
			"status":          string(appt.Status),
		})
		if err != nil {
			return err
		}
		return tx.InsertEvent(ctx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.EventAppointmentCreated,
			Payload:       payload,
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Reschedule moves an appointment to a new interval on the same id. The
// conflict check covers every actively assigned provider but excludes the
// appointment being moved, so shifting within an otherwise free day always
// succeeds. The appointment re-enters scheduled.
func (s *Service) Reschedule(ctx context.Context, tenantID, actor, appointmentID string, newStart, newEnd time.Time) (model.Appointment, error) {
	if newStart.IsZero() || newEnd.IsZero() || !newEnd.After(newStart) {
		return model.Appointment{}, scherr.Validation("new_end", "must be after new_start")
	}

	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		if err := state.CanReschedule(appt.Status); err != nil {
			return err
		}

		assignments, err := tx.ListAssignments(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		for _, a := range assignments {
			if !a.Active() {
				continue
			}
			conflicts, err := overlapping(ctx, tx, tenantID, a.ProviderID, newStart, newEnd, appointmentID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return scherr.Conflict("new interval conflicts with the provider's other appointments", conflicts...)
			}
		}

		if err := tx.UpdateAppointmentSchedule(ctx, tenantID, appointmentID, newStart, newEnd, model.StatusScheduled); err != nil {
			return err
		}

		if err := tx.AppendHistory(ctx, model.HistoryEntry{
			AppointmentID:  appointmentID,
			TenantID:       tenantID,
			Action:         model.ActionReschedule,
			PreviousStatus: appt.Status,
			NewStatus:      model.StatusScheduled,
			Actor:          actor,
		}); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id":  appointmentID,
			"tenant_id":       tenantID,
			"action":          model.ActionReschedule,
			"previous_status": string(appt.Status),
			"new_status":      string(model.StatusScheduled),
			"scheduled_start": newStart.UTC().Format(time.RFC3339),
			"scheduled_end":   newEnd.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appointmentID,
			EventType:     outbox.EventAppointmentStatusChanged,
			Payload:       payload,
		}); err != nil {
			return err
		}

		appt.ScheduledStart = newStart
		appt.ScheduledEnd = newEnd
		appt.Status = model.StatusScheduled
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// ChangeStatus advances the appointment through the state machine. An illegal
// transition fails with StateTransitionError and writes nothing.
func (s *Service) ChangeStatus(ctx context.Context, tenantID, actor, appointmentID string, target model.AppointmentStatus, reason string) (model.Appointment, error) {
	if !state.ValidTarget(target) {
		return model.Appointment{}, scherr.Validation("status", "unknown target status")
	}

	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		if err := state.Step(appt.Status, target); err != nil {
			return err
		}

		if err := tx.UpdateAppointmentStatus(ctx, tenantID, appointmentID, target); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, model.HistoryEntry{
			AppointmentID:  appointmentID,
			TenantID:       tenantID,
			Action:         model.ActionStatus,
			PreviousStatus: appt.Status,
			NewStatus:      target,
			Actor:          actor,
			Reason:         reason,
		}); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id":  appointmentID,
			"tenant_id":       tenantID,
			"action":          model.ActionStatus,
			"previous_status": string(appt.Status),
			"new_status":      string(target),
			"reason":          reason,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appointmentID,
			EventType:     outbox.EventAppointmentStatusChanged,
			Payload:       payload,
		}); err != nil {
			return err
		}

		appt.Status = target
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// History returns the append-only audit log for one appointment, oldest
// first.
func (s *Service) History(ctx context.Context, tenantID, appointmentID string) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListHistory(ctx, tenantID, appointmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// overlapping narrows the storage result with the same half-open predicate
// slot generation uses, so both paths agree on what counts as a conflict.
func overlapping(ctx context.Context, tx Tx, tenantID, providerID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	committed, err := tx.ListCommittedForProvider(ctx, tenantID, providerID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	requested := availability.Interval{Start: start, End: end}
	var conflicts []model.Appointment
	for _, a := range committed {
		if requested.Overlaps(availability.Interval{Start: a.ScheduledStart, End: a.ScheduledEnd}) {
			conflicts = append(conflicts, a)
		}
	}
	return conflicts, nil
}
