package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldline/scheduling-service/internal/availability"
	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/outbox"
	"github.com/fieldline/scheduling-service/internal/scherr"
)

// fakeStore is an in-memory Store. Each InTx call runs against a deep copy
// of the state under a mutex; the copy replaces the live state only when fn
// succeeds, so rollback-on-error behaves like the real transaction.
type fakeStore struct {
	mu    sync.Mutex
	state fakeState
}

type fakeAssignment struct {
	model.Assignment
	start time.Time
	end   time.Time
}

type fakeState struct {
	serviceTypes map[string]model.ServiceType
	providers    map[string]model.Provider
	appointments map[string]model.Appointment
	assignments  []fakeAssignment
	history      []model.HistoryEntry
	events       []outbox.Event
	seq          int
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: fakeState{
		serviceTypes: map[string]model.ServiceType{},
		providers:    map[string]model.Provider{},
		appointments: map[string]model.Appointment{},
	}}
}

func (s *fakeState) clone() fakeState {
	out := fakeState{
		serviceTypes: make(map[string]model.ServiceType, len(s.serviceTypes)),
		providers:    make(map[string]model.Provider, len(s.providers)),
		appointments: make(map[string]model.Appointment, len(s.appointments)),
		assignments:  append([]fakeAssignment(nil), s.assignments...),
		history:      append([]model.HistoryEntry(nil), s.history...),
		events:       append([]outbox.Event(nil), s.events...),
		seq:          s.seq,
	}
	for k, v := range s.serviceTypes {
		out.serviceTypes[k] = v
	}
	for k, v := range s.providers {
		out.providers[k] = v
	}
	for k, v := range s.appointments {
		out.appointments[k] = v
	}
	return out
}

func (s *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &fakeTx{state: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type fakeTx struct {
	state *fakeState
}

func (t *fakeTx) GetServiceType(_ context.Context, tenantID, id string) (model.ServiceType, error) {
	st, ok := t.state.serviceTypes[id]
	if !ok || st.TenantID != tenantID {
		return model.ServiceType{}, scherr.NotFound("service type", id)
	}
	return st, nil
}

func (t *fakeTx) GetProvider(_ context.Context, tenantID, id string) (model.Provider, error) {
	p, ok := t.state.providers[id]
	if !ok || p.TenantID != tenantID {
		return model.Provider{}, scherr.NotFound("provider", id)
	}
	return p, nil
}

func (t *fakeTx) GetAppointmentForUpdate(_ context.Context, tenantID, id string) (model.Appointment, error) {
	a, ok := t.state.appointments[id]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, scherr.NotFound("appointment", id)
	}
	return a, nil
}

func (t *fakeTx) ListCommittedForProvider(_ context.Context, tenantID, providerID string, from, to time.Time, excludeAppointmentID string) ([]model.Appointment, error) {
	requested := availability.Interval{Start: from, End: to}
	var out []model.Appointment
	for _, asg := range t.state.assignments {
		if asg.ProviderID != providerID || asg.TenantID != tenantID || !asg.Active() {
			continue
		}
		if excludeAppointmentID != "" && asg.AppointmentID == excludeAppointmentID {
			continue
		}
		appt, ok := t.state.appointments[asg.AppointmentID]
		if !ok || !appt.Status.Committed() {
			continue
		}
		if requested.Overlaps(availability.Interval{Start: appt.ScheduledStart, End: appt.ScheduledEnd}) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (t *fakeTx) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	t.state.seq++
	appt.ID = fmt.Sprintf("apt-%d", t.state.seq)
	appt.Number = fmt.Sprintf("APT-%06d", t.state.seq)
	appt.CreatedAt = time.Now()
	t.state.appointments[appt.ID] = *appt
	return nil
}

func (t *fakeTx) UpdateAppointmentSchedule(_ context.Context, tenantID, id string, start, end time.Time, status model.AppointmentStatus) error {
	a, ok := t.state.appointments[id]
	if !ok || a.TenantID != tenantID {
		return scherr.NotFound("appointment", id)
	}
	a.ScheduledStart, a.ScheduledEnd, a.Status = start, end, status
	t.state.appointments[id] = a
	for i := range t.state.assignments {
		if t.state.assignments[i].AppointmentID == id && t.state.assignments[i].Active() {
			t.state.assignments[i].start = start
			t.state.assignments[i].end = end
		}
	}
	return nil
}

func (t *fakeTx) UpdateAppointmentStatus(_ context.Context, tenantID, id string, status model.AppointmentStatus) error {
	a, ok := t.state.appointments[id]
	if !ok || a.TenantID != tenantID {
		return scherr.NotFound("appointment", id)
	}
	a.Status = status
	t.state.appointments[id] = a
	return nil
}

func (t *fakeTx) ListAssignments(_ context.Context, tenantID, appointmentID string) ([]model.Assignment, error) {
	var out []model.Assignment
	for _, asg := range t.state.assignments {
		if asg.TenantID == tenantID && asg.AppointmentID == appointmentID {
			out = append(out, asg.Assignment)
		}
	}
	return out, nil
}

// InsertAssignment mimics the storage constraints: the unique
// (appointment, provider) pair and the per-provider range exclusion.
func (t *fakeTx) InsertAssignment(_ context.Context, a model.Assignment, start, end time.Time) error {
	requested := availability.Interval{Start: start, End: end}
	for _, existing := range t.state.assignments {
		if existing.AppointmentID == a.AppointmentID && existing.ProviderID == a.ProviderID {
			return scherr.Conflict("write conflict, please retry")
		}
		// The real exclusion range is NULLed once the appointment goes
		// terminal, so only committed appointments block.
		if appt, ok := t.state.appointments[existing.AppointmentID]; ok && !appt.Status.Committed() {
			continue
		}
		if existing.ProviderID == a.ProviderID && existing.Active() &&
			requested.Overlaps(availability.Interval{Start: existing.start, End: existing.end}) {
			return scherr.Conflict("write conflict, please retry")
		}
	}
	a.CreatedAt = time.Now()
	t.state.assignments = append(t.state.assignments, fakeAssignment{Assignment: a, start: start, end: end})
	return nil
}

func (t *fakeTx) DeleteAssignment(_ context.Context, tenantID, appointmentID, providerID string) (bool, error) {
	for i, asg := range t.state.assignments {
		if asg.TenantID == tenantID && asg.AppointmentID == appointmentID && asg.ProviderID == providerID {
			t.state.assignments = append(t.state.assignments[:i], t.state.assignments[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	entry.ID = int64(len(t.state.history) + 1)
	entry.OccurredAt = time.Now()
	t.state.history = append(t.state.history, entry)
	return nil
}

func (t *fakeTx) ListHistory(_ context.Context, tenantID, appointmentID string) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	for _, e := range t.state.history {
		if e.TenantID == tenantID && e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *fakeTx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.state.events = append(t.state.events, evt)
	return nil
}

// Snapshot helpers used by assertions. They take the lock so they are safe
// after concurrent InTx calls finish.

func (s *fakeStore) historyFor(appointmentID string) []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.HistoryEntry
	for _, e := range s.state.history {
		if e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeStore) eventsOfType(eventType string) []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Event
	for _, e := range s.state.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeStore) assignmentsFor(appointmentID string) []model.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Assignment
	for _, a := range s.state.assignments {
		if a.AppointmentID == appointmentID {
			out = append(out, a.Assignment)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
