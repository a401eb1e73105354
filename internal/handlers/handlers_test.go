package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fieldline/scheduling-service/internal/booking"
	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/outbox"
	"github.com/fieldline/scheduling-service/internal/scherr"
	"github.com/fieldline/scheduling-service/libs/auth"
)

const testTenant = "tenant-1"

// handlerStore is a canned booking.Store/Tx good enough to drive the HTTP
// layer: one service type, one provider, one committed appointment occupying
// 10:00-11:00 on 2025-03-03.
type handlerStore struct {
	appointments map[string]model.Appointment
	assignments  []model.Assignment
	history      []model.HistoryEntry
	seq          int
}

func newHandlerStore(t *testing.T) *handlerStore {
	return &handlerStore{
		appointments: map[string]model.Appointment{
			"apt-existing": {
				ID: "apt-existing", Number: "APT-000001", TenantID: testTenant,
				ServiceTypeID:  "st-1",
				ScheduledStart: ts(t, "10:00"), ScheduledEnd: ts(t, "11:00"),
				Status: model.StatusScheduled, CreatedAt: ts(t, "08:00"),
			},
		},
		assignments: []model.Assignment{
			{AppointmentID: "apt-existing", ProviderID: "prov-1", TenantID: testTenant,
				Role: model.RolePrimary, Status: model.AssignmentAssigned, CreatedAt: ts(t, "08:00")},
		},
		history: []model.HistoryEntry{
			{ID: 1, AppointmentID: "apt-existing", TenantID: testTenant,
				Action: model.ActionCreated, NewStatus: model.StatusScheduled, OccurredAt: ts(t, "08:00")},
		},
		seq: 1,
	}
}

func ts(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", "2025-03-03 "+hhmm)
	if err != nil {
		t.Fatalf("parse %q: %v", hhmm, err)
	}
	return parsed
}

func (s *handlerStore) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return fn(ctx, s)
}

func (s *handlerStore) GetServiceType(_ context.Context, tenantID, id string) (model.ServiceType, error) {
	if tenantID != testTenant || id != "st-1" {
		return model.ServiceType{}, scherr.NotFound("service type", id)
	}
	return model.ServiceType{ID: "st-1", TenantID: testTenant, DurationMinutes: 60, Active: true}, nil
}

func (s *handlerStore) GetProvider(_ context.Context, tenantID, id string) (model.Provider, error) {
	if tenantID != testTenant || id != "prov-1" {
		return model.Provider{}, scherr.NotFound("provider", id)
	}
	return model.Provider{ID: "prov-1", TenantID: testTenant, Active: true}, nil
}

func (s *handlerStore) GetAppointmentForUpdate(_ context.Context, tenantID, id string) (model.Appointment, error) {
	a, ok := s.appointments[id]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, scherr.NotFound("appointment", id)
	}
	return a, nil
}

func (s *handlerStore) ListCommittedForProvider(_ context.Context, tenantID, providerID string, from, to time.Time, excludeAppointmentID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, asg := range s.assignments {
		if asg.TenantID != tenantID || asg.ProviderID != providerID || !asg.Active() {
			continue
		}
		if excludeAppointmentID != "" && asg.AppointmentID == excludeAppointmentID {
			continue
		}
		appt := s.appointments[asg.AppointmentID]
		if appt.Status.Committed() && appt.ScheduledStart.Before(to) && from.Before(appt.ScheduledEnd) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (s *handlerStore) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	s.seq++
	appt.ID = fmt.Sprintf("apt-%d", s.seq)
	appt.Number = fmt.Sprintf("APT-%06d", s.seq)
	appt.CreatedAt = time.Now()
	s.appointments[appt.ID] = *appt
	return nil
}

func (s *handlerStore) UpdateAppointmentSchedule(_ context.Context, tenantID, id string, start, end time.Time, status model.AppointmentStatus) error {
	a := s.appointments[id]
	a.ScheduledStart, a.ScheduledEnd, a.Status = start, end, status
	s.appointments[id] = a
	return nil
}

func (s *handlerStore) UpdateAppointmentStatus(_ context.Context, tenantID, id string, status model.AppointmentStatus) error {
	a := s.appointments[id]
	a.Status = status
	s.appointments[id] = a
	return nil
}

func (s *handlerStore) ListAssignments(_ context.Context, tenantID, appointmentID string) ([]model.Assignment, error) {
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.AppointmentID == appointmentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *handlerStore) InsertAssignment(_ context.Context, a model.Assignment, start, end time.Time) error {
	a.CreatedAt = time.Now()
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *handlerStore) DeleteAssignment(_ context.Context, tenantID, appointmentID, providerID string) (bool, error) {
	for i, a := range s.assignments {
		if a.TenantID == tenantID && a.AppointmentID == appointmentID && a.ProviderID == providerID {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *handlerStore) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	entry.ID = int64(len(s.history) + 1)
	entry.OccurredAt = time.Now()
	s.history = append(s.history, entry)
	return nil
}

func (s *handlerStore) ListHistory(_ context.Context, tenantID, appointmentID string) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	for _, e := range s.history {
		if e.TenantID == tenantID && e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *handlerStore) InsertEvent(_ context.Context, _ outbox.Event) error { return nil }

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := newHandlerStore(t)
	h := NewAppointmentsHandler(booking.NewService(store, logger), booking.NewManager(store, logger), nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/appointments", h.Create)
	mux.HandleFunc("POST /api/v1/appointments/{id}/reschedule", h.Reschedule)
	mux.HandleFunc("POST /api/v1/appointments/{id}/status", h.Status)
	mux.HandleFunc("POST /api/v1/appointments/{id}/assign", h.Assign)
	mux.HandleFunc("POST /api/v1/appointments/{id}/unassign", h.Unassign)
	mux.HandleFunc("GET /api/v1/appointments/{id}/assignments", h.Assignments)
	mux.HandleFunc("GET /api/v1/appointments/{id}/history", h.History)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), auth.Identity{
		TenantID: testTenant, ActorID: "tester",
	}))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateAppointment(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments", `{
		"service_type_id": "st-1",
		"start": "2025-03-03T12:00:00Z",
		"end": "2025-03-03T13:00:00Z",
		"contact_name": "Pat"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID == "" || got.Status != "scheduled" {
		t.Fatalf("response = %+v", got)
	}
}

func TestCreateAppointmentBadRequests(t *testing.T) {
	mux := newTestMux(t)

	cases := []string{
		`not json`,
		`{"service_type_id": "st-1", "start": "yesterday", "end": "2025-03-03T13:00:00Z"}`,
		`{"service_type_id": "st-1", "start": "2025-03-03T12:00:00Z", "end": "nope"}`,
	}
	for i, body := range cases {
		rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status = %d, want 400", i, rec.Code)
		}
	}
}

func TestCreateAppointmentConflict(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments", `{
		"service_type_id": "st-1",
		"start": "2025-03-03T10:30:00Z",
		"end": "2025-03-03T11:30:00Z",
		"preferred_provider_id": "prov-1"
	}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].ID != "apt-existing" {
		t.Fatalf("conflicts = %+v, want the existing appointment", resp.Conflicts)
	}
}

func TestCreateAppointmentUnknownServiceType(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments", `{
		"service_type_id": "st-missing",
		"start": "2025-03-03T12:00:00Z",
		"end": "2025-03-03T13:00:00Z"
	}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateAppointmentWrongDuration(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments", `{
		"service_type_id": "st-1",
		"start": "2025-03-03T12:00:00Z",
		"end": "2025-03-03T12:30:00Z"
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatusIllegalTransition(t *testing.T) {
	mux := newTestMux(t)

	// scheduled -> completed skips the intermediate states.
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments/apt-existing/status", `{"status": "completed"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", rec.Code, rec.Body.String())
	}
}

func TestStatusTransition(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments/apt-existing/status", `{"status": "confirmed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "confirmed" {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments/apt-existing/reschedule", `{
		"start": "2025-03-03T14:00:00Z",
		"end": "2025-03-03T15:00:00Z"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRescheduleUnknownAppointment(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments/apt-missing/reschedule", `{
		"start": "2025-03-03T14:00:00Z",
		"end": "2025-03-03T15:00:00Z"
	}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAssignmentsRoundTrip(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/appointments/apt-existing/unassign", `{"provider_id": "prov-1"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unassign status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/appointments/apt-existing/assign", `{"provider_id": "prov-1", "role": "primary"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/appointments/apt-existing/assignments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listResp struct {
		Assignments []assignmentItem `json:"assignments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listResp.Assignments) != 1 || listResp.Assignments[0].ProviderID != "prov-1" {
		t.Fatalf("assignments = %+v", listResp.Assignments)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/appointments/apt-existing/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		History []historyItem `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.History) != 1 || resp.History[0].Action != model.ActionCreated {
		t.Fatalf("history = %+v", resp.History)
	}
}

func TestMissingIdentityRejected(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
