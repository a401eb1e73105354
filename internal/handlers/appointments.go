package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldline/scheduling-service/internal/booking"
	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/storage"
	"github.com/fieldline/scheduling-service/libs/auth"
)

type AppointmentsHandler struct {
	service     *booking.Service
	assignments *booking.Manager
	repo        *storage.Repository
	logger      *slog.Logger
}

func NewAppointmentsHandler(service *booking.Service, assignments *booking.Manager, repo *storage.Repository, logger *slog.Logger) *AppointmentsHandler {
	return &AppointmentsHandler{
		service:     service,
		assignments: assignments,
		repo:        repo,
		logger:      logger,
	}
}

type createAppointmentRequest struct {
	OrderID             string `json:"order_id"`
	ServiceTypeID       string `json:"service_type_id"`
	Start               string `json:"start"`
	End                 string `json:"end"`
	Priority            int    `json:"priority"`
	Address             string `json:"address"`
	ContactName         string `json:"contact_name"`
	ContactPhone        string `json:"contact_phone"`
	ContactEmail        string `json:"contact_email"`
	PreferredProviderID string `json:"preferred_provider_id"`
	OverrideDuration    bool   `json:"override_duration"`
}

type rescheduleRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type assignRequest struct {
	ProviderID string `json:"provider_id"`
	Role       string `json:"role"`
}

type unassignRequest struct {
	ProviderID string `json:"provider_id"`
}

type assignmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ProviderID    string `json:"provider_id"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

type historyItem struct {
	Action         string `json:"action"`
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	Actor          string `json:"actor,omitempty"`
	Reason         string `json:"reason,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
	}
	return id, ok
}

func parseRFC3339(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		http.Error(w, "invalid "+field+": must be RFC 3339", http.StatusBadRequest)
		return time.Time{}, false
	}
	return t, true
}

// Create handles POST /api/v1/appointments.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	start, ok := parseRFC3339(w, "start", req.Start)
	if !ok {
		return
	}
	end, ok := parseRFC3339(w, "end", req.End)
	if !ok {
		return
	}

	appt, err := h.service.Book(r.Context(), id.TenantID, id.ActorID, booking.BookRequest{
		OrderID:             strings.TrimSpace(req.OrderID),
		ServiceTypeID:       strings.TrimSpace(req.ServiceTypeID),
		Start:               start,
		End:                 end,
		Priority:            req.Priority,
		Address:             strings.TrimSpace(req.Address),
		ContactName:         strings.TrimSpace(req.ContactName),
		ContactPhone:        strings.TrimSpace(req.ContactPhone),
		ContactEmail:        strings.TrimSpace(req.ContactEmail),
		PreferredProviderID: strings.TrimSpace(req.PreferredProviderID),
		OverrideDuration:    req.OverrideDuration,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

// Get handles GET /api/v1/appointments/{id}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	appt, err := h.repo.GetAppointment(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// List handles GET /api/v1/appointments.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	appts, err := h.repo.ListAppointments(r.Context(), id.TenantID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// Reschedule handles POST /api/v1/appointments/{id}/reschedule.
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, ok := parseRFC3339(w, "start", req.Start)
	if !ok {
		return
	}
	end, ok := parseRFC3339(w, "end", req.End)
	if !ok {
		return
	}

	appt, err := h.service.Reschedule(r.Context(), id.TenantID, id.ActorID, r.PathValue("id"), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// Status handles POST /api/v1/appointments/{id}/status.
func (h *AppointmentsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	target := model.AppointmentStatus(strings.TrimSpace(req.Status))
	appt, err := h.service.ChangeStatus(r.Context(), id.TenantID, id.ActorID, r.PathValue("id"), target, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// Assign handles POST /api/v1/appointments/{id}/assign.
func (h *AppointmentsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	role := model.AssignmentRole(strings.TrimSpace(req.Role))
	if role == "" {
		role = model.RolePrimary
	}

	assignment, err := h.assignments.Assign(r.Context(), id.TenantID, id.ActorID, r.PathValue("id"), strings.TrimSpace(req.ProviderID), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentItem(assignment))
}

// Unassign handles POST /api/v1/appointments/{id}/unassign.
func (h *AppointmentsHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req unassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if err := h.assignments.Unassign(r.Context(), id.TenantID, id.ActorID, r.PathValue("id"), strings.TrimSpace(req.ProviderID)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Assignments handles GET /api/v1/appointments/{id}/assignments.
func (h *AppointmentsHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	list, err := h.assignments.List(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]assignmentItem, 0, len(list))
	for _, a := range list {
		items = append(items, toAssignmentItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": items})
}

// History handles GET /api/v1/appointments/{id}/history.
func (h *AppointmentsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	entries, err := h.service.History(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			Action:         e.Action,
			PreviousStatus: string(e.PreviousStatus),
			NewStatus:      string(e.NewStatus),
			Actor:          e.Actor,
			Reason:         e.Reason,
			OccurredAt:     e.OccurredAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": items})
}

func toAssignmentItem(a model.Assignment) assignmentItem {
	return assignmentItem{
		AppointmentID: a.AppointmentID,
		ProviderID:    a.ProviderID,
		Role:          string(a.Role),
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
