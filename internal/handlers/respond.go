package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/scherr"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Field     string            `json:"field,omitempty"`
	Conflicts []appointmentItem `json:"conflicts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the scheduling error taxonomy onto HTTP statuses:
// validation 400, not found 404, booking conflict 409, illegal status
// transition 422. Anything else is a 500 with no detail leaked.
func writeError(w http.ResponseWriter, err error) {
	var ve *scherr.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
		return
	}

	var nf *scherr.NotFoundError
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: nf.Error()})
		return
	}

	var ce *scherr.ConflictError
	if errors.As(err, &ce) {
		resp := errorResponse{Error: ce.Error()}
		for _, a := range ce.Conflicts {
			resp.Conflicts = append(resp.Conflicts, toAppointmentItem(a))
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}

	var se *scherr.StateTransitionError
	if errors.As(err, &se) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: se.Error()})
		return
	}

	http.Error(w, "internal error", http.StatusInternalServerError)
}

type appointmentItem struct {
	ID             string `json:"id"`
	Number         string `json:"number"`
	OrderID        string `json:"order_id,omitempty"`
	ServiceTypeID  string `json:"service_type_id"`
	ScheduledStart string `json:"scheduled_start"`
	ScheduledEnd   string `json:"scheduled_end"`
	Status         string `json:"status"`
	Priority       int    `json:"priority"`
	Address        string `json:"address,omitempty"`
	ContactName    string `json:"contact_name,omitempty"`
	ContactPhone   string `json:"contact_phone,omitempty"`
	ContactEmail   string `json:"contact_email,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		ID:             a.ID,
		Number:         a.Number,
		OrderID:        a.OrderID,
		ServiceTypeID:  a.ServiceTypeID,
		ScheduledStart: a.ScheduledStart.UTC().Format(time.RFC3339),
		ScheduledEnd:   a.ScheduledEnd.UTC().Format(time.RFC3339),
		Status:         string(a.Status),
		Priority:       a.Priority,
		Address:        a.Address,
		ContactName:    a.ContactName,
		ContactPhone:   a.ContactPhone,
		ContactEmail:   a.ContactEmail,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
