package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldline/scheduling-service/internal/slots"
	"github.com/fieldline/scheduling-service/libs/auth"
)

type SlotsHandler struct {
	generator *slots.Generator
	logger    *slog.Logger

	// Now is the clock for the past-candidate filter; overridable in tests.
	Now func() time.Time
}

func NewSlotsHandler(generator *slots.Generator, logger *slog.Logger) *SlotsHandler {
	return &SlotsHandler{generator: generator, logger: logger, Now: time.Now}
}

type slotItem struct {
	ProviderID string `json:"provider_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type slotsResponse struct {
	Slots []slotItem `json:"slots"`
}

// Search handles GET /api/v1/slots.
func (h *SlotsHandler) Search(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	serviceTypeID := strings.TrimSpace(q.Get("service_type_id"))
	date := strings.TrimSpace(q.Get("date"))
	if serviceTypeID == "" || date == "" {
		http.Error(w, "service_type_id and date are required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	opts := slots.Options{
		ProviderID: strings.TrimSpace(q.Get("provider_id")),
		Now:        h.Now(),
	}
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			http.Error(w, "duration_minutes must be a positive integer", http.StatusBadRequest)
			return
		}
		opts.DurationMinutes = minutes
	}

	found, err := h.generator.Generate(r.Context(), id.TenantID, serviceTypeID, date, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := slotsResponse{Slots: make([]slotItem, 0, len(found))}
	for _, s := range found {
		resp.Slots = append(resp.Slots, slotItem{
			ProviderID: s.ProviderID,
			Start:      s.Start.UTC().Format(time.RFC3339),
			End:        s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
