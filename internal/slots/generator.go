// Package slots produces candidate bookable time slots. Generation is a pure
// read: results are advisory and never reserve anything. The booking commit
// path re-validates the chosen interval with the same overlap predicate.
package slots

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/fieldline/scheduling-service/internal/availability"
	"github.com/fieldline/scheduling-service/internal/model"
	"github.com/fieldline/scheduling-service/internal/scherr"
)

// Slot is one candidate interval for one provider.
type Slot struct {
	ProviderID string
	Start      time.Time
	End        time.Time
}

// Catalog resolves service types from the projected catalog read model.
type Catalog interface {
	GetServiceType(ctx context.Context, tenantID, id string) (model.ServiceType, error)
}

// Calendar is the provider availability read model.
type Calendar interface {
	// ActiveProviders returns active providers for the tenant; a non-empty
	// providerID narrows the result to that single provider.
	ActiveProviders(ctx context.Context, tenantID, providerID string) ([]model.Provider, error)
	// WindowsFor returns the provider's windows for one weekday ordered by
	// start minute. Empty means fully blocked that day.
	WindowsFor(ctx context.Context, tenantID, providerID string, weekday int) ([]model.AvailabilityWindow, error)
}

// Bookings exposes committed appointments (scheduled, confirmed, in progress)
// for a provider intersecting an interval.
type Bookings interface {
	ListCommittedForProvider(ctx context.Context, tenantID, providerID string, from, to time.Time, excludeAppointmentID string) ([]model.Appointment, error)
}

// Options narrow or adjust a generation run. The zero value asks for all
// providers with the catalog duration.
type Options struct {
	ProviderID      string
	DurationMinutes int       // overrides the service type duration when > 0
	Now             time.Time // candidates starting before Now are skipped; zero disables
}

type Generator struct {
	catalog  Catalog
	calendar Calendar
	bookings Bookings
	logger   *slog.Logger
}

func NewGenerator(catalog Catalog, calendar Calendar, bookings Bookings, logger *slog.Logger) *Generator {
	return &Generator{catalog: catalog, calendar: calendar, bookings: bookings, logger: logger}
}

// Generate returns candidate slots for a service type on a date
// ("2006-01-02", interpreted in each provider's local timezone), ordered by
// start time ascending with provider id breaking ties. A duration longer than
// every window yields an empty result, not an error.
func (g *Generator) Generate(ctx context.Context, tenantID, serviceTypeID, date string, opts Options) ([]Slot, error) {
	st, err := g.catalog.GetServiceType(ctx, tenantID, serviceTypeID)
	if err != nil {
		return nil, err
	}
	if !st.Active {
		return nil, scherr.Validation("service_type_id", "service type is retired")
	}

	duration := time.Duration(st.DurationMinutes) * time.Minute
	if opts.DurationMinutes > 0 {
		duration = time.Duration(opts.DurationMinutes) * time.Minute
	}
	if duration <= 0 {
		return nil, scherr.Validation("duration", "must be positive")
	}

	providers, err := g.calendar.ActiveProviders(ctx, tenantID, opts.ProviderID)
	if err != nil {
		return nil, err
	}

	var out []Slot
	for _, p := range providers {
		if !hasAllTags(p.SkillTags, st.SkillTags) {
			continue
		}
		slots, err := g.providerSlots(ctx, tenantID, p, st, date, duration, opts.Now)
		if err != nil {
			return nil, err
		}
		out = append(out, slots...)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	return out, nil
}

func (g *Generator) providerSlots(ctx context.Context, tenantID string, p model.Provider, st model.ServiceType, date string, duration time.Duration, now time.Time) ([]Slot, error) {
	loc := time.UTC
	if p.Timezone != "" {
		l, err := time.LoadLocation(p.Timezone)
		if err != nil {
			g.logger.Warn("unknown provider timezone, falling back to UTC", "provider_id", p.ID, "tz", p.Timezone)
		} else {
			loc = l
		}
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, scherr.Validation("date", "must be YYYY-MM-DD")
	}

	windows, err := g.calendar.WindowsFor(ctx, tenantID, p.ID, int(day.Weekday()))
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	booked, err := g.bookings.ListCommittedForProvider(ctx, tenantID, p.ID, day, day.AddDate(0, 0, 1), "")
	if err != nil {
		return nil, err
	}
	busy := make([]availability.Interval, 0, len(booked))
	for _, b := range booked {
		busy = append(busy, availability.Interval{Start: b.ScheduledStart, End: b.ScheduledEnd})
	}

	buffer := time.Duration(st.BufferMinutes+p.TravelBufferMinutes) * time.Minute

	var out []Slot
	for _, w := range windows {
		if !w.Available {
			continue
		}
		win := availability.Interval{
			Start: day.Add(time.Duration(w.StartMinute) * time.Minute),
			End:   day.Add(time.Duration(w.EndMinute) * time.Minute),
		}

		limit := -1
		if w.MaxAppointments > 0 {
			existing := 0
			for _, b := range busy {
				if win.Overlaps(b) {
					existing++
				}
			}
			limit = w.MaxAppointments - existing
			if limit <= 0 {
				continue
			}
		}

		for _, start := range availability.SlotStarts(win, duration, buffer, busy, now) {
			out = append(out, Slot{ProviderID: p.ID, Start: start, End: start.Add(duration)})
			if limit > 0 {
				limit--
				if limit == 0 {
					break
				}
			}
		}
	}
	return out, nil
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
