package storage

import (
	"context"

	"github.com/fieldline/scheduling-service/internal/model"
)

const serviceTypeColumns = `
	id::text, tenant_id::text, name, duration_minutes, buffer_minutes,
	requires_order, skill_tags, active`

func scanServiceType(row interface{ Scan(...any) error }) (model.ServiceType, error) {
	var st model.ServiceType
	err := row.Scan(
		&st.ID,
		&st.TenantID,
		&st.Name,
		&st.DurationMinutes,
		&st.BufferMinutes,
		&st.RequiresOrder,
		&st.SkillTags,
		&st.Active,
	)
	return st, err
}

func (t *txRepo) GetServiceType(ctx context.Context, tenantID, id string) (model.ServiceType, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+serviceTypeColumns+`
		FROM service_types
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	st, err := scanServiceType(row)
	if err != nil {
		return model.ServiceType{}, notFound(err, "service type", id)
	}
	return st, nil
}

// GetServiceType is the pool-backed read used by slot generation.
func (r *Repository) GetServiceType(ctx context.Context, tenantID, id string) (model.ServiceType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+serviceTypeColumns+`
		FROM service_types
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	st, err := scanServiceType(row)
	if err != nil {
		return model.ServiceType{}, notFound(err, "service type", id)
	}
	return st, nil
}

const providerColumns = `
	id::text, tenant_id::text, name, kind, skill_tags, area_tags,
	max_concurrent, travel_buffer_minutes, timezone, active`

func scanProvider(row interface{ Scan(...any) error }) (model.Provider, error) {
	var p model.Provider
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.Kind,
		&p.SkillTags,
		&p.AreaTags,
		&p.MaxConcurrent,
		&p.TravelBufferMinutes,
		&p.Timezone,
		&p.Active,
	)
	return p, err
}

func (t *txRepo) GetProvider(ctx context.Context, tenantID, id string) (model.Provider, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	p, err := scanProvider(row)
	if err != nil {
		return model.Provider{}, notFound(err, "provider", id)
	}
	return p, nil
}

// ActiveProviders returns the tenant's active providers; a non-empty
// providerID narrows to that provider only (still required to be active).
func (r *Repository) ActiveProviders(ctx context.Context, tenantID, providerID string) ([]model.Provider, error) {
	filter := any(providerID)
	if providerID == "" {
		filter = nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE tenant_id = $1
			AND active
			AND ($2::uuid IS NULL OR id = $2)
		ORDER BY id
	`, tenantID, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return providers, nil
}

// WindowsFor returns the provider's recurring windows for one weekday,
// ordered by start minute. Blocked windows (available = false) are included
// so callers can see explicit blackouts; slot generation skips them.
func (r *Repository) WindowsFor(ctx context.Context, tenantID, providerID string, weekday int) ([]model.AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT w.provider_id::text, w.weekday, w.start_minute, w.end_minute, w.available, w.max_appointments
		FROM availability_windows w
		JOIN providers p ON p.id = w.provider_id
		WHERE p.tenant_id = $1 AND w.provider_id = $2 AND w.weekday = $3
		ORDER BY w.start_minute ASC
	`, tenantID, providerID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		if err := rows.Scan(&w.ProviderID, &w.Weekday, &w.StartMinute, &w.EndMinute, &w.Available, &w.MaxAppointments); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}
