package storage

import (
	"context"

	"github.com/fieldline/scheduling-service/internal/model"
)

// Projection writes. Providers, availability windows and service types are
// owned by external collaborators; these methods are only called by the
// event consumer that mirrors them into the local read model, never by the
// request path.

func (r *Repository) UpsertProvider(ctx context.Context, p model.Provider) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers
			(id, tenant_id, name, kind, skill_tags, area_tags, max_concurrent, travel_buffer_minutes, timezone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			skill_tags = EXCLUDED.skill_tags,
			area_tags = EXCLUDED.area_tags,
			max_concurrent = EXCLUDED.max_concurrent,
			travel_buffer_minutes = EXCLUDED.travel_buffer_minutes,
			timezone = EXCLUDED.timezone,
			active = EXCLUDED.active,
			updated_at = now()
	`, p.ID, p.TenantID, p.Name, p.Kind, p.SkillTags, p.AreaTags, p.MaxConcurrent, p.TravelBufferMinutes, p.Timezone, p.Active)
	return err
}

// ReplaceAvailability swaps the provider's full weekly schedule in one
// transaction so readers never observe a half-applied week.
func (r *Repository) ReplaceAvailability(ctx context.Context, providerID string, windows []model.AvailabilityWindow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM availability_windows WHERE provider_id = $1
	`, providerID); err != nil {
		return err
	}
	for _, w := range windows {
		if w.StartMinute >= w.EndMinute {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_windows
				(provider_id, weekday, start_minute, end_minute, available, max_appointments)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, providerID, w.Weekday, w.StartMinute, w.EndMinute, w.Available, w.MaxAppointments); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpsertServiceType mirrors a catalog entry. Once any appointment references
// the row it is immutable except for retirement: the catalog publishes new
// versions under a new id.
func (r *Repository) UpsertServiceType(ctx context.Context, st model.ServiceType) error {
	var referenced bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE service_type_id = $1)
	`, st.ID).Scan(&referenced); err != nil {
		return err
	}

	if referenced {
		_, err := r.pool.Exec(ctx, `
			UPDATE service_types
			SET active = $2, updated_at = now()
			WHERE id = $1
		`, st.ID, st.Active)
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_types
			(id, tenant_id, name, duration_minutes, buffer_minutes, requires_order, skill_tags, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			buffer_minutes = EXCLUDED.buffer_minutes,
			requires_order = EXCLUDED.requires_order,
			skill_tags = EXCLUDED.skill_tags,
			active = EXCLUDED.active,
			updated_at = now()
	`, st.ID, st.TenantID, st.Name, st.DurationMinutes, st.BufferMinutes, st.RequiresOrder, st.SkillTags, st.Active)
	return err
}
