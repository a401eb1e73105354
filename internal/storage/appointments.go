package storage

import (
	"context"
	"time"

	"github.com/fieldline/scheduling-service/internal/model"
)

const appointmentColumns = `
	id::text, number, tenant_id::text, COALESCE(order_id, ''), service_type_id::text,
	scheduled_start, scheduled_end, status, priority,
	address, contact_name, contact_phone, contact_email, created_at`

// Same columns qualified for queries that join assignments.
const appointmentColumnsAp = `
	ap.id::text, ap.number, ap.tenant_id::text, COALESCE(ap.order_id, ''), ap.service_type_id::text,
	ap.scheduled_start, ap.scheduled_end, ap.status, ap.priority,
	ap.address, ap.contact_name, ap.contact_phone, ap.contact_email, ap.created_at`

func scanAppointment(row interface{ Scan(...any) error }) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.TenantID,
		&a.OrderID,
		&a.ServiceTypeID,
		&a.ScheduledStart,
		&a.ScheduledEnd,
		&a.Status,
		&a.Priority,
		&a.Address,
		&a.ContactName,
		&a.ContactPhone,
		&a.ContactEmail,
		&a.CreatedAt,
	)
	return a, err
}

func (t *txRepo) GetAppointmentForUpdate(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment", id)
	}
	return appt, nil
}

func (t *txRepo) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	orderID := any(appt.OrderID)
	if appt.OrderID == "" {
		orderID = nil
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(tenant_id, order_id, service_type_id, scheduled_start, scheduled_end, status, priority,
			 address, contact_name, contact_phone, contact_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id::text, number, created_at
	`, appt.TenantID, orderID, appt.ServiceTypeID, appt.ScheduledStart, appt.ScheduledEnd,
		appt.Status, appt.Priority, appt.Address, appt.ContactName, appt.ContactPhone, appt.ContactEmail,
	).Scan(&appt.ID, &appt.Number, &appt.CreatedAt)
	return translateWrite(err)
}

func (t *txRepo) UpdateAppointmentSchedule(ctx context.Context, tenantID, id string, start, end time.Time, status model.AppointmentStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET scheduled_start = $3, scheduled_end = $4, status = $5
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, start, end, status)
	if err != nil {
		return translateWrite(err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundRow("appointment", id)
	}

	// Keep the exclusion ranges of the active assignments on the new
	// interval; declined and completed assignments stay released.
	_, err = t.tx.Exec(ctx, `
		UPDATE assignments
		SET during = tstzrange($3, $4, '[)')
		WHERE tenant_id = $1 AND appointment_id = $2
			AND status IN ('assigned', 'confirmed')
	`, tenantID, id, start, end)
	return translateWrite(err)
}

func (t *txRepo) UpdateAppointmentStatus(ctx context.Context, tenantID, id string, status model.AppointmentStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, status)
	if err != nil {
		return translateWrite(err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundRow("appointment", id)
	}

	if status.Terminal() {
		// A finished or cancelled appointment no longer blocks its providers.
		if _, err := t.tx.Exec(ctx, `
			UPDATE assignments
			SET during = NULL
			WHERE tenant_id = $1 AND appointment_id = $2
		`, tenantID, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) ListCommittedForProvider(ctx context.Context, tenantID, providerID string, from, to time.Time, excludeAppointmentID string) ([]model.Appointment, error) {
	exclude := any(excludeAppointmentID)
	if excludeAppointmentID == "" {
		exclude = nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumnsAp+`
		FROM appointments ap
		JOIN assignments a ON a.appointment_id = ap.id AND a.status IN ('assigned', 'confirmed')
		WHERE ap.tenant_id = $1
			AND a.provider_id = $2
			AND ap.status IN ('scheduled', 'confirmed', 'in_progress')
			AND ap.scheduled_start < $4
			AND ap.scheduled_end > $3
			AND ($5::uuid IS NULL OR ap.id <> $5)
		ORDER BY ap.scheduled_start ASC
	`, tenantID, providerID, from, to, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// ListCommittedForProvider is the pool-backed twin of the transactional
// method, used by the read-only slot generation path.
func (r *Repository) ListCommittedForProvider(ctx context.Context, tenantID, providerID string, from, to time.Time, excludeAppointmentID string) ([]model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appts, err := (&txRepo{tx: tx}).ListCommittedForProvider(ctx, tenantID, providerID, from, to, excludeAppointmentID)
	if err != nil {
		return nil, err
	}
	return appts, tx.Commit(ctx)
}

// GetAppointment is the read-only lookup used by the HTTP layer.
func (r *Repository) GetAppointment(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment", id)
	}
	return appt, nil
}

// ListAppointments returns the tenant's appointments, most recent schedule
// first.
func (r *Repository) ListAppointments(ctx context.Context, tenantID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
		ORDER BY scheduled_start DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
