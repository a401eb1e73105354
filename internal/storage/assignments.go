package storage

import (
	"context"
	"time"

	"github.com/fieldline/scheduling-service/internal/model"
)

func (t *txRepo) ListAssignments(ctx context.Context, tenantID, appointmentID string) ([]model.Assignment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT appointment_id::text, provider_id::text, tenant_id::text, role, status, created_at
		FROM assignments
		WHERE tenant_id = $1 AND appointment_id = $2
		ORDER BY created_at ASC
	`, tenantID, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.AppointmentID, &a.ProviderID, &a.TenantID, &a.Role, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return assignments, nil
}

// InsertAssignment writes the link together with its exclusion range. The
// unique (appointment, provider) key, the single-primary partial index and
// the (provider, during) exclusion constraint all fire here; each surfaces
// as ConflictError.
func (t *txRepo) InsertAssignment(ctx context.Context, a model.Assignment, start, end time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO assignments (appointment_id, provider_id, tenant_id, role, status, during)
		VALUES ($1, $2, $3, $4, $5, tstzrange($6, $7, '[)'))
	`, a.AppointmentID, a.ProviderID, a.TenantID, a.Role, a.Status, start, end)
	return translateWrite(err)
}

func (t *txRepo) DeleteAssignment(ctx context.Context, tenantID, appointmentID, providerID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM assignments
		WHERE tenant_id = $1 AND appointment_id = $2 AND provider_id = $3
	`, tenantID, appointmentID, providerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
