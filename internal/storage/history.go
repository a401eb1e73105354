package storage

import (
	"context"

	"github.com/fieldline/scheduling-service/internal/model"
)

// AppendHistory inserts one audit row. The table is append-only; no update
// or delete statement exists anywhere in this package.
func (t *txRepo) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_history
			(appointment_id, tenant_id, action, previous_status, new_status, actor, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.AppointmentID, entry.TenantID, entry.Action, entry.PreviousStatus, entry.NewStatus, entry.Actor, entry.Reason)
	return err
}

func (t *txRepo) ListHistory(ctx context.Context, tenantID, appointmentID string) ([]model.HistoryEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, appointment_id::text, tenant_id::text, action, previous_status, new_status, actor, reason, occurred_at
		FROM appointment_history
		WHERE tenant_id = $1 AND appointment_id = $2
		ORDER BY id ASC
	`, tenantID, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.TenantID, &e.Action, &e.PreviousStatus, &e.NewStatus, &e.Actor, &e.Reason, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}
