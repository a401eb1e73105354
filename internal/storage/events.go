package storage

import (
	"context"

	"github.com/fieldline/scheduling-service/internal/outbox"
)

func (t *txRepo) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, t.tx, evt)
}
