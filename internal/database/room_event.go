// internal/database/room_event.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mindspar/mindspar/internal/journal"
)

// InsertRoomEvents bulk-inserts a batch of journaled room events.
//
// Schema:
//
//	CREATE TABLE room_events (
//	    id          BIGSERIAL PRIMARY KEY,
//	    room_id     TEXT NOT NULL,
//	    player_id   UUID NOT NULL,
//	    event_type  TEXT NOT NULL,
//	    payload     JSONB,
//	    ts          BIGINT NOT NULL
//	);
func InsertRoomEvents(ctx context.Context, records []journal.RoomEventRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	q := `
		INSERT INTO room_events (room_id, player_id, event_type, payload, ts)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, rec := range records {
		var payload interface{}
		if len(rec.Payload) > 0 {
			payload = []byte(rec.Payload)
		}
		batch.Queue(q, rec.RoomID, rec.PlayerID, rec.EventType, payload, rec.Timestamp)
	}

	br := DB.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert room event: %w", err)
		}
	}
	return nil
}
