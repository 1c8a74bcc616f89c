package store

import (
	"context"
	"database/sql"
	"time"
)

// OperationEvent mirrors §3's OperationEvent entity. Payload carries the
// variant-specific fields as JSON; Kind names the variant
// (Started, StatusChanged, LlmCall, ToolCallStart, ToolCallEnd,
// ArtifactCreated, TextDelta, Reasoning, Completed, Failed).
type OperationEvent struct {
	ID          int64
	OperationID string
	Seq         int
	Kind        string
	Payload     string
	CreatedAt   time.Time
}

// AppendEvent inserts the next event for an operation. Seq is assigned
// by the caller (pkg/engine keeps a per-operation counter) so that
// ordering survives even if events are persisted out of band from
// emission (§4.G "events are emitted in the order they occur").
func (s *Store) AppendEvent(ctx context.Context, ev OperationEvent) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO operation_events (operation_id, seq, kind, payload, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, ev.OperationID, ev.Seq, ev.Kind, ev.Payload, ev.CreatedAt.Unix())
		return err
	})
}

// GetOperationEvents returns all events for an operation in insertion order.
func (s *Store) GetOperationEvents(ctx context.Context, operationID string) ([]OperationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_id, seq, kind, payload, created_at
		FROM operation_events WHERE operation_id = ? ORDER BY seq ASC
	`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OperationEvent
	for rows.Next() {
		var ev OperationEvent
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.OperationID, &ev.Seq, &ev.Kind, &ev.Payload, &createdAt); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}
