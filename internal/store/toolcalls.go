package store

import (
	"context"
	"database/sql"
	"time"
)

// AgentToolCall records a single tool dispatch for later analysis
// (§4.G "persist AgentToolCall row for later analysis"), independent
// of the OperationEvent stream — events are the narrative replay,
// this table is the query surface for "which tools does this agent
// reach for".
type AgentToolCall struct {
	ID          string
	OperationID string
	Seq         int
	ToolName    string
	Arguments   string
	Success     bool
	Denied      bool
	Truncated   bool
	DurationMS  int64
	Error       string
	CreatedAt   time.Time
}

// InsertAgentToolCall appends a tool-call row. Insert-only, like artifacts.
func (s *Store) InsertAgentToolCall(ctx context.Context, c AgentToolCall) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_tool_calls (id, operation_id, seq, tool_name, arguments, success, denied, truncated, duration_ms, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.OperationID, c.Seq, c.ToolName, c.Arguments, c.Success, c.Denied, c.Truncated,
			c.DurationMS, nullableString(c.Error), c.CreatedAt.Unix())
		return err
	})
}

// ToolCallsForOperation returns every recorded tool call for an
// operation in dispatch order.
func (s *Store) ToolCallsForOperation(ctx context.Context, operationID string) ([]AgentToolCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_id, seq, tool_name, arguments, success, denied, truncated, duration_ms, error, created_at
		FROM agent_tool_calls WHERE operation_id = ? ORDER BY seq ASC
	`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentToolCall
	for rows.Next() {
		var c AgentToolCall
		var errMsg sql.NullString
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.OperationID, &c.Seq, &c.ToolName, &c.Arguments, &c.Success,
			&c.Denied, &c.Truncated, &c.DurationMS, &errMsg, &createdAt); err != nil {
			return nil, err
		}
		c.Error = errMsg.String
		c.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}
